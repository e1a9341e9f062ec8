// Package pipeline sequences one statement through the engine: document-type
// detection, cache lookup or code generation, validation, persistence and
// categorization. One statement is fully processed before the next begins;
// the jobs queue enforces that.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ledgerline/statement-engine/internal/agent"
	"github.com/ledgerline/statement-engine/internal/categorize"
	"github.com/ledgerline/statement-engine/internal/codecache"
	"github.com/ledgerline/statement-engine/internal/configgen"
	"github.com/ledgerline/statement-engine/internal/domain"
	"github.com/ledgerline/statement-engine/internal/extract"
	"github.com/ledgerline/statement-engine/internal/fileextract"
	"github.com/ledgerline/statement-engine/internal/infer"
	"github.com/ledgerline/statement-engine/internal/llm"
	"github.com/ledgerline/statement-engine/internal/validate"
)

// Statement status values reported in ParseResult.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DefaultCategories is the allowed category set used when the caller doesn't
// supply one.
var DefaultCategories = []string{
	"food", "groceries", "transport", "shopping", "entertainment", "utilities",
	"rent", "healthcare", "insurance", "investment", "salary", "transfer",
	"fees", "travel", "education", "other",
}

// ParseRequest is one statement to parse.
type ParseRequest struct {
	StatementID string
	FileName    string
	Data        []byte
	SourceHint  string // institution name when the uploader knows it
	Password    string
}

// ParseResult is the outcome surfaced to callers.
type ParseResult struct {
	Status           string
	TransactionCount int
	HoldingCount     int
	PeriodStart      string
	PeriodEnd        string
	Message          string
}

// Orchestrator wires the engine's components. Construct with New.
type Orchestrator struct {
	model        llm.Model
	summaryModel llm.Model
	agent        *agent.Agent
	cache        *codecache.Cache
	extractor    *extract.Extractor
	categorizer  *categorize.Categorizer
	store        TransactionStore
	categories   []string
	log          zerolog.Logger
}

func New(model, summaryModel llm.Model, ag *agent.Agent, cache *codecache.Cache,
	store TransactionStore, categorizer *categorize.Categorizer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		model:        model,
		summaryModel: summaryModel,
		agent:        ag,
		cache:        cache,
		extractor:    extract.NewExtractor(log),
		categorizer:  categorizer,
		store:        store,
		categories:   DefaultCategories,
		log:          log,
	}
}

// WithCategories overrides the allowed category set.
func (o *Orchestrator) WithCategories(categories []string) *Orchestrator {
	if len(categories) > 0 {
		o.categories = categories
	}
	return o
}

// ParseStatement processes one uploaded statement end-to-end. Input errors
// (unreadable file, password required) surface immediately; an exhausted
// generation loop is the only other fatal outcome, and a failed statement
// never leaves partial rows behind.
func (o *Orchestrator) ParseStatement(ctx context.Context, req ParseRequest) (*ParseResult, error) {
	log := o.log.With().Str("statement_id", req.StatementID).Str("file", req.FileName).Logger()

	switch detectKind(req.FileName) {
	case kindSheet:
		return o.parseSheet(ctx, req, log)
	default:
		return o.parseDocument(ctx, req, log)
	}
}

// ParseSpreadsheet is the direct spreadsheet entry point for callers that
// already know the upload is tabular.
func (o *Orchestrator) ParseSpreadsheet(ctx context.Context, data []byte, fileName string) (*ParseResult, error) {
	return o.ParseStatement(ctx, ParseRequest{
		StatementID: fileName,
		FileName:    fileName,
		Data:        data,
	})
}

// ListCachedSources exposes the administrative cache listing.
func (o *Orchestrator) ListCachedSources(ctx context.Context) ([]codecache.SourceInfo, error) {
	return o.cache.Sources(ctx)
}

// ClearCache removes all cached code for a source key and returns how many
// versions were removed.
func (o *Orchestrator) ClearCache(ctx context.Context, sourceKey string) (int, error) {
	return o.cache.Clear(ctx, sourceKey)
}

// parseDocument is the generated-code path for PDFs and bank text.
func (o *Orchestrator) parseDocument(ctx context.Context, req ParseRequest, log zerolog.Logger) (*ParseResult, error) {
	var text string
	kind := "text"
	if strings.EqualFold(filepath.Ext(req.FileName), ".pdf") {
		kind = "pdf"
		pages, err := fileextract.Pages(req.Data, req.Password)
		if err != nil {
			return failed(err), err
		}
		text = strings.Join(pages, "\n")
	} else {
		text = string(req.Data)
		if strings.TrimSpace(text) == "" {
			return failed(fileextract.ErrEmptyDocument), fileextract.ErrEmptyDocument
		}
	}

	// The summary only gates acceptance; if its extraction fails we parse
	// anyway and skip validation.
	expected, err := validate.ExtractSummary(ctx, o.summaryModel, text)
	if err != nil {
		log.Warn().Err(err).Msg("summary extraction failed, validation disabled for this statement")
		expected = nil
	}

	doc := agent.Document{
		SourceKey: codecache.SourceKey(req.SourceHint, kind),
		Text:      text,
	}
	res, err := o.agent.Parse(ctx, doc, expected)
	if err != nil {
		return failed(err), err
	}

	if res.Kind == agent.RowsHoldings {
		return o.persistHoldings(ctx, req.StatementID, res.Holdings)
	}
	return o.persistTransactions(ctx, req.StatementID, res.Transactions, log)
}

// parseSheet is the deterministic path: infer column shapes, ask the model
// for a parser config, then extract without further model involvement.
func (o *Orchestrator) parseSheet(ctx context.Context, req ParseRequest, log zerolog.Logger) (*ParseResult, error) {
	headers, rows, err := fileextract.Sheet(req.Data, req.FileName)
	if err != nil {
		return failed(err), err
	}

	meta := infer.InferSheet(headers, rows)
	cfg, err := configgen.Generate(ctx, o.model, meta, headers, rows)
	if err != nil {
		return failed(err), err
	}

	// The config's data start is relative to the raw sheet; rows here already
	// exclude the header row.
	if cfg.DataStartRow > 0 {
		cfg.DataStartRow--
	}

	result, err := o.extractor.Extract(rows, cfg)
	if err != nil {
		return failed(err), err
	}
	if len(result.Transactions) == 0 {
		err := fmt.Errorf("pipeline: no transactions extracted from %q (%d rows skipped)", req.FileName, result.SkippedRows)
		return failed(err), err
	}
	log.Info().Int("transactions", len(result.Transactions)).
		Int("skipped_rows", result.SkippedRows).Msg("spreadsheet extracted")

	return o.persistTransactions(ctx, req.StatementID, result.Transactions, log)
}

// persistTransactions categorizes, hashes and upserts. Categorization is
// never fatal; a persistence failure rolls the statement back so a failed
// parse leaves no partial rows.
func (o *Orchestrator) persistTransactions(ctx context.Context, statementID string, txs []domain.RawTransaction, log zerolog.Logger) (*ParseResult, error) {
	categorized := o.categorizer.Categorize(ctx, txs, o.categories)
	byID := make(map[string]domain.CategorizedTransaction, len(categorized))
	for _, c := range categorized {
		byID[c.ID] = c
	}

	persisted := make([]PersistedTransaction, 0, len(txs))
	for _, tx := range txs {
		p := PersistedTransaction{
			RawTransaction: tx,
			Hash:           domain.ContentHash(tx.Date, tx.Amount, tx.Description),
		}
		if c, ok := byID[tx.ID]; ok {
			p.Category = c.Category
			p.Confidence = c.Confidence
			p.Summary = c.Summary
		}
		persisted = append(persisted, p)
	}

	inserted, err := o.store.UpsertTransactions(ctx, statementID, persisted)
	if err != nil {
		if rbErr := o.store.DeleteStatement(ctx, statementID); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback after failed upsert also failed")
		}
		return failed(err), err
	}

	start, end := domain.Period(txs)
	log.Info().Int("transactions", len(txs)).Int("inserted", inserted).
		Str("period_start", start).Str("period_end", end).Msg("statement parsed")

	return &ParseResult{
		Status:           StatusCompleted,
		TransactionCount: len(txs),
		PeriodStart:      start,
		PeriodEnd:        end,
	}, nil
}

func (o *Orchestrator) persistHoldings(ctx context.Context, statementID string, holdings []domain.Holding) (*ParseResult, error) {
	inserted, err := o.store.UpsertHoldings(ctx, statementID, holdings)
	if err != nil {
		if rbErr := o.store.DeleteStatement(ctx, statementID); rbErr != nil {
			o.log.Error().Err(rbErr).Str("statement_id", statementID).Msg("rollback after failed upsert also failed")
		}
		return failed(err), err
	}
	o.log.Info().Str("statement_id", statementID).Int("holdings", len(holdings)).
		Int("inserted", inserted).Msg("investment statement parsed")
	return &ParseResult{
		Status:       StatusCompleted,
		HoldingCount: len(holdings),
	}, nil
}

type fileKind int

const (
	kindDocument fileKind = iota
	kindSheet
)

func detectKind(fileName string) fileKind {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".xlsx":
		return kindSheet
	default:
		return kindDocument
	}
}

func failed(err error) *ParseResult {
	return &ParseResult{Status: StatusFailed, Message: err.Error()}
}
