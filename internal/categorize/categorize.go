// Package categorize enriches raw transactions with categories via batched
// model calls over a compact CSV wire format. Every input transaction yields
// exactly one output: anything the model drops or mangles falls back to a
// deterministic local categorization instead of disappearing.
package categorize

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ledgerline/statement-engine/internal/domain"
	"github.com/ledgerline/statement-engine/internal/llm"
)

const (
	// DefaultBatchSize bounds prompt size; 50 transactions per call keeps
	// replies comfortably inside output limits.
	DefaultBatchSize = 50

	fallbackCategory = "other"
	// fallbackConfidence is used when the model returned a category but no
	// usable confidence.
	fallbackConfidence = 0.8
	// localFallbackConfidence marks transactions the model never answered
	// for; lower than fallbackConfidence so downstream can tell them apart.
	localFallbackConfidence = 0.5

	summaryMaxLen = 60
)

// Categorizer batches transactions through the model serially. Serial, not
// parallel: upstream rate limits, and same-source statements benefit from
// back-to-back prompt cache hits.
type Categorizer struct {
	model     llm.Model
	batchSize int
	log       zerolog.Logger
}

func New(model llm.Model, log zerolog.Logger) *Categorizer {
	return &Categorizer{model: model, batchSize: DefaultBatchSize, log: log}
}

// WithBatchSize overrides the batch size; values below 1 are ignored.
func (c *Categorizer) WithBatchSize(n int) *Categorizer {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

// Categorize returns exactly one CategorizedTransaction per input, in input
// order. A failed batch degrades to local fallbacks for its transactions;
// categorization is never fatal to parsing.
func (c *Categorizer) Categorize(ctx context.Context, txs []domain.RawTransaction, allowedCategories []string) []domain.CategorizedTransaction {
	allowed := make(map[string]struct{}, len(allowedCategories))
	for _, cat := range allowedCategories {
		allowed[strings.ToLower(strings.TrimSpace(cat))] = struct{}{}
	}

	out := make([]domain.CategorizedTransaction, 0, len(txs))
	for start := 0; start < len(txs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(txs) {
			end = len(txs)
		}
		out = append(out, c.categorizeBatch(ctx, txs[start:end], allowed, allowedCategories)...)
	}
	return out
}

func (c *Categorizer) categorizeBatch(ctx context.Context, batch []domain.RawTransaction, allowed map[string]struct{}, allowedList []string) []domain.CategorizedTransaction {
	replies := make(map[string]wireRow)

	reply, err := c.model.GenerateText(ctx, batchPrompt(batch, allowedList))
	if err != nil {
		c.log.Warn().Err(err).Int("batch_size", len(batch)).
			Msg("categorization batch failed, using local fallback")
	} else {
		replies = decodeReply(reply, allowed)
	}

	out := make([]domain.CategorizedTransaction, 0, len(batch))
	for _, tx := range batch {
		if row, ok := replies[tx.ID]; ok {
			out = append(out, domain.CategorizedTransaction{
				ID:         tx.ID,
				Category:   row.Category,
				Confidence: row.Confidence,
				Summary:    row.Summary,
			})
			continue
		}
		out = append(out, localFallback(tx))
	}
	return out
}

// localFallback is the deterministic categorization for transactions the
// model never answered for.
func localFallback(tx domain.RawTransaction) domain.CategorizedTransaction {
	return domain.CategorizedTransaction{
		ID:         tx.ID,
		Category:   fallbackCategory,
		Confidence: localFallbackConfidence,
		Summary:    truncate(tx.Description, summaryMaxLen),
	}
}

func batchPrompt(batch []domain.RawTransaction, allowedList []string) string {
	var b strings.Builder
	b.WriteString("Categorize these bank transactions.\n\n")
	b.WriteString("Allowed category codes: ")
	b.WriteString(strings.Join(allowedList, ", "))
	b.WriteString("\n\nInput rows are CSV: id,type,amount,\"description\"\n")
	b.WriteString("Reply with one CSV row per input id, no header, no markdown:\n")
	b.WriteString("id,category,confidence,\"summary\"\n")
	b.WriteString("- category: exactly one allowed code\n")
	b.WriteString("- confidence: 0..1\n")
	b.WriteString("- summary: short human-readable merchant/purpose, quoted\n\n")
	b.WriteString("Transactions:\n")
	b.WriteString(encodeBatch(batch))
	return b.String()
}
