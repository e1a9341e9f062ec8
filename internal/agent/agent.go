// Package agent owns the generated-code path: try cached code newest first,
// and when the cache can't parse the document, run a bounded generate →
// execute → validate → repair loop against the model. The loop is an explicit
// state machine with a step counter and a last-error accumulator, so budget
// exhaustion is testable without a live model.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/statement-engine/internal/codecache"
	"github.com/ledgerline/statement-engine/internal/domain"
	"github.com/ledgerline/statement-engine/internal/llm"
	"github.com/ledgerline/statement-engine/internal/sandbox"
	"github.com/ledgerline/statement-engine/internal/validate"
)

// DefaultStepBudget bounds the generate/repair loop.
const DefaultStepBudget = 8

// ErrExhausted means both the cache and the generation budget ran out. It is
// the only fatal outcome for a statement on this path.
var ErrExhausted = errors.New("agent: generation budget exhausted")

type state int

const (
	stateTryCache state = iota
	stateGenerate
	stateExecute
	stateValidate
	stateAccept
	stateGiveUp
)

// Document is one statement to parse through generated code.
type Document struct {
	SourceKey string
	Text      string
}

// Result is an accepted parse.
type Result struct {
	Kind         RowKind
	Transactions []domain.RawTransaction
	Holdings     []domain.Holding
	Version      *codecache.Version
	FromCache    bool
	StepsUsed    int
}

// Agent wires the cache, the sandbox and the model together.
type Agent struct {
	cache      *codecache.Cache
	exec       *sandbox.Executor
	model      llm.Model
	stepBudget int
	tolerance  decimal.Decimal
	log        zerolog.Logger
}

type Option func(*Agent)

// WithStepBudget overrides the default repair-loop budget.
func WithStepBudget(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.stepBudget = n
		}
	}
}

// WithTolerance overrides the validation tolerance.
func WithTolerance(t decimal.Decimal) Option {
	return func(a *Agent) { a.tolerance = t }
}

func New(cache *codecache.Cache, exec *sandbox.Executor, model llm.Model, log zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		cache:      cache,
		exec:       exec,
		model:      model,
		stepBudget: DefaultStepBudget,
		tolerance:  validate.DefaultTolerance,
		log:        log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Parse runs the full cached-then-generated flow for one document. expected
// is the independently extracted statement summary; a nil or empty summary
// disables validation rather than failing it.
func (a *Agent) Parse(ctx context.Context, doc Document, expected *validate.ExpectedSummary) (*Result, error) {
	if res, err := a.tryCached(ctx, doc, expected); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}
	return a.generate(ctx, doc, expected)
}

// tryCached executes cached versions newest first and accepts the first one
// whose output validates. Every attempt records an outcome, including the
// rejected ones. A nil, nil return means the cache had nothing usable.
func (a *Agent) tryCached(ctx context.Context, doc Document, expected *validate.ExpectedSummary) (*Result, error) {
	versions, err := a.cache.Versions(ctx, doc.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("agent: list cached versions: %w", err)
	}

	for i := range versions {
		v := versions[i]
		res, execErr := a.executeAndValidate(ctx, v.Code, doc, expected)
		if recErr := a.cache.RecordOutcome(ctx, doc.SourceKey, v.Version, execErr == nil); recErr != nil {
			a.log.Warn().Err(recErr).Str("source_key", doc.SourceKey).Int64("version", v.Version).
				Msg("failed to record cache outcome")
		}
		if execErr != nil {
			a.log.Info().Str("source_key", doc.SourceKey).Int64("version", v.Version).
				Str("error", execErr.Error()).Msg("cached version rejected")
			continue
		}
		res.Version = &v
		res.FromCache = true
		a.log.Info().Str("source_key", doc.SourceKey).Int64("version", v.Version).
			Int("rows", res.rowCount()).Msg("cached version accepted")
		return res, nil
	}
	return nil, nil
}

// generationReply is the structured reply requested from the model each step.
type generationReply struct {
	Code           string  `json:"code"`
	DetectedFormat string  `json:"detectedFormat"`
	DateFormat     string  `json:"dateFormat"`
	Confidence     float64 `json:"confidence"`
}

// generate is the bounded repair loop. The previous step's error string is
// the only context carried between steps; the model sees the error text, not
// a diff.
func (a *Agent) generate(ctx context.Context, doc Document, expected *validate.ExpectedSummary) (*Result, error) {
	var lastError, lastCode string
	current := stateGenerate

	for step := 1; step <= a.stepBudget; step++ {
		var reply generationReply
		var res *Result

		// One pass through Generate → Execute → Validate. Any failure routes
		// back to Generate with the error accumulated.
	steps:
		for current != stateAccept {
			switch current {
			case stateGenerate:
				prompt := generationPrompt(doc.Text, lastError, lastCode)
				if err := a.model.GenerateJSON(ctx, prompt, &reply); err != nil {
					lastError = fmt.Sprintf("your reply was not valid JSON: %v", err)
					break steps
				}
				lastCode = reply.Code
				current = stateExecute

			case stateExecute, stateValidate:
				var err error
				res, err = a.executeAndValidate(ctx, reply.Code, doc, expected)
				if err != nil {
					lastError = err.Error()
					break steps
				}
				current = stateAccept
			}
		}

		if current == stateAccept {
			version, err := a.cache.Append(ctx, codecache.Version{
				SourceKey:      doc.SourceKey,
				Code:           reply.Code,
				DetectedFormat: reply.DetectedFormat,
				DateFormat:     reply.DateFormat,
				Confidence:     reply.Confidence,
			})
			if err != nil {
				return nil, fmt.Errorf("agent: cache accepted code: %w", err)
			}
			res.Version = version
			res.StepsUsed = step
			a.log.Info().Str("source_key", doc.SourceKey).Int64("version", version.Version).
				Int("steps", step).Msg("generated code accepted")
			return res, nil
		}

		a.log.Info().Str("source_key", doc.SourceKey).Int("step", step).
			Str("error", lastError).Msg("generation step failed")
		current = stateGenerate
	}

	return nil, fmt.Errorf("%w after %d steps: last error: %s", ErrExhausted, a.stepBudget, lastError)
}

// executeAndValidate runs one code fragment in the sandbox and checks its
// totals against the expected summary. All failures come back as plain
// errors whose strings are safe to feed to the repair loop.
func (a *Agent) executeAndValidate(ctx context.Context, code string, doc Document, expected *validate.ExpectedSummary) (*Result, error) {
	rows, err := a.exec.Run(ctx, code, "text", doc.Text)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("code ran but extracted zero rows")
	}

	res := &Result{Kind: DetectRowKind(rows)}
	var totals validate.ExtractedTotals
	switch res.Kind {
	case RowsHoldings:
		res.Holdings, err = HoldingsFromRows(rows)
		if err != nil {
			return nil, err
		}
		totals = validate.TotalsOfHoldings(res.Holdings)
	default:
		res.Transactions, err = TransactionsFromRows(rows)
		if err != nil {
			return nil, err
		}
		totals = validate.TotalsOfTransactions(res.Transactions)
	}

	if err := validate.Check(totals, expected, a.tolerance); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Result) rowCount() int {
	if r.Kind == RowsHoldings {
		return len(r.Holdings)
	}
	return len(r.Transactions)
}
