// Package validate decides whether extraction output can be trusted, by
// comparing aggregate totals from the extracted rows against a summary pulled
// independently from the same document by a cheaper model call.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/statement-engine/internal/domain"
	"github.com/ledgerline/statement-engine/internal/llm"
)

// DefaultTolerance absorbs rounding differences between the two extraction
// paths. It is an absolute amount, deliberately small relative to statement
// totals so it cannot hide real discrepancies.
var DefaultTolerance = decimal.NewFromInt(100)

// ExpectedSummary is what the cheap model read off the document. Nil fields
// were not stated on the statement and are simply not checked.
type ExpectedSummary struct {
	OpeningBalance *float64 `json:"openingBalance"`
	ClosingBalance *float64 `json:"closingBalance"`
	TotalInvested  *float64 `json:"totalInvested"`
	TotalCurrent   *float64 `json:"totalCurrent"`
	Count          *int     `json:"count"`
}

// IsEmpty reports whether the summary carries no checkable field at all.
func (s *ExpectedSummary) IsEmpty() bool {
	return s == nil || (s.OpeningBalance == nil && s.ClosingBalance == nil &&
		s.TotalInvested == nil && s.TotalCurrent == nil && s.Count == nil)
}

// ExtractedTotals are the aggregates computed from the code's own output.
type ExtractedTotals struct {
	OpeningBalance *float64
	ClosingBalance *float64
	TotalInvested  *float64
	TotalCurrent   *float64
	Count          int
}

// TotalsOfTransactions derives comparable totals from extracted transactions.
// Balances come from the first and last rows that carry one.
func TotalsOfTransactions(txs []domain.RawTransaction) ExtractedTotals {
	totals := ExtractedTotals{Count: len(txs)}
	for _, tx := range txs {
		if tx.Balance == nil {
			continue
		}
		if totals.OpeningBalance == nil {
			b := *tx.Balance
			totals.OpeningBalance = &b
		}
		b := *tx.Balance
		totals.ClosingBalance = &b
	}
	return totals
}

// TotalsOfHoldings derives comparable totals from extracted holdings.
func TotalsOfHoldings(holdings []domain.Holding) ExtractedTotals {
	totals := ExtractedTotals{Count: len(holdings)}
	invested := decimal.Zero
	current := decimal.Zero
	var haveInvested, haveCurrent bool
	for _, h := range holdings {
		if h.InvestedValue != nil {
			invested = invested.Add(decimal.NewFromFloat(*h.InvestedValue))
			haveInvested = true
		}
		if h.CurrentValue != nil {
			current = current.Add(decimal.NewFromFloat(*h.CurrentValue))
			haveCurrent = true
		}
	}
	if haveInvested {
		f := invested.InexactFloat64()
		totals.TotalInvested = &f
	}
	if haveCurrent {
		f := current.InexactFloat64()
		totals.TotalCurrent = &f
	}
	return totals
}

// Check accepts iff every field present in both sides agrees within the
// tolerance. Fields absent from the expected summary are not checked; an
// entirely empty summary skips validation so a failed summary extraction
// degrades gracefully instead of blocking all parsing.
func Check(extracted ExtractedTotals, expected *ExpectedSummary, tolerance decimal.Decimal) error {
	if expected.IsEmpty() {
		return nil
	}

	type pair struct {
		name      string
		extracted *float64
		expected  *float64
	}
	pairs := []pair{
		{"openingBalance", extracted.OpeningBalance, expected.OpeningBalance},
		{"closingBalance", extracted.ClosingBalance, expected.ClosingBalance},
		{"totalInvested", extracted.TotalInvested, expected.TotalInvested},
		{"totalCurrent", extracted.TotalCurrent, expected.TotalCurrent},
	}
	for _, p := range pairs {
		if p.extracted == nil || p.expected == nil {
			continue
		}
		got := decimal.NewFromFloat(*p.extracted)
		want := decimal.NewFromFloat(*p.expected)
		if got.Sub(want).Abs().GreaterThan(tolerance) {
			return fmt.Errorf("validation: %s mismatch: extracted %s, statement summary says %s (tolerance %s)",
				p.name, got.StringFixed(2), want.StringFixed(2), tolerance.String())
		}
	}

	if expected.Count != nil && extracted.Count != *expected.Count {
		return fmt.Errorf("validation: row count mismatch: extracted %d, statement summary says %d",
			extracted.Count, *expected.Count)
	}
	return nil
}

// ExtractSummary asks the model for the statement's own stated totals. This
// runs on the cheap model; its output only gates acceptance, a null-everything
// reply just disables the check.
func ExtractSummary(ctx context.Context, model llm.Model, documentText string) (*ExpectedSummary, error) {
	var b strings.Builder
	b.WriteString("Read the financial statement below and report its own summary figures.\n")
	b.WriteString("Output STRICT JSON only, no markdown, exactly this shape:\n")
	b.WriteString(`{"openingBalance": number|null, "closingBalance": number|null, "totalInvested": number|null, "totalCurrent": number|null, "count": integer|null}` + "\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use ONLY figures the statement states itself (summary boxes, totals rows). Do not compute anything.\n")
	b.WriteString("- count is the number of transactions or holdings the statement says it contains, when stated.\n")
	b.WriteString("- Use null for anything not stated.\n\n")
	b.WriteString("Statement:\n")
	b.WriteString(documentText)

	var summary ExpectedSummary
	if err := model.GenerateJSON(ctx, b.String(), &summary); err != nil {
		return nil, fmt.Errorf("extract summary: %w", err)
	}
	return &summary, nil
}
