package categorize

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledgerline/statement-engine/internal/domain"
)

// wireRow is one parsed line of the model's CSV reply.
type wireRow struct {
	ID         string
	Category   string
	Confidence float64
	Summary    string
}

// encodeBatch serializes a batch as `id,type,amount,"description"` lines.
// CSV keeps embedded commas in descriptions unambiguous in both directions.
func encodeBatch(txs []domain.RawTransaction) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, tx := range txs {
		_ = w.Write([]string{tx.ID, string(tx.Type), strconv.FormatFloat(tx.Amount, 'f', 2, 64), tx.Description})
	}
	w.Flush()
	return b.String()
}

// decodeReply parses the model's CSV reply leniently. The reply is an
// untrusted wire format: short rows, bad quoting and junk lines are dropped
// per line, never fatal for the batch. Every surviving row is total: any
// missing or out-of-range field is replaced by its fallback.
func decodeReply(reply string, allowed map[string]struct{}) map[string]wireRow {
	out := make(map[string]wireRow)
	r := csv.NewReader(strings.NewReader(cleanReply(reply)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A mangled line; keep going, the absent ids get fallbacks.
			continue
		}
		row, ok := parseWireRow(record, allowed)
		if !ok {
			continue
		}
		out[row.ID] = row
	}
	return out
}

func parseWireRow(record []string, allowed map[string]struct{}) (wireRow, bool) {
	if len(record) < 2 {
		return wireRow{}, false
	}
	row := wireRow{
		ID:         strings.TrimSpace(record[0]),
		Category:   normalizeCategory(record[1], allowed),
		Confidence: fallbackConfidence,
	}
	if row.ID == "" {
		return wireRow{}, false
	}
	if len(record) > 2 {
		if c, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64); err == nil {
			row.Confidence = clamp01(c)
		}
	}
	if len(record) > 3 {
		row.Summary = strings.TrimSpace(record[3])
	}
	return row, true
}

// cleanReply drops markdown fences and an echoed header line if present.
func cleanReply(reply string) string {
	var lines []string
	for _, line := range strings.Split(reply, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "```") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(t), "id,") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// normalizeCategory validates a returned code against the allowed set.
// Unknown or empty categories become the fallback.
func normalizeCategory(raw string, allowed map[string]struct{}) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := allowed[c]; ok {
		return c
	}
	return fallbackCategory
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s…", strings.TrimSpace(string(runes[:n])))
}
