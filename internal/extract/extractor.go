package extract

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledgerline/statement-engine/internal/domain"
)

// fallbackDateLayouts are tried after the configured format. Institutions lie
// about their own formats often enough that this list earns its keep.
var fallbackDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"02-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"Jan 02, 2006",
	"2006/01/02",
	"02.01.2006",
	"02/01/06",
	"20060102",
}

// configLayouts maps the format tokens used in parser configs to Go layouts.
var configLayouts = map[string]string{
	"YYYY-MM-DD":   "2006-01-02",
	"DD/MM/YYYY":   "02/01/2006",
	"MM/DD/YYYY":   "01/02/2006",
	"DD-MM-YYYY":   "02-01-2006",
	"DD-MMM-YYYY":  "02-Jan-2006",
	"DD-MMM-YY":    "02-Jan-06",
	"DD MMM YYYY":  "02 Jan 2006",
	"MMM DD, YYYY": "Jan 02, 2006",
	"YYYY/MM/DD":   "2006/01/02",
	"DD.MM.YYYY":   "02.01.2006",
	"DD/MM/YY":     "02/01/06",
}

// Result carries the extracted transactions plus row-level bookkeeping.
// Malformed rows are skipped, never fatal.
type Result struct {
	Transactions []domain.RawTransaction
	SkippedRows  int
}

// Extractor applies a ParserConfig to tabular rows.
type Extractor struct {
	log zerolog.Logger
}

func NewExtractor(log zerolog.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract walks rows from the configured data start and emits one transaction
// per well-formed row. Rows with an unparseable date, empty description or
// non-positive amount are counted and skipped.
func (e *Extractor) Extract(rows [][]string, cfg *ParserConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	start := cfg.DataStartRow
	if start > len(rows) {
		start = len(rows)
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		tx, ok := e.extractRow(row, cfg)
		if !ok {
			res.SkippedRows++
			e.log.Debug().Int("row", i).Msg("skipping malformed row")
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

func (e *Extractor) extractRow(row []string, cfg *ParserConfig) (domain.RawTransaction, bool) {
	var tx domain.RawTransaction

	date, ok := resolveDate(cell(row, cfg.DateColumn), cfg.DateFormat)
	if !ok {
		return tx, false
	}

	desc := strings.TrimSpace(cell(row, cfg.DescriptionColumn))
	if desc == "" {
		return tx, false
	}

	var amount ParsedAmount
	var txType domain.TxType
	switch cfg.AmountFormat {
	case AmountSplit:
		amount, txType, ok = resolveSplitAmount(row, cfg)
	default:
		amount, txType, ok = resolveSingleAmount(row, cfg)
	}
	if !ok || !amount.Amount.IsPositive() {
		return tx, false
	}

	tx = domain.RawTransaction{
		ID:          uuid.NewString(),
		Date:        date,
		Amount:      amount.Amount.InexactFloat64(),
		Type:        txType,
		Description: desc,
	}

	if cfg.BalanceColumn != nil {
		if parsed, err := ParseAmount(cell(row, *cfg.BalanceColumn)); err == nil {
			b := parsed.Amount.InexactFloat64()
			if parsed.Negative {
				b = -b
			}
			tx.Balance = &b
		}
	}
	return tx, true
}

// resolveDate tries the configured format, then the fallback list, then a
// last-ditch generic parse, and normalizes to YYYY-MM-DD.
func resolveDate(raw, format string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if layout, ok := configLayouts[format]; ok {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

func resolveSingleAmount(row []string, cfg *ParserConfig) (ParsedAmount, domain.TxType, bool) {
	if cfg.AmountColumn == nil {
		return ParsedAmount{}, "", false
	}
	parsed, err := ParseAmount(cell(row, *cfg.AmountColumn))
	if err != nil {
		return ParsedAmount{}, "", false
	}

	txType := domain.TxDebit
	if cfg.TypeDetection == DetectByColumn && cfg.TypeColumn != nil {
		if isCreditMarker(cell(row, *cfg.TypeColumn)) {
			txType = domain.TxCredit
		}
	} else {
		// Sign detection: money in is positive, money out carries a minus,
		// parens or a DR suffix.
		switch {
		case parsed.Suffix == "CR":
			txType = domain.TxCredit
		case parsed.Suffix == "DR" || parsed.Negative:
			txType = domain.TxDebit
		default:
			txType = domain.TxCredit
		}
	}
	return parsed, txType, true
}

// resolveSplitAmount reads credit and debit columns independently; whichever
// holds a positive value wins, credit taking precedence on ties.
func resolveSplitAmount(row []string, cfg *ParserConfig) (ParsedAmount, domain.TxType, bool) {
	if credit, err := ParseAmount(cell(row, *cfg.CreditColumn)); err == nil && credit.Amount.IsPositive() {
		return credit, domain.TxCredit, true
	}
	if debit, err := ParseAmount(cell(row, *cfg.DebitColumn)); err == nil && debit.Amount.IsPositive() {
		return debit, domain.TxDebit, true
	}
	return ParsedAmount{}, "", false
}

func isCreditMarker(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	for _, marker := range []string{"cr", "credit", "deposit"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
