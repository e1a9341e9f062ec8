package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyReplacer = strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", ",", "", " ", "")

// ParsedAmount is a cleaned statement amount. Amount is always the absolute
// magnitude; sign information is carried in Negative and, when the cell had a
// CR/DR suffix, in Suffix.
type ParsedAmount struct {
	Amount   decimal.Decimal
	Negative bool
	Suffix   string // "CR", "DR" or ""
}

// ParseAmount parses a decorated statement amount. It strips currency symbols,
// thousands separators and CR/DR suffixes, and treats parentheses and a
// leading minus as negative. Sign never travels through the magnitude;
// callers map it to a transaction type instead.
func ParseAmount(raw string) (ParsedAmount, error) {
	var p ParsedAmount
	s := strings.TrimSpace(raw)
	if s == "" {
		return p, fmt.Errorf("empty amount")
	}

	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CR") || strings.HasSuffix(upper, "DR") {
		p.Suffix = upper[len(upper)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	s = currencyReplacer.Replace(s)
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		p.Negative = true
		s = s[1 : len(s)-1]
	}

	if strings.HasPrefix(s, "-") {
		p.Negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if s == "" {
		return p, fmt.Errorf("amount %q has no digits", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return p, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	p.Amount = d.Abs()
	return p, nil
}
