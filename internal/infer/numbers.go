package infer

import (
	"strconv"
	"strings"
)

// parseCleanedFloat parses a decorated numeric cell, preserving sign.
// Negative values arrive either with a leading minus or in accounting
// parentheses.
func parseCleanedFloat(v string) (float64, bool) {
	s := strings.TrimSpace(v)
	negative := strings.HasPrefix(s, "-") ||
		(strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	cleaned := cleanNumeric(s)
	if cleaned == "" || !numericPattern.MatchString(cleaned) {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}
