package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TxType tells whether money moved in or out. Amounts are always positive;
// direction lives here and nowhere else.
type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// RawTransaction is one extracted statement line before categorization.
// ID is generated locally and only correlates a transaction with its
// categorization result; it is never a storage key.
type RawTransaction struct {
	ID          string
	Date        string // YYYY-MM-DD
	Amount      float64
	Type        TxType
	Description string
	Balance     *float64
}

// CategorizedTransaction joins back to a RawTransaction by ID.
type CategorizedTransaction struct {
	ID         string
	Category   string
	Confidence float64 // clamped to [0,1]
	Summary    string
}

// Holding is one extracted investment-statement position.
type Holding struct {
	Name          string
	Units         *float64
	InvestedValue *float64
	CurrentValue  *float64
}

// ContentHash identifies a transaction by what it says, not where it came
// from. Parsing the same statement twice produces the same hashes, which is
// what the persistence layer dedupes on.
func ContentHash(date string, amount float64, description string) string {
	normalized := fmt.Sprintf("%s|%.2f|%s", date, amount, strings.ToLower(strings.TrimSpace(description)))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Period returns the earliest and latest transaction dates in txs.
// Both are empty when txs is empty or no date parses.
func Period(txs []RawTransaction) (start, end string) {
	for _, tx := range txs {
		if _, err := time.Parse("2006-01-02", tx.Date); err != nil {
			continue
		}
		if start == "" || tx.Date < start {
			start = tx.Date
		}
		if end == "" || tx.Date > end {
			end = tx.Date
		}
	}
	return start, end
}
