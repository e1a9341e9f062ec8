// Package extract turns tabular statement rows into transactions, driven by a
// declarative ParserConfig instead of per-institution code.
package extract

import "fmt"

// AmountFormat says whether amounts live in one signed column or in separate
// credit/debit columns.
type AmountFormat string

const (
	AmountSingle AmountFormat = "single"
	AmountSplit  AmountFormat = "split"
)

// TypeDetection says how credit vs debit is decided in single-column mode.
type TypeDetection string

const (
	DetectByColumn TypeDetection = "column"
	DetectBySign   TypeDetection = "sign"
	DetectBySplit  TypeDetection = "split"
)

// ParserConfig is the declarative mapping from sheet columns to transaction
// fields. It is produced by the config generator (or supplied manually) and
// lives for one parse attempt.
type ParserConfig struct {
	DateColumn        int  `json:"dateColumn"`
	AmountColumn      *int `json:"amountColumn,omitempty"`
	CreditColumn      *int `json:"creditColumn,omitempty"`
	DebitColumn       *int `json:"debitColumn,omitempty"`
	DescriptionColumn int  `json:"descriptionColumn"`
	TypeColumn        *int `json:"typeColumn,omitempty"`
	BalanceColumn     *int `json:"balanceColumn,omitempty"`

	HeaderRow    int `json:"headerRow"`
	DataStartRow int `json:"dataStartRow"`

	DateFormat    string        `json:"dateFormat"`
	AmountFormat  AmountFormat  `json:"amountFormat"`
	TypeDetection TypeDetection `json:"typeDetection"`
}

// Validate checks the structural invariants: split mode requires credit and
// debit columns and forbids an amount column, single mode the reverse.
func (c *ParserConfig) Validate() error {
	switch c.AmountFormat {
	case AmountSingle:
		if c.AmountColumn == nil {
			return fmt.Errorf("parser config: single amount format requires amountColumn")
		}
		if c.CreditColumn != nil || c.DebitColumn != nil {
			return fmt.Errorf("parser config: single amount format forbids credit/debit columns")
		}
	case AmountSplit:
		if c.CreditColumn == nil || c.DebitColumn == nil {
			return fmt.Errorf("parser config: split amount format requires creditColumn and debitColumn")
		}
		if c.AmountColumn != nil {
			return fmt.Errorf("parser config: split amount format forbids amountColumn")
		}
	default:
		return fmt.Errorf("parser config: unknown amount format %q", c.AmountFormat)
	}
	if c.DataStartRow < 0 || c.HeaderRow < 0 {
		return fmt.Errorf("parser config: negative row index")
	}
	switch c.TypeDetection {
	case DetectByColumn, DetectBySign, DetectBySplit, "":
	default:
		return fmt.Errorf("parser config: unknown type detection %q", c.TypeDetection)
	}
	return nil
}
