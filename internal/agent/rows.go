package agent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ledgerline/statement-engine/internal/domain"
)

// RowKind says what the sandbox output rows represent.
type RowKind string

const (
	RowsTransactions RowKind = "transactions"
	RowsHoldings     RowKind = "holdings"
)

// DetectRowKind sniffs the output shape. Rows with date+amount are
// transactions; rows with value fields are holdings.
func DetectRowKind(rows []map[string]any) RowKind {
	for _, row := range rows {
		if _, ok := row["date"]; ok {
			return RowsTransactions
		}
		if _, ok := row["currentValue"]; ok {
			return RowsHoldings
		}
		if _, ok := row["investedValue"]; ok {
			return RowsHoldings
		}
	}
	return RowsTransactions
}

// TransactionsFromRows converts sandbox output into domain transactions.
// A malformed row fails the whole conversion: generated code is held to its
// output contract strictly, and the error string goes back into the repair
// loop.
func TransactionsFromRows(rows []map[string]any) ([]domain.RawTransaction, error) {
	out := make([]domain.RawTransaction, 0, len(rows))
	for i, row := range rows {
		date, err := stringField(row, "date")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		desc, err := stringField(row, "description")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		amount, err := numberField(row, "amount")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if amount <= 0 {
			return nil, fmt.Errorf("row %d: amount must be positive, got %v; report direction via the type field", i, amount)
		}

		txType := domain.TxDebit
		if t, _ := optionalString(row, "type"); strings.EqualFold(t, string(domain.TxCredit)) {
			txType = domain.TxCredit
		}

		tx := domain.RawTransaction{
			ID:          uuid.NewString(),
			Date:        date,
			Amount:      amount,
			Type:        txType,
			Description: desc,
		}
		if b, ok := optionalNumber(row, "balance"); ok {
			tx.Balance = &b
		}
		out = append(out, tx)
	}
	return out, nil
}

// HoldingsFromRows converts sandbox output into domain holdings.
func HoldingsFromRows(rows []map[string]any) ([]domain.Holding, error) {
	out := make([]domain.Holding, 0, len(rows))
	for i, row := range rows {
		name, err := stringField(row, "name")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		h := domain.Holding{Name: name}
		if v, ok := optionalNumber(row, "units"); ok {
			h.Units = &v
		}
		if v, ok := optionalNumber(row, "investedValue"); ok {
			h.InvestedValue = &v
		}
		if v, ok := optionalNumber(row, "currentValue"); ok {
			h.CurrentValue = &v
		}
		out = append(out, h)
	}
	return out, nil
}

func stringField(row map[string]any, key string) (string, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

func optionalString(row map[string]any, key string) (string, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func numberField(row map[string]any, key string) (float64, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing required field %q", key)
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, want number", key, v)
	}
	return f, nil
}

func optionalNumber(row map[string]any, key string) (float64, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, false
	}
	return asFloat(v)
}

// asFloat widens the numeric types goja exports.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
