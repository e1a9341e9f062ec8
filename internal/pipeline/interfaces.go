package pipeline

import (
	"context"

	"github.com/ledgerline/statement-engine/internal/domain"
)

// PersistedTransaction is a categorized transaction ready for storage,
// keyed by its content hash for dedupe.
type PersistedTransaction struct {
	domain.RawTransaction
	Hash       string
	Category   string
	Confidence float64
	Summary    string
}

// TransactionStore is the persistence boundary. Implementations must dedupe
// on Hash: upserting the same content twice inserts zero new rows the second
// time.
type TransactionStore interface {
	// UpsertTransactions stores transactions for a statement and returns how
	// many rows were actually new.
	UpsertTransactions(ctx context.Context, statementID string, txs []PersistedTransaction) (int, error)

	// UpsertHoldings stores holdings for a statement and returns how many
	// rows were actually new.
	UpsertHoldings(ctx context.Context, statementID string, holdings []domain.Holding) (int, error)

	// DeleteStatement removes everything stored for a statement. Used to
	// roll back a partially persisted failed parse.
	DeleteStatement(ctx context.Context, statementID string) error
}
