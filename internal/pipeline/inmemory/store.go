// Package inmemory is a map-backed transaction store with content-hash
// dedupe, for single-instance deployments and tests.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerline/statement-engine/internal/domain"
	"github.com/ledgerline/statement-engine/internal/pipeline"
)

// Store keeps transactions per statement and a global hash index. Upserting
// the same content twice inserts nothing new the second time.
type Store struct {
	mu           sync.RWMutex
	transactions map[string][]pipeline.PersistedTransaction // statementID -> rows
	holdings     map[string][]domain.Holding
	hashes       map[string]string // content hash -> statementID
}

func NewStore() *Store {
	return &Store{
		transactions: make(map[string][]pipeline.PersistedTransaction),
		holdings:     make(map[string][]domain.Holding),
		hashes:       make(map[string]string),
	}
}

// UpsertTransactions implements pipeline.TransactionStore.
func (s *Store) UpsertTransactions(ctx context.Context, statementID string, txs []pipeline.PersistedTransaction) (int, error) {
	if statementID == "" {
		return 0, fmt.Errorf("inmemory: statement ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, tx := range txs {
		if _, exists := s.hashes[tx.Hash]; exists {
			continue
		}
		s.hashes[tx.Hash] = statementID
		s.transactions[statementID] = append(s.transactions[statementID], tx)
		inserted++
	}
	return inserted, nil
}

// UpsertHoldings implements pipeline.TransactionStore.
func (s *Store) UpsertHoldings(ctx context.Context, statementID string, holdings []domain.Holding) (int, error) {
	if statementID == "" {
		return 0, fmt.Errorf("inmemory: statement ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.holdings[statementID]))
	for _, h := range s.holdings[statementID] {
		existing[h.Name] = struct{}{}
	}

	inserted := 0
	for _, h := range holdings {
		if _, ok := existing[h.Name]; ok {
			continue
		}
		existing[h.Name] = struct{}{}
		s.holdings[statementID] = append(s.holdings[statementID], h)
		inserted++
	}
	return inserted, nil
}

// DeleteStatement implements pipeline.TransactionStore.
func (s *Store) DeleteStatement(ctx context.Context, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions[statementID] {
		delete(s.hashes, tx.Hash)
	}
	delete(s.transactions, statementID)
	delete(s.holdings, statementID)
	return nil
}

// Transactions returns the stored rows for a statement, for tests and the
// CLI summary output.
func (s *Store) Transactions(statementID string) []pipeline.PersistedTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pipeline.PersistedTransaction, len(s.transactions[statementID]))
	copy(out, s.transactions[statementID])
	return out
}

var _ pipeline.TransactionStore = (*Store)(nil)
