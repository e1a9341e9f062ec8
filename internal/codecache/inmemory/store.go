// Package inmemory is a map-backed code cache store. Data is lost on restart;
// production deployments use the BigQuery store.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerline/statement-engine/internal/codecache"
)

// Store is safe for concurrent use, though the pipeline serializes writers
// per source key anyway.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]codecache.Version
	maxEver  map[string]int64
}

func NewStore() *Store {
	return &Store{
		versions: make(map[string][]codecache.Version),
		maxEver:  make(map[string]int64),
	}
}

// List implements codecache.Store. Versions come back newest first.
func (s *Store) List(ctx context.Context, sourceKey string) ([]codecache.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.versions[sourceKey]
	out := make([]codecache.Version, len(stored))
	copy(out, stored)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// Append implements codecache.Store.
func (s *Store) Append(ctx context.Context, v codecache.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.versions[v.SourceKey] {
		if existing.Version == v.Version {
			return fmt.Errorf("inmemory: version %d already exists for %s", v.Version, v.SourceKey)
		}
	}
	s.versions[v.SourceKey] = append(s.versions[v.SourceKey], v)
	if v.Version > s.maxEver[v.SourceKey] {
		s.maxEver[v.SourceKey] = v.Version
	}
	return nil
}

// RecordOutcome implements codecache.Store.
func (s *Store) RecordOutcome(ctx context.Context, sourceKey string, version int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.versions[sourceKey]
	for i := range stored {
		if stored[i].Version != version {
			continue
		}
		if success {
			stored[i].SuccessCount++
		} else {
			stored[i].FailCount++
		}
		return nil
	}
	return fmt.Errorf("inmemory: version %d not found for %s", version, sourceKey)
}

// Clear implements codecache.Store. The high-water mark survives so version
// numbers are never reused.
func (s *Store) Clear(ctx context.Context, sourceKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.versions[sourceKey])
	delete(s.versions, sourceKey)
	return removed, nil
}

// ListSources implements codecache.Store.
func (s *Store) ListSources(ctx context.Context) ([]codecache.SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]codecache.SourceInfo, 0, len(s.versions))
	for key, stored := range s.versions {
		out = append(out, codecache.SourceInfo{SourceKey: key, VersionCount: len(stored)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceKey < out[j].SourceKey })
	return out, nil
}

// MaxVersion implements codecache.Store.
func (s *Store) MaxVersion(ctx context.Context, sourceKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxEver[sourceKey], nil
}

var _ codecache.Store = (*Store)(nil)
