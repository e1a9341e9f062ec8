// Package codecache stores generated extraction code per statement source,
// versioned, with success/failure bookkeeping. It is the only long-lived
// state in the parsing engine: one good generation means later statements
// from the same institution parse without another model call.
package codecache

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Version is one generated code fragment for a source key. Versions are
// appended, never rewritten; only the outcome counters move afterwards.
type Version struct {
	SourceKey      string    `json:"sourceKey"`
	Version        int64     `json:"version"`
	Code           string    `json:"code"`
	DetectedFormat string    `json:"detectedFormat"`
	DateFormat     string    `json:"dateFormat"`
	Confidence     float64   `json:"confidence"`
	SuccessCount   int64     `json:"successCount"`
	FailCount      int64     `json:"failCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SourceInfo summarizes one cached source for the admin surface.
type SourceInfo struct {
	SourceKey    string `json:"sourceKey"`
	VersionCount int    `json:"versionCount"`
}

// Store is the persistence contract. List returns versions newest first.
// MaxVersion reports the highest version number ever assigned for the key,
// including cleared versions, so numbers are never reused.
type Store interface {
	List(ctx context.Context, sourceKey string) ([]Version, error)
	Append(ctx context.Context, v Version) error
	RecordOutcome(ctx context.Context, sourceKey string, version int64, success bool) error
	Clear(ctx context.Context, sourceKey string) (int, error)
	ListSources(ctx context.Context) ([]SourceInfo, error)
	MaxVersion(ctx context.Context, sourceKey string) (int64, error)
}

// Cache owns the version-number policy on top of a Store. It is not safe for
// concurrent writers on the same source key; the pipeline queue serializes
// statement processing for exactly this reason.
type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Versions lists cached code for a source, newest first. The generation agent
// tries them in exactly this order.
func (c *Cache) Versions(ctx context.Context, sourceKey string) ([]Version, error) {
	return c.store.List(ctx, sourceKey)
}

// Append stores new code under the next version number for the key.
func (c *Cache) Append(ctx context.Context, v Version) (*Version, error) {
	if v.SourceKey == "" {
		return nil, fmt.Errorf("codecache: append: empty source key")
	}
	if strings.TrimSpace(v.Code) == "" {
		return nil, fmt.Errorf("codecache: append: empty code")
	}
	maxVer, err := c.store.MaxVersion(ctx, v.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("codecache: append: max version: %w", err)
	}
	v.Version = maxVer + 1
	v.SuccessCount = 0
	v.FailCount = 0
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if err := c.store.Append(ctx, v); err != nil {
		return nil, fmt.Errorf("codecache: append: %w", err)
	}
	return &v, nil
}

// RecordOutcome bumps the success or failure counter of one version. Every
// execution attempt is recorded, including rejected cache trials.
func (c *Cache) RecordOutcome(ctx context.Context, sourceKey string, version int64, success bool) error {
	return c.store.RecordOutcome(ctx, sourceKey, version, success)
}

// Clear removes all cached versions for a source and reports how many were
// removed. Version numbers are not reset; a later Append continues from the
// historical maximum.
func (c *Cache) Clear(ctx context.Context, sourceKey string) (int, error) {
	return c.store.Clear(ctx, sourceKey)
}

// Sources lists every cached source key with its version count.
func (c *Cache) Sources(ctx context.Context) ([]SourceInfo, error) {
	return c.store.ListSources(ctx)
}

var keyCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// SourceKey derives the stable cache key for an institution and coarse
// document kind ("pdf", "sheet", "text"). "HDFC Bank" + "pdf" and
// "hdfc-bank" + "pdf" land on the same key.
func SourceKey(institution, kind string) string {
	inst := keyCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(institution)), "-")
	inst = strings.Trim(inst, "-")
	if inst == "" {
		inst = "unknown"
	}
	return inst + ":" + strings.ToLower(strings.TrimSpace(kind))
}
