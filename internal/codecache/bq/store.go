// Package bq is the BigQuery-backed code cache store. Clears are soft
// deletes, which is what keeps version numbers monotonic for a source key
// across administrative cache clears.
package bq

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/ledgerline/statement-engine/internal/codecache"
)

const tableID = "generated_code_versions"

// versionRow mirrors the generated_code_versions table schema.
type versionRow struct {
	SourceKey      string                 `bigquery:"source_key"`
	Version        int64                  `bigquery:"version"`
	Code           string                 `bigquery:"code"`
	DetectedFormat string                 `bigquery:"detected_format"`
	DateFormat     string                 `bigquery:"date_format"`
	Confidence     float64                `bigquery:"confidence"`
	SuccessCount   int64                  `bigquery:"success_count"`
	FailCount      int64                  `bigquery:"fail_count"`
	CreatedTS      time.Time              `bigquery:"created_ts"`
	CreatedDate    civil.Date             `bigquery:"created_date"` // partition column
	DeletedTS      bigquery.NullTimestamp `bigquery:"deleted_ts"`
}

// Store implements codecache.Store on BigQuery.
type Store struct {
	client  *bigquery.Client
	dataset string
}

func NewStore(ctx context.Context, projectID, dataset string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bq.NewStore: creating client: %w", err)
	}
	return &Store{client: client, dataset: dataset}, nil
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// List implements codecache.Store, newest version first.
func (s *Store) List(ctx context.Context, sourceKey string) ([]codecache.Version, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT source_key, version, code, detected_format, date_format,
		       confidence, success_count, fail_count, created_ts, deleted_ts
		FROM %s.%s
		WHERE source_key = @source_key AND deleted_ts IS NULL
		ORDER BY version DESC
	`, s.dataset, tableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source_key", Value: sourceKey},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bq.List: read: %w", err)
	}

	var out []codecache.Version
	for {
		var row versionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bq.List: iterate: %w", err)
		}
		out = append(out, toVersion(row))
	}
	return out, nil
}

// Append implements codecache.Store.
func (s *Store) Append(ctx context.Context, v codecache.Version) error {
	inserter := s.client.Dataset(s.dataset).Table(tableID).Inserter()
	row := &versionRow{
		SourceKey:      v.SourceKey,
		Version:        v.Version,
		Code:           v.Code,
		DetectedFormat: v.DetectedFormat,
		DateFormat:     v.DateFormat,
		Confidence:     v.Confidence,
		SuccessCount:   v.SuccessCount,
		FailCount:      v.FailCount,
		CreatedTS:      v.CreatedAt,
		CreatedDate:    civil.DateOf(v.CreatedAt),
	}
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("bq.Append: inserting row: %w", err)
	}
	return nil
}

// RecordOutcome implements codecache.Store.
func (s *Store) RecordOutcome(ctx context.Context, sourceKey string, version int64, success bool) error {
	column := "fail_count"
	if success {
		column = "success_count"
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET %s = %s + 1
		WHERE source_key = @source_key AND version = @version
	`, s.dataset, tableID, column, column))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source_key", Value: sourceKey},
		{Name: "version", Value: version},
	}
	return runAndWait(ctx, q, "bq.RecordOutcome")
}

// Clear implements codecache.Store via soft delete.
func (s *Store) Clear(ctx context.Context, sourceKey string) (int, error) {
	versions, err := s.List(ctx, sourceKey)
	if err != nil {
		return 0, fmt.Errorf("bq.Clear: %w", err)
	}
	if len(versions) == 0 {
		return 0, nil
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET deleted_ts = @deleted_ts
		WHERE source_key = @source_key AND deleted_ts IS NULL
	`, s.dataset, tableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deleted_ts", Value: time.Now().UTC()},
		{Name: "source_key", Value: sourceKey},
	}
	if err := runAndWait(ctx, q, "bq.Clear"); err != nil {
		return 0, err
	}
	return len(versions), nil
}

// ListSources implements codecache.Store.
func (s *Store) ListSources(ctx context.Context) ([]codecache.SourceInfo, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT source_key, COUNT(*) AS version_count
		FROM %s.%s
		WHERE deleted_ts IS NULL
		GROUP BY source_key
		ORDER BY source_key
	`, s.dataset, tableID))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bq.ListSources: read: %w", err)
	}

	var out []codecache.SourceInfo
	for {
		var row struct {
			SourceKey    string `bigquery:"source_key"`
			VersionCount int64  `bigquery:"version_count"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bq.ListSources: iterate: %w", err)
		}
		out = append(out, codecache.SourceInfo{SourceKey: row.SourceKey, VersionCount: int(row.VersionCount)})
	}
	return out, nil
}

// MaxVersion implements codecache.Store. Soft-deleted rows count, so a fresh
// generation after a clear never reuses a number.
func (s *Store) MaxVersion(ctx context.Context, sourceKey string) (int64, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT IFNULL(MAX(version), 0) AS max_version
		FROM %s.%s
		WHERE source_key = @source_key
	`, s.dataset, tableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source_key", Value: sourceKey},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("bq.MaxVersion: read: %w", err)
	}

	var row struct {
		MaxVersion int64 `bigquery:"max_version"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, fmt.Errorf("bq.MaxVersion: iterate: %w", err)
	}
	return row.MaxVersion, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}

func toVersion(row versionRow) codecache.Version {
	return codecache.Version{
		SourceKey:      row.SourceKey,
		Version:        row.Version,
		Code:           row.Code,
		DetectedFormat: row.DetectedFormat,
		DateFormat:     row.DateFormat,
		Confidence:     row.Confidence,
		SuccessCount:   row.SuccessCount,
		FailCount:      row.FailCount,
		CreatedAt:      row.CreatedTS,
	}
}

var _ codecache.Store = (*Store)(nil)
