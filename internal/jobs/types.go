// Package jobs defines the background work model for statement parsing.
// Parsing is serialized deliberately: the code cache's per-source versioning
// is not safe against concurrent writers for the same source key, so a single
// consumer is a correctness requirement, not a throughput choice.
package jobs

import (
	"context"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// ParseStatementJob represents one statement to parse end-to-end.
type ParseStatementJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// StatementID identifies the statement being parsed.
	StatementID string `json:"statement_id"`

	// GCSURI points at the uploaded file when it lives in object storage.
	GCSURI string `json:"gcs_uri,omitempty"`

	// FileName is the original upload name; its extension routes the
	// statement to the document or spreadsheet path.
	FileName string `json:"file_name"`

	// SourceHint is the institution name when the uploader knows it.
	SourceHint string `json:"source_hint,omitempty"`

	// Password unlocks protected documents, when supplied.
	Password string `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishParseStatement enqueues a statement parsing job.
	PublishParseStatement(ctx context.Context, job *ParseStatementJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs. The handler is called for one job at a
	// time; the next job is not dequeued until the handler returns.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for the in-flight job to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A returned error marks the job failed; it
// never stops the queue.
type JobHandler func(ctx context.Context, job *ParseStatementJob) error

// JobStore tracks job state across the queue lifecycle. The queue writes
// through SaveJob; ListJobs is for operators inspecting queue state.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ParseStatementJob) error

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ParseStatementJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// StatementID filters jobs by statement ID.
	StatementID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int
}
