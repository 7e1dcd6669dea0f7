// Package job provides the ProcessingJob entity that records one ingestion run.
package job

import (
	"time"

	"github.com/google/uuid"
	"github.com/laserpointlabs/odras/domain/chunk"
)

// Status is the state of a processing job.
type Status string

// Status values.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the job can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// String returns the status value.
func (s Status) String() string { return string(s) }

// ActiveStatuses lists the non-terminal statuses.
func ActiveStatuses() []string {
	return []string{string(StatusPending), string(StatusProcessing)}
}

// Params are the processing parameters of one ingestion run.
type Params struct {
	model     string
	strategy  chunk.Strategy
	chunkSize int
	overlap   int
}

// NewParams creates Params.
func NewParams(model string, strategy chunk.Strategy, chunkSize, overlap int) Params {
	return Params{model: model, strategy: strategy, chunkSize: chunkSize, overlap: overlap}
}

// Model returns the embedding model identifier.
func (p Params) Model() string { return p.model }

// Strategy returns the chunking strategy.
func (p Params) Strategy() chunk.Strategy { return p.strategy }

// ChunkSize returns the target chunk size in characters.
func (p Params) ChunkSize() int { return p.chunkSize }

// Overlap returns the overlap in characters.
func (p Params) Overlap() int { return p.overlap }

// Job tracks one ingestion run. A retried ingestion creates a new Job; a
// failed job is never overwritten.
type Job struct {
	id          string
	documentID  string
	status      Status
	params      Params
	errorDetail string
	startedAt   *time.Time
	completedAt *time.Time
	createdAt   time.Time
}

// NewJob creates a pending job for a document.
func NewJob(documentID string, params Params) Job {
	return Job{
		id:         uuid.NewString(),
		documentID: documentID,
		status:     StatusPending,
		params:     params,
		createdAt:  time.Now().UTC(),
	}
}

// ReconstructJob recreates a Job from persistence.
func ReconstructJob(
	id, documentID string,
	status Status,
	params Params,
	errorDetail string,
	startedAt, completedAt *time.Time,
	createdAt time.Time,
) Job {
	return Job{
		id:          id,
		documentID:  documentID,
		status:      status,
		params:      params,
		errorDetail: errorDetail,
		startedAt:   startedAt,
		completedAt: completedAt,
		createdAt:   createdAt,
	}
}

// ID returns the job id.
func (j Job) ID() string { return j.id }

// DocumentID returns the document being ingested.
func (j Job) DocumentID() string { return j.documentID }

// Status returns the job status.
func (j Job) Status() Status { return j.status }

// Params returns the processing parameters.
func (j Job) Params() Params { return j.params }

// Error returns the human-readable failure detail, empty unless failed.
func (j Job) Error() string { return j.errorDetail }

// StartedAt returns when processing began, or nil.
func (j Job) StartedAt() *time.Time { return j.startedAt }

// CompletedAt returns when the job reached a terminal state, or nil.
func (j Job) CompletedAt() *time.Time { return j.completedAt }

// CreatedAt returns when the job was created.
func (j Job) CreatedAt() time.Time { return j.createdAt }

// Start returns a copy in the processing state.
func (j Job) Start() Job {
	if j.status.IsTerminal() {
		return j
	}
	now := time.Now().UTC()
	j.status = StatusProcessing
	j.startedAt = &now
	return j
}

// Complete returns a copy in the complete state.
func (j Job) Complete() Job {
	if j.status.IsTerminal() {
		return j
	}
	now := time.Now().UTC()
	j.status = StatusComplete
	j.completedAt = &now
	return j
}

// Fail returns a copy in the failed state with the given detail.
func (j Job) Fail(detail string) Job {
	if j.status.IsTerminal() {
		return j
	}
	now := time.Now().UTC()
	j.status = StatusFailed
	j.errorDetail = detail
	j.completedAt = &now
	return j
}
