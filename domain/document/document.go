// Package document provides the Document aggregate: one ingested artifact
// owned by a project.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the processing status of a document.
type Status string

// Status values.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusComplete, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown document status %q", s)
	}
}

// String returns the status value.
func (s Status) String() string { return string(s) }

// Stats records what the last successful ingestion produced.
type Stats struct {
	chunkCount  int
	modelName   string
	dimension   int
	startedAt   time.Time
	completedAt time.Time
}

// NewStats creates Stats.
func NewStats(chunkCount int, modelName string, dimension int, startedAt, completedAt time.Time) Stats {
	return Stats{
		chunkCount:  chunkCount,
		modelName:   modelName,
		dimension:   dimension,
		startedAt:   startedAt,
		completedAt: completedAt,
	}
}

// ChunkCount returns the number of chunks committed.
func (s Stats) ChunkCount() int { return s.chunkCount }

// ModelName returns the embedding model used.
func (s Stats) ModelName() string { return s.modelName }

// Dimension returns the embedding dimensionality.
func (s Stats) Dimension() int { return s.dimension }

// StartedAt returns when processing started.
func (s Stats) StartedAt() time.Time { return s.startedAt }

// CompletedAt returns when processing completed.
func (s Stats) CompletedAt() time.Time { return s.completedAt }

// IsZero reports whether no ingestion has completed yet.
func (s Stats) IsZero() bool { return s.modelName == "" && s.chunkCount == 0 }

// Document represents an uploaded artifact. It is mutated only by the
// ingestion pipeline and never by search.
type Document struct {
	id        string
	projectID string
	title     string
	docType   string
	status    Status
	stats     Stats
	createdAt time.Time
	updatedAt time.Time
}

// NewDocument creates a pending Document with a fresh id.
func NewDocument(projectID, title, docType string) (Document, error) {
	if strings.TrimSpace(projectID) == "" {
		return Document{}, fmt.Errorf("document: project id is required")
	}
	now := time.Now().UTC()
	return Document{
		id:        uuid.NewString(),
		projectID: projectID,
		title:     title,
		docType:   docType,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructDocument recreates a Document from persistence.
func ReconstructDocument(
	id, projectID, title, docType string,
	status Status,
	stats Stats,
	createdAt, updatedAt time.Time,
) Document {
	return Document{
		id:        id,
		projectID: projectID,
		title:     title,
		docType:   docType,
		status:    status,
		stats:     stats,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the document id.
func (d Document) ID() string { return d.id }

// ProjectID returns the owning project id.
func (d Document) ProjectID() string { return d.projectID }

// Title returns the title.
func (d Document) Title() string { return d.title }

// Type returns the document type.
func (d Document) Type() string { return d.docType }

// Status returns the processing status.
func (d Document) Status() Status { return d.status }

// Stats returns the processing statistics.
func (d Document) Stats() Stats { return d.stats }

// CreatedAt returns the creation time.
func (d Document) CreatedAt() time.Time { return d.createdAt }

// UpdatedAt returns the last update time.
func (d Document) UpdatedAt() time.Time { return d.updatedAt }

// WithStatus returns a copy with the given status.
func (d Document) WithStatus(status Status) Document {
	d.status = status
	d.updatedAt = time.Now().UTC()
	return d
}

// Completed returns a copy marked complete with the given statistics.
func (d Document) Completed(stats Stats) Document {
	d.status = StatusComplete
	d.stats = stats
	d.updatedAt = time.Now().UTC()
	return d
}
