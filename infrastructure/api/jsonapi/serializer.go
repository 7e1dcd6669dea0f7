package jsonapi

import (
	"strconv"
	"time"

	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/domain/task"
)

// Resource type names.
const (
	TypeDocument        = "document"
	TypeChunk           = "chunk"
	TypeJob             = "ingestion_job"
	TypeSearchResult    = "search_result"
	TypeTask            = "task"
	TypeReconcileReport = "reconcile_report"
)

// DocumentAttributes represents document attributes in JSON:API format.
type DocumentAttributes struct {
	ProjectID string         `json:"project_id"`
	Title     string         `json:"title"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Stats     *DocumentStats `json:"stats,omitempty"`
	CreatedAt DateTime       `json:"created_at"`
	UpdatedAt DateTime       `json:"updated_at"`
}

// DocumentStats represents the outcome of the last completed ingestion.
type DocumentStats struct {
	ChunkCount  int      `json:"chunk_count"`
	Model       string   `json:"model"`
	Dimension   int      `json:"dimension"`
	StartedAt   DateTime `json:"started_at"`
	CompletedAt DateTime `json:"completed_at"`
}

// ChunkAttributes represents chunk attributes in JSON:API format.
type ChunkAttributes struct {
	DocumentID  string `json:"document_id"`
	Sequence    int    `json:"sequence"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Page        *int   `json:"page,omitempty"`
	Model       string `json:"model"`
	HasVector   bool   `json:"has_vector"`
}

// JobAttributes represents ingestion job attributes in JSON:API format.
type JobAttributes struct {
	DocumentID  string    `json:"document_id"`
	Status      string    `json:"status"`
	Model       string    `json:"model"`
	Strategy    string    `json:"strategy"`
	ChunkSize   int       `json:"chunk_size"`
	Overlap     int       `json:"overlap"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   DateTime  `json:"created_at"`
	StartedAt   *DateTime `json:"started_at,omitempty"`
	CompletedAt *DateTime `json:"completed_at,omitempty"`
}

// SearchResultAttributes represents one search hit in JSON:API format.
type SearchResultAttributes struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	DocumentType  string  `json:"document_type"`
	ProjectID     string  `json:"project_id"`
	Sequence      int     `json:"sequence"`
	Content       string  `json:"content"`
	StartOffset   int     `json:"start_offset"`
	EndOffset     int     `json:"end_offset"`
	Page          *int    `json:"page,omitempty"`
	Score         float64 `json:"score"`
}

// TaskAttributes represents a queued task in JSON:API format.
type TaskAttributes struct {
	Type      string         `json:"type"`
	Priority  int            `json:"priority"`
	Payload   map[string]any `json:"payload"`
	CreatedAt DateTime       `json:"created_at"`
	UpdatedAt DateTime       `json:"updated_at"`
}

// ReconcileReportAttributes represents a reconciliation pass in JSON:API format.
type ReconcileReportAttributes struct {
	Repaired       int   `json:"repaired"`
	OrphansRemoved int   `json:"orphans_removed"`
	Failed         int   `json:"failed"`
	ElapsedMillis  int64 `json:"elapsed_ms"`
}

// Serializer converts domain objects to JSON:API resources.
type Serializer struct{}

// NewSerializer creates a new Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// DocumentResource converts a document to a JSON:API resource.
func (s *Serializer) DocumentResource(d document.Document) *Resource {
	attrs := &DocumentAttributes{
		ProjectID: d.ProjectID(),
		Title:     d.Title(),
		Type:      d.Type(),
		Status:    d.Status().String(),
		CreatedAt: NewDateTime(d.CreatedAt()),
		UpdatedAt: NewDateTime(d.UpdatedAt()),
	}
	if stats := d.Stats(); !stats.IsZero() {
		attrs.Stats = &DocumentStats{
			ChunkCount:  stats.ChunkCount(),
			Model:       stats.ModelName(),
			Dimension:   stats.Dimension(),
			StartedAt:   NewDateTime(stats.StartedAt()),
			CompletedAt: NewDateTime(stats.CompletedAt()),
		}
	}

	resource := NewResource(TypeDocument, d.ID(), attrs)
	resource.Links = &Links{Self: "/api/v1/documents/" + d.ID()}
	return resource
}

// DocumentResources converts multiple documents to JSON:API resources.
func (s *Serializer) DocumentResources(docs []document.Document) []*Resource {
	resources := make([]*Resource, len(docs))
	for i, d := range docs {
		resources[i] = s.DocumentResource(d)
	}
	return resources
}

// ChunkResource converts a chunk to a JSON:API resource.
func (s *Serializer) ChunkResource(c chunk.Chunk) *Resource {
	attrs := &ChunkAttributes{
		DocumentID:  c.DocumentID(),
		Sequence:    c.Sequence(),
		Content:     c.Content(),
		StartOffset: c.StartOffset(),
		EndOffset:   c.EndOffset(),
		Page:        c.Page(),
		Model:       c.ModelName(),
		HasVector:   c.HasVector(),
	}
	return NewResource(TypeChunk, c.ID(), attrs)
}

// ChunkResources converts multiple chunks to JSON:API resources.
func (s *Serializer) ChunkResources(chunks []chunk.Chunk) []*Resource {
	resources := make([]*Resource, len(chunks))
	for i, c := range chunks {
		resources[i] = s.ChunkResource(c)
	}
	return resources
}

// JobResource converts an ingestion job to a JSON:API resource.
func (s *Serializer) JobResource(j job.Job) *Resource {
	params := j.Params()
	attrs := &JobAttributes{
		DocumentID:  j.DocumentID(),
		Status:      j.Status().String(),
		Model:       params.Model(),
		Strategy:    string(params.Strategy()),
		ChunkSize:   params.ChunkSize(),
		Overlap:     params.Overlap(),
		Error:       j.Error(),
		CreatedAt:   NewDateTime(j.CreatedAt()),
		StartedAt:   optionalDateTime(j.StartedAt()),
		CompletedAt: optionalDateTime(j.CompletedAt()),
	}

	resource := NewResource(TypeJob, j.ID(), attrs)
	resource.Links = &Links{Self: "/api/v1/jobs/" + j.ID()}
	resource.Relationships = Relationships{
		"document": &Relationship{
			Data:  ResourceIdentifier{Type: TypeDocument, ID: j.DocumentID()},
			Links: &Links{Self: "/api/v1/documents/" + j.DocumentID()},
		},
	}
	return resource
}

// JobResources converts multiple jobs to JSON:API resources.
func (s *Serializer) JobResources(jobs []job.Job) []*Resource {
	resources := make([]*Resource, len(jobs))
	for i, j := range jobs {
		resources[i] = s.JobResource(j)
	}
	return resources
}

// SearchResultResource converts a search hit to a JSON:API resource.
func (s *Serializer) SearchResultResource(r search.Result) *Resource {
	attrs := &SearchResultAttributes{
		DocumentID:    r.DocumentID(),
		DocumentTitle: r.DocumentTitle(),
		DocumentType:  r.DocumentType(),
		ProjectID:     r.ProjectID(),
		Sequence:      r.Sequence(),
		Content:       r.Content(),
		StartOffset:   r.StartOffset(),
		EndOffset:     r.EndOffset(),
		Page:          r.Page(),
		Score:         r.Score(),
	}
	return NewResource(TypeSearchResult, r.ChunkID(), attrs)
}

// SearchResponse converts search results to a JSON:API document.
func (s *Serializer) SearchResponse(results search.Results) *Document {
	hits := results.Hits()
	resources := make([]*Resource, len(hits))
	for i, hit := range hits {
		resources[i] = s.SearchResultResource(hit)
	}
	return &Document{
		Data: resources,
		Meta: &Meta{
			"total_found": results.TotalFound(),
			"elapsed_ms":  results.ElapsedMillis(),
		},
	}
}

// TaskResource converts a queued task to a JSON:API resource.
func (s *Serializer) TaskResource(t task.Task) *Resource {
	attrs := &TaskAttributes{
		Type:      t.Operation().String(),
		Priority:  t.Priority(),
		Payload:   t.Payload(),
		CreatedAt: NewDateTime(t.CreatedAt()),
		UpdatedAt: NewDateTime(t.UpdatedAt()),
	}
	return NewResource(TypeTask, strconv.FormatInt(t.ID(), 10), attrs)
}

// TaskResources converts multiple tasks to JSON:API resources.
func (s *Serializer) TaskResources(tasks []task.Task) []*Resource {
	resources := make([]*Resource, len(tasks))
	for i, t := range tasks {
		resources[i] = s.TaskResource(t)
	}
	return resources
}

// ReconcileReportResource converts a reconciliation summary to a JSON:API resource.
func (s *Serializer) ReconcileReportResource(collection string, repaired, orphansRemoved, failed int, elapsed time.Duration) *Resource {
	attrs := &ReconcileReportAttributes{
		Repaired:       repaired,
		OrphansRemoved: orphansRemoved,
		Failed:         failed,
		ElapsedMillis:  elapsed.Milliseconds(),
	}
	return NewResource(TypeReconcileReport, collection, attrs)
}

func optionalDateTime(t *time.Time) *DateTime {
	if t == nil {
		return nil
	}
	return NewDateTime(*t).Ptr()
}
