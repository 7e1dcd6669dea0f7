// Package chunk provides the Chunk value object: the smallest retrievable
// unit of document text, identified by (document id, sequence number).
package chunk

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one retrievable unit of a document. Its text never changes once
// written; re-embedding only swaps the vector reference.
type Chunk struct {
	id            string
	documentID    string
	sequence      int
	content       string
	startOffset   int
	endOffset     int
	page          *int
	modelName     string
	vectorPointID *string
	createdAt     time.Time
}

// NewChunk creates a Chunk with a fresh id. Offsets are character (rune)
// offsets into the document's extracted text; page may be nil.
func NewChunk(documentID string, sequence int, content string, startOffset, endOffset int, page *int, modelName string) Chunk {
	return Chunk{
		id:          uuid.NewString(),
		documentID:  documentID,
		sequence:    sequence,
		content:     content,
		startOffset: startOffset,
		endOffset:   endOffset,
		page:        copyInt(page),
		modelName:   modelName,
		createdAt:   time.Now().UTC(),
	}
}

// ReconstructChunk recreates a Chunk from persistence.
func ReconstructChunk(
	id, documentID string,
	sequence int,
	content string,
	startOffset, endOffset int,
	page *int,
	modelName string,
	vectorPointID *string,
	createdAt time.Time,
) Chunk {
	return Chunk{
		id:            id,
		documentID:    documentID,
		sequence:      sequence,
		content:       content,
		startOffset:   startOffset,
		endOffset:     endOffset,
		page:          copyInt(page),
		modelName:     modelName,
		vectorPointID: copyString(vectorPointID),
		createdAt:     createdAt,
	}
}

// ID returns the chunk id. It doubles as the vector point id.
func (c Chunk) ID() string { return c.id }

// DocumentID returns the owning document id.
func (c Chunk) DocumentID() string { return c.documentID }

// Sequence returns the 0-based reading-order position.
func (c Chunk) Sequence() int { return c.sequence }

// Content returns the chunk text.
func (c Chunk) Content() string { return c.content }

// StartOffset returns the first character offset (inclusive).
func (c Chunk) StartOffset() int { return c.startOffset }

// EndOffset returns the last character offset (exclusive).
func (c Chunk) EndOffset() int { return c.endOffset }

// Page returns the 1-based page number, or nil when unknown.
func (c Chunk) Page() *int { return copyInt(c.page) }

// ModelName returns the embedding model the chunk was last vectorised with.
func (c Chunk) ModelName() string { return c.modelName }

// VectorPointID returns the committed vector point id, or nil.
func (c Chunk) VectorPointID() *string { return copyString(c.vectorPointID) }

// HasVector reports whether a vector point has been committed.
func (c Chunk) HasVector() bool { return c.vectorPointID != nil }

// CreatedAt returns when the chunk was written.
func (c Chunk) CreatedAt() time.Time { return c.createdAt }

// WithVector returns a copy that references the given vector point and model.
func (c Chunk) WithVector(pointID, modelName string) Chunk {
	c.vectorPointID = &pointID
	c.modelName = modelName
	return c
}

// NeedsVector reports whether the chunk lacks a vector for the given model.
func (c Chunk) NeedsVector(modelName string) bool {
	return c.vectorPointID == nil || c.modelName != modelName
}

// IDs returns the ids of the given chunks in order.
func IDs(chunks []Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.id
	}
	return ids
}

// Texts returns the contents of the given chunks in order.
func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.content
	}
	return texts
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
