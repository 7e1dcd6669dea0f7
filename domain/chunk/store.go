package chunk

import (
	"context"

	"github.com/laserpointlabs/odras/domain/repository"
)

// Hydrated pairs a chunk with the fields of its document that search results carry.
type Hydrated struct {
	Chunk         Chunk
	ProjectID     string
	DocumentTitle string
	DocumentType  string
}

// Store persists chunks. Chunk text is write-once.
type Store interface {
	// ReplaceForDocument deletes the document's existing chunks and inserts
	// the given ones in a single transaction.
	ReplaceForDocument(ctx context.Context, documentID string, chunks []Chunk) error
	// Find returns chunks matching the options.
	Find(ctx context.Context, options ...repository.Option) ([]Chunk, error)
	// FindHydrated bulk-loads chunks with their document fields in one query.
	FindHydrated(ctx context.Context, ids []string) (map[string]Hydrated, error)
	// ExistingIDs returns the subset of ids that exist.
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	// UpdateVector records the committed vector point and model of each chunk.
	UpdateVector(ctx context.Context, chunks []Chunk) error
	// Count returns the number of chunks matching the options.
	Count(ctx context.Context, options ...repository.Option) (int64, error)
}

// WithSequenceOrder orders by document then sequence.
func WithSequenceOrder() []repository.Option {
	return []repository.Option{
		repository.WithOrderAsc("document_id"),
		repository.WithOrderAsc("sequence_number"),
	}
}

// WithMissingVector selects chunks without a vector for the given model.
func WithMissingVector(modelName string) repository.Option {
	return repository.WithWhere("vector_point_id IS NULL OR embedding_model <> ?", modelName)
}
