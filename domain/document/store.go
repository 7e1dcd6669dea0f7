package document

import (
	"context"

	"github.com/laserpointlabs/odras/domain/repository"
)

// Store persists documents.
type Store interface {
	// Save creates or updates a document.
	Save(ctx context.Context, doc Document) (Document, error)
	// Get returns the document with the given id or domain.ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)
	// Find returns documents matching the options.
	Find(ctx context.Context, options ...repository.Option) ([]Document, error)
	// Count returns the number of documents matching the options.
	Count(ctx context.Context, options ...repository.Option) (int64, error)
	// Delete removes a document; its chunks and text cascade.
	Delete(ctx context.Context, id string) error
}

// TextStore holds the extracted text handed over by the upload service.
type TextStore interface {
	Source
	// SaveText stores the extracted text for a document.
	SaveText(ctx context.Context, documentID, text string) error
}

// Source supplies the raw extracted text for a document.
type Source interface {
	Text(ctx context.Context, documentID string) (string, error)
}
