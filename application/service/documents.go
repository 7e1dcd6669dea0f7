package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/search"
)

// Documents registers extracted documents and removes them again.
type Documents struct {
	documents      document.Store
	texts          document.TextStore
	chunks         chunk.Store
	jobs           job.Store
	index          search.VectorIndex
	collectionName string
	queue          *Queue
	logger         *slog.Logger
}

// NewDocuments creates a Documents service.
func NewDocuments(
	documents document.Store,
	texts document.TextStore,
	chunks chunk.Store,
	jobs job.Store,
	index search.VectorIndex,
	collectionName string,
	queue *Queue,
	logger *slog.Logger,
) *Documents {
	if logger == nil {
		logger = slog.Default()
	}
	return &Documents{
		documents:      documents,
		texts:          texts,
		chunks:         chunks,
		jobs:           jobs,
		index:          index,
		collectionName: collectionName,
		queue:          queue,
		logger:         logger,
	}
}

// Register stores a document with its extracted text in pending state.
func (s *Documents) Register(ctx context.Context, projectID, title, docType, text string) (document.Document, error) {
	if strings.TrimSpace(text) == "" {
		return document.Document{}, domain.Errorf(domain.ErrValidation, "register document", "text is empty")
	}
	doc, err := document.NewDocument(projectID, title, docType)
	if err != nil {
		return document.Document{}, domain.Wrap(domain.ErrValidation, "register document", err)
	}

	saved, err := s.documents.Save(ctx, doc)
	if err != nil {
		return document.Document{}, domain.Wrap(domain.ErrMetadataWrite, "save document", err)
	}
	if err := s.texts.SaveText(ctx, saved.ID(), text); err != nil {
		_ = s.documents.Delete(context.WithoutCancel(ctx), saved.ID())
		return document.Document{}, domain.Wrap(domain.ErrMetadataWrite, "save document text", err)
	}

	s.logger.Info("document registered",
		slog.String("document_id", saved.ID()),
		slog.String("project_id", projectID),
		slog.Int("characters", len([]rune(text))),
	)
	return saved, nil
}

// Get returns a document.
func (s *Documents) Get(ctx context.Context, id string) (document.Document, error) {
	return s.documents.Get(ctx, id)
}

// List returns the documents of a project, newest first. Extra options
// such as pagination are applied after the project filter.
func (s *Documents) List(ctx context.Context, projectID string, opts ...repository.Option) ([]document.Document, error) {
	all := append([]repository.Option{repository.WithProjectID(projectID), repository.WithOrderDesc("created_at")}, opts...)
	return s.documents.Find(ctx, all...)
}

// Count returns the number of documents in a project.
func (s *Documents) Count(ctx context.Context, projectID string) (int64, error) {
	return s.documents.Count(ctx, repository.WithProjectID(projectID))
}

// Chunks returns a document's chunks in reading order.
func (s *Documents) Chunks(ctx context.Context, id string) ([]chunk.Chunk, error) {
	if _, err := s.documents.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.chunks.Find(ctx, repository.WithDocumentID(id), repository.WithOrderAsc("sequence_number"))
}

// Delete removes a document, its text, chunks and jobs. Its vector points
// are removed best-effort; any left behind are orphans for the Reconciler.
func (s *Documents) Delete(ctx context.Context, id string) error {
	if _, err := s.documents.Get(ctx, id); err != nil {
		return err
	}
	running, err := s.jobs.Find(ctx, repository.WithDocumentID(id), repository.WithStatus(string(job.StatusProcessing)))
	if err != nil {
		return fmt.Errorf("find running jobs: %w", err)
	}
	if len(running) > 0 {
		return domain.Errorf(domain.ErrConflict, "delete document", "job %s is processing document %s", running[0].ID(), id)
	}

	chunks, err := s.chunks.Find(ctx, repository.WithDocumentID(id))
	if err != nil {
		return fmt.Errorf("find chunks: %w", err)
	}
	if _, err := s.queue.DrainForDocument(ctx, id); err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}

	if ids := chunk.IDs(chunks); len(ids) > 0 {
		if err := s.index.Delete(ctx, s.collectionName, ids); err != nil {
			s.logger.Warn("failed to delete document points; reconciliation will remove them",
				slog.String("document_id", id), slog.String("error", err.Error()))
		}
	}
	s.logger.Info("document deleted", slog.String("document_id", id), slog.Int("chunks", len(chunks)))
	return nil
}
