package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	saveAllBatchSize = 100
	lookupBatchSize  = 500
)

// ChunkStore implements chunk.Store using GORM.
type ChunkStore struct {
	database.Repository[chunk.Chunk, ChunkModel]
	db database.Database
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db database.Database) ChunkStore {
	return ChunkStore{
		Repository: database.NewRepository[chunk.Chunk, ChunkModel](db, ChunkMapper{}, "chunk"),
		db:         db,
	}
}

// ReplaceForDocument deletes the document's chunks and inserts the new set
// in one transaction. Either all new chunks are visible or none are.
func (s ChunkStore) ReplaceForDocument(ctx context.Context, documentID string, chunks []chunk.Chunk) error {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	models := make([]ChunkModel, len(chunks))
	for i, c := range chunks {
		if c.DocumentID() != documentID {
			return domain.Errorf(domain.ErrMetadataWrite, "replace chunks",
				"chunk %s belongs to document %s, not %s", c.ID(), c.DocumentID(), documentID)
		}
		models[i] = s.Mapper().ToModel(c)
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Omit(clause.Associations).CreateInBatches(models, saveAllBatchSize).Error
	})
	if err != nil {
		return domain.Wrap(domain.ErrMetadataWrite, "replace chunks", err)
	}
	return nil
}

// UpdateVector records the vector point id and embedding model of each
// chunk. No other column is written.
func (s ChunkStore) UpdateVector(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		for _, c := range chunks {
			result := tx.Model(&ChunkModel{ID: c.ID()}).Updates(map[string]any{
				"vector_point_id": c.VectorPointID(),
				"embedding_model": c.ModelName(),
			})
			if result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
	if err != nil {
		return domain.Wrap(domain.ErrMetadataWrite, "update chunk vectors", err)
	}
	return nil
}

// ExistingIDs returns the subset of ids present in the store.
func (s ChunkStore) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	found := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(ids))
		var batch []string
		err := s.db.Session(ctx).Model(&ChunkModel{}).Where("id IN ?", ids[start:end]).Pluck("id", &batch).Error
		if err != nil {
			return nil, fmt.Errorf("find existing chunk ids: %w", err)
		}
		for _, id := range batch {
			found[id] = true
		}
	}
	return found, nil
}

const hydratedColumns = "chunks.id, chunks.document_id, chunks.sequence_number, chunks.content, " +
	"chunks.start_offset, chunks.end_offset, chunks.page_number, chunks.embedding_model, " +
	"chunks.vector_point_id, chunks.created_at, " +
	"documents.project_id AS project_id, documents.title AS document_title, documents.doc_type AS document_type"

type hydratedRow struct {
	ID             string
	DocumentID     string
	SequenceNumber int
	Content        string
	StartOffset    int
	EndOffset      int
	PageNumber     *int
	EmbeddingModel string
	VectorPointID  *string
	CreatedAt      time.Time
	ProjectID      string
	DocumentTitle  string
	DocumentType   string
}

// FindHydrated loads chunks together with their document's project, title
// and type. Each batch of ids is resolved with a single join.
func (s ChunkStore) FindHydrated(ctx context.Context, ids []string) (map[string]chunk.Hydrated, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	out := make(map[string]chunk.Hydrated, len(ids))
	for start := 0; start < len(ids); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(ids))
		var rows []hydratedRow
		err := s.db.Session(ctx).
			Table("chunks").
			Select(hydratedColumns).
			Joins("JOIN documents ON documents.id = chunks.document_id").
			Where("chunks.id IN ?", ids[start:end]).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("hydrate chunks: %w", err)
		}
		for _, r := range rows {
			c := chunk.ReconstructChunk(
				r.ID, r.DocumentID, r.SequenceNumber, r.Content,
				r.StartOffset, r.EndOffset, r.PageNumber,
				r.EmbeddingModel, r.VectorPointID, r.CreatedAt,
			)
			out[r.ID] = chunk.Hydrated{
				Chunk:         c,
				ProjectID:     r.ProjectID,
				DocumentTitle: r.DocumentTitle,
				DocumentType:  r.DocumentType,
			}
		}
	}
	return out, nil
}
