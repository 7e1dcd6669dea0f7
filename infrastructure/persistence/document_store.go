package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentStore implements document.Store and document.TextStore using GORM.
type DocumentStore struct {
	database.Repository[document.Document, DocumentModel]
	db database.Database
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(db database.Database) DocumentStore {
	return DocumentStore{
		Repository: database.NewRepository[document.Document, DocumentModel](db, DocumentMapper{}, "document"),
		db:         db,
	}
}

// Save creates a new document or updates an existing one.
func (s DocumentStore) Save(ctx context.Context, doc document.Document) (document.Document, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	model := s.Mapper().ToModel(doc)
	if err := s.db.Session(ctx).Save(&model).Error; err != nil {
		return document.Document{}, fmt.Errorf("save document: %w", err)
	}
	return s.Mapper().ToDomain(model), nil
}

// Get retrieves a document by id.
func (s DocumentStore) Get(ctx context.Context, id string) (document.Document, error) {
	doc, err := s.FindOne(ctx, repository.WithID(id))
	if err != nil {
		return document.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// Delete removes a document. Its text, chunks and jobs cascade.
func (s DocumentStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	result := s.db.Session(ctx).Where("id = ?", id).Delete(&DocumentModel{})
	if result.Error != nil {
		return fmt.Errorf("delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: document %s", database.ErrNotFound, id)
	}
	return nil
}

// SaveText stores the extracted text of a document, replacing any previous text.
func (s DocumentStore) SaveText(ctx context.Context, documentID, text string) error {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	model := DocumentTextModel{DocumentID: documentID, Content: text}
	err := s.db.Session(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("save document text: %w", err)
	}
	return nil
}

// Text returns the extracted text of a document.
func (s DocumentStore) Text(ctx context.Context, documentID string) (string, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	var model DocumentTextModel
	err := s.db.Session(ctx).Where("document_id = ?", documentID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: text for document %s", database.ErrNotFound, documentID)
		}
		return "", fmt.Errorf("get document text: %w", err)
	}
	return model.Content, nil
}
