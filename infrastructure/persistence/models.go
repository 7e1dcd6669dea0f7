package persistence

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrChunkContentImmutable is returned when an update tries to rewrite chunk text.
var ErrChunkContentImmutable = errors.New("chunk content is immutable")

// StatsRecord is the JSON shape of a document's processing statistics.
type StatsRecord struct {
	ChunkCount  int       `json:"chunk_count"`
	ModelName   string    `json:"model_name"`
	Dimension   int       `json:"dimension"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// DocumentModel represents a document in the database.
type DocumentModel struct {
	ID        string                          `gorm:"column:id;primaryKey;size:36"`
	ProjectID string                          `gorm:"column:project_id;index;size:255;not null"`
	Title     string                          `gorm:"column:title;size:1024"`
	DocType   string                          `gorm:"column:doc_type;size:255"`
	Status    string                          `gorm:"column:status;index;size:32;not null"`
	Stats     datatypes.JSONType[StatsRecord] `gorm:"column:stats"`
	CreatedAt time.Time                       `gorm:"column:created_at"`
	UpdatedAt time.Time                       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (DocumentModel) TableName() string {
	return "documents"
}

// DocumentTextModel holds the extracted text of a document.
type DocumentTextModel struct {
	DocumentID string         `gorm:"column:document_id;primaryKey;size:36"`
	Document   *DocumentModel `gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE"`
	Content    string         `gorm:"column:content;type:text;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (DocumentTextModel) TableName() string {
	return "document_texts"
}

// ChunkModel represents a chunk in the database.
type ChunkModel struct {
	ID             string         `gorm:"column:id;primaryKey;size:36"`
	DocumentID     string         `gorm:"column:document_id;size:36;not null;uniqueIndex:idx_chunks_document_sequence,priority:1"`
	Document       *DocumentModel `gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE"`
	SequenceNumber int            `gorm:"column:sequence_number;not null;uniqueIndex:idx_chunks_document_sequence,priority:2"`
	Content        string         `gorm:"column:content;type:text;not null"`
	StartOffset    int            `gorm:"column:start_offset;not null"`
	EndOffset      int            `gorm:"column:end_offset;not null"`
	PageNumber     *int           `gorm:"column:page_number"`
	EmbeddingModel string         `gorm:"column:embedding_model;size:255;index"`
	VectorPointID  *string        `gorm:"column:vector_point_id;size:36"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
}

// TableName returns the table name.
func (ChunkModel) TableName() string {
	return "chunks"
}

// BeforeUpdate rejects any update that rewrites chunk text.
func (c *ChunkModel) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("Content") {
		return ErrChunkContentImmutable
	}
	return nil
}

// ProcessingJobModel represents one ingestion run in the database.
type ProcessingJobModel struct {
	ID          string         `gorm:"column:id;primaryKey;size:36"`
	DocumentID  string         `gorm:"column:document_id;size:36;index;not null"`
	Document    *DocumentModel `gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE"`
	Status      string         `gorm:"column:status;index;size:32;not null"`
	Model       string         `gorm:"column:model;size:255"`
	Strategy    string         `gorm:"column:strategy;size:32"`
	ChunkSize   int            `gorm:"column:chunk_size"`
	Overlap     int            `gorm:"column:overlap"`
	ErrorDetail string         `gorm:"column:error_detail;type:text;default:''"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;index"`
}

// TableName returns the table name.
func (ProcessingJobModel) TableName() string {
	return "processing_jobs"
}

// TaskModel represents a queued task in the database.
type TaskModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	DedupKey  string         `gorm:"column:dedup_key;type:varchar(255);uniqueIndex;not null"`
	Type      string         `gorm:"column:type;type:varchar(255);index;not null"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	Priority  int            `gorm:"column:priority;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (TaskModel) TableName() string {
	return "tasks"
}
