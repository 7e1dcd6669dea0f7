package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/task"
	"gorm.io/datatypes"
)

// DocumentMapper maps between domain Document and persistence DocumentModel.
type DocumentMapper struct{}

// ToDomain converts a DocumentModel to a domain Document.
func (m DocumentMapper) ToDomain(e DocumentModel) document.Document {
	s := e.Stats.Data()
	stats := document.NewStats(s.ChunkCount, s.ModelName, s.Dimension, s.StartedAt, s.CompletedAt)
	return document.ReconstructDocument(
		e.ID,
		e.ProjectID,
		e.Title,
		e.DocType,
		document.Status(e.Status),
		stats,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a domain Document to a DocumentModel.
func (m DocumentMapper) ToModel(d document.Document) DocumentModel {
	s := d.Stats()
	return DocumentModel{
		ID:        d.ID(),
		ProjectID: d.ProjectID(),
		Title:     d.Title(),
		DocType:   d.Type(),
		Status:    d.Status().String(),
		Stats: datatypes.NewJSONType(StatsRecord{
			ChunkCount:  s.ChunkCount(),
			ModelName:   s.ModelName(),
			Dimension:   s.Dimension(),
			StartedAt:   s.StartedAt(),
			CompletedAt: s.CompletedAt(),
		}),
		CreatedAt: d.CreatedAt(),
		UpdatedAt: d.UpdatedAt(),
	}
}

// ChunkMapper maps between domain Chunk and persistence ChunkModel.
type ChunkMapper struct{}

// ToDomain converts a ChunkModel to a domain Chunk.
func (m ChunkMapper) ToDomain(e ChunkModel) chunk.Chunk {
	return chunk.ReconstructChunk(
		e.ID,
		e.DocumentID,
		e.SequenceNumber,
		e.Content,
		e.StartOffset,
		e.EndOffset,
		e.PageNumber,
		e.EmbeddingModel,
		e.VectorPointID,
		e.CreatedAt,
	)
}

// ToModel converts a domain Chunk to a ChunkModel.
func (m ChunkMapper) ToModel(c chunk.Chunk) ChunkModel {
	return ChunkModel{
		ID:             c.ID(),
		DocumentID:     c.DocumentID(),
		SequenceNumber: c.Sequence(),
		Content:        c.Content(),
		StartOffset:    c.StartOffset(),
		EndOffset:      c.EndOffset(),
		PageNumber:     c.Page(),
		EmbeddingModel: c.ModelName(),
		VectorPointID:  c.VectorPointID(),
		CreatedAt:      c.CreatedAt(),
	}
}

// JobMapper maps between domain Job and persistence ProcessingJobModel.
type JobMapper struct{}

// ToDomain converts a ProcessingJobModel to a domain Job.
func (m JobMapper) ToDomain(e ProcessingJobModel) job.Job {
	return job.ReconstructJob(
		e.ID,
		e.DocumentID,
		job.Status(e.Status),
		job.NewParams(e.Model, chunk.Strategy(e.Strategy), e.ChunkSize, e.Overlap),
		e.ErrorDetail,
		e.StartedAt,
		e.CompletedAt,
		e.CreatedAt,
	)
}

// ToModel converts a domain Job to a ProcessingJobModel.
func (m JobMapper) ToModel(j job.Job) ProcessingJobModel {
	p := j.Params()
	return ProcessingJobModel{
		ID:          j.ID(),
		DocumentID:  j.DocumentID(),
		Status:      j.Status().String(),
		Model:       p.Model(),
		Strategy:    p.Strategy().String(),
		ChunkSize:   p.ChunkSize(),
		Overlap:     p.Overlap(),
		ErrorDetail: j.Error(),
		StartedAt:   j.StartedAt(),
		CompletedAt: j.CompletedAt(),
		CreatedAt:   j.CreatedAt(),
	}
}

// TaskMapper maps between domain Task and persistence TaskModel.
type TaskMapper struct{}

// ToDomain converts a TaskModel to a domain Task.
func (m TaskMapper) ToDomain(e TaskModel) (task.Task, error) {
	var payload map[string]any
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return task.Task{}, fmt.Errorf("unmarshal task payload: %w", err)
		}
	}
	return task.NewTaskWithID(
		e.ID,
		e.DedupKey,
		task.Operation(e.Type),
		e.Priority,
		payload,
		e.CreatedAt,
		e.UpdatedAt,
	), nil
}

// ToModel converts a domain Task to a TaskModel.
func (m TaskMapper) ToModel(t task.Task) (TaskModel, error) {
	payload, err := t.PayloadJSON()
	if err != nil {
		return TaskModel{}, fmt.Errorf("marshal task payload: %w", err)
	}
	return TaskModel{
		ID:        t.ID(),
		DedupKey:  t.DedupKey(),
		Type:      t.Operation().String(),
		Payload:   datatypes.JSON(payload),
		Priority:  t.Priority(),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}, nil
}
