package persistence

import (
	"context"
	"fmt"

	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/internal/database"
	"gorm.io/gorm/clause"
)

// JobStore implements job.Store using GORM.
type JobStore struct {
	database.Repository[job.Job, ProcessingJobModel]
	db database.Database
}

// NewJobStore creates a new JobStore.
func NewJobStore(db database.Database) JobStore {
	return JobStore{
		Repository: database.NewRepository[job.Job, ProcessingJobModel](db, JobMapper{}, "processing job"),
		db:         db,
	}
}

// Save creates a new job or updates an existing one.
func (s JobStore) Save(ctx context.Context, j job.Job) (job.Job, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	model := s.Mapper().ToModel(j)
	if err := s.db.Session(ctx).Omit(clause.Associations).Save(&model).Error; err != nil {
		return job.Job{}, fmt.Errorf("save job: %w", err)
	}
	return s.Mapper().ToDomain(model), nil
}

// Get retrieves a job by id.
func (s JobStore) Get(ctx context.Context, id string) (job.Job, error) {
	j, err := s.FindOne(ctx, repository.WithID(id))
	if err != nil {
		return job.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}
