package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/task"
	"github.com/laserpointlabs/odras/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskStore implements task.TaskStore using GORM.
type TaskStore struct {
	db     database.Database
	mapper TaskMapper
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db database.Database) TaskStore {
	return TaskStore{db: db}
}

// Get retrieves a task by ID.
func (s TaskStore) Get(ctx context.Context, id int64) (task.Task, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	var model TaskModel
	result := s.db.Session(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return task.Task{}, fmt.Errorf("%w: task id %d", database.ErrNotFound, id)
		}
		return task.Task{}, fmt.Errorf("get task: %w", result.Error)
	}
	return s.mapper.ToDomain(model)
}

// FindPending retrieves queued tasks ordered by priority.
func (s TaskStore) FindPending(ctx context.Context, options ...repository.Option) ([]task.Task, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	var models []TaskModel
	db := database.ApplyOptions(s.db.Session(ctx).Order("priority DESC, created_at ASC"), options...)
	if err := db.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("find pending tasks: %w", err)
	}

	tasks := make([]task.Task, 0, len(models))
	for _, model := range models {
		t, err := s.mapper.ToDomain(model)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Save creates a new task or replaces the priority and payload of the
// queued task that shares its dedup key.
func (s TaskStore) Save(ctx context.Context, t task.Task) (task.Task, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	model, err := s.mapper.ToModel(t)
	if err != nil {
		return task.Task{}, err
	}

	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"priority", "payload", "updated_at"}),
	}).Create(&model)
	if result.Error != nil {
		return task.Task{}, fmt.Errorf("save task: %w", result.Error)
	}

	return s.mapper.ToDomain(model)
}

// Delete removes a task.
func (s TaskStore) Delete(ctx context.Context, t task.Task) error {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	if err := s.db.Session(ctx).Delete(&TaskModel{}, t.ID()).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// CountPending returns the number of queued tasks.
func (s TaskStore) CountPending(ctx context.Context) (int64, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	var count int64
	if err := s.db.Session(ctx).Model(&TaskModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return count, nil
}

// Dequeue retrieves and removes the highest priority, oldest task.
func (s TaskStore) Dequeue(ctx context.Context) (task.Task, bool, error) {
	ctx, cancel := s.db.WithDeadline(ctx)
	defer cancel()

	var model TaskModel
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		result := tx.Order("priority DESC, created_at ASC, id ASC").First(&model)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}
		return tx.Delete(&model).Error
	})
	if err != nil {
		return task.Task{}, false, fmt.Errorf("dequeue task: %w", err)
	}
	if model.ID == 0 {
		return task.Task{}, false, nil
	}

	t, err := s.mapper.ToDomain(model)
	if err != nil {
		return task.Task{}, false, err
	}
	return t, true, nil
}
