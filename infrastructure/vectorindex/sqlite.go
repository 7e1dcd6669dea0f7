package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 100

// SQLitePointModel is one stored point. The payload lives in typed columns
// and the vector is a JSON array.
type SQLitePointModel struct {
	ID             string       `gorm:"column:id;primaryKey"`
	ProjectID      string       `gorm:"column:project_id"`
	DocumentID     string       `gorm:"column:document_id"`
	SequenceNumber int          `gorm:"column:sequence_number"`
	ModelName      string       `gorm:"column:model_name"`
	CreatedAt      time.Time    `gorm:"column:created_at;autoCreateTime:false"`
	Dimension      int          `gorm:"column:dimension"`
	Vector         Float64Slice `gorm:"column:vector;type:json"`
}

// storedPoint is a point as read back from a SQL table.
type storedPoint struct {
	info   search.PointInfo
	vector []float64
}

type sqlitePointMapper struct{}

func (sqlitePointMapper) ToDomain(e SQLitePointModel) storedPoint {
	payload := search.Payload{
		ProjectID:      e.ProjectID,
		DocumentID:     e.DocumentID,
		ChunkID:        e.ID,
		SequenceNumber: e.SequenceNumber,
		ModelName:      e.ModelName,
		CreatedAt:      e.CreatedAt,
	}
	return storedPoint{
		info: search.PointInfo{
			ID:         e.ID,
			Dimension:  e.Dimension,
			Payload:    payload,
			PayloadErr: payload.Validate(),
		},
		vector: e.Vector,
	}
}

func (sqlitePointMapper) ToModel(p storedPoint) SQLitePointModel {
	vec := make(Float64Slice, len(p.vector))
	copy(vec, p.vector)
	return SQLitePointModel{
		ID:             p.info.ID,
		ProjectID:      p.info.Payload.ProjectID,
		DocumentID:     p.info.Payload.DocumentID,
		SequenceNumber: p.info.Payload.SequenceNumber,
		ModelName:      p.info.Payload.ModelName,
		CreatedAt:      p.info.Payload.CreatedAt,
		Dimension:      len(p.vector),
		Vector:         vec,
	}
}

// SQLiteIndex implements search.VectorIndex on SQLite. Vectors are stored
// as JSON and ranked in memory by cosine similarity.
type SQLiteIndex struct {
	db       database.Database
	registry collectionRegistry
	opts     options
}

// NewSQLiteIndex creates a SQLiteIndex and its collection registry table.
func NewSQLiteIndex(ctx context.Context, db database.Database, opts ...Option) (*SQLiteIndex, error) {
	s := &SQLiteIndex{db: db, registry: collectionRegistry{db: db}, opts: newOptions(opts...)}
	if err := s.registry.migrate(ctx); err != nil {
		return nil, fmt.Errorf("create collection registry: %w", err)
	}
	return s, nil
}

func (s *SQLiteIndex) points(collection string) database.Repository[storedPoint, SQLitePointModel] {
	return database.NewRepositoryForTable[storedPoint, SQLitePointModel](
		s.db, sqlitePointMapper{}, "vector point", pointsTable(collection),
	)
}

// EnsureCollection creates the collection table and records its identity.
func (s *SQLiteIndex) EnsureCollection(ctx context.Context, c search.Collection) error {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	table := pointsTable(c.Name())
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(36) PRIMARY KEY,
    project_id VARCHAR(255) NOT NULL,
    document_id VARCHAR(36) NOT NULL,
    sequence_number INTEGER NOT NULL,
    model_name VARCHAR(255) NOT NULL,
    created_at DATETIME NOT NULL,
    dimension INTEGER NOT NULL,
    vector JSON NOT NULL
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_project_idx ON %s (project_id, dimension)`, table, table),
	}
	for _, stmt := range stmts {
		if err := s.db.Session(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("create collection %s: %w", c.Name(), err)
		}
	}

	if err := s.registry.save(ctx, c); err != nil {
		return fmt.Errorf("register collection %s: %w", c.Name(), err)
	}
	s.opts.logger.Debug("collection ready", "collection", c.Name(), "model", c.Model(), "dimension", c.Dimension())
	return nil
}

// Collection returns the declared collection.
func (s *SQLiteIndex) Collection(ctx context.Context, name string) (search.Collection, error) {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()
	return s.registry.get(ctx, name)
}

// Upsert writes points keyed by chunk id.
func (s *SQLiteIndex) Upsert(ctx context.Context, collection string, points []search.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	c, err := s.registry.get(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkDimensions(c, points); err != nil {
		return err
	}

	repo := s.points(collection)
	models := make([]SQLitePointModel, len(points))
	for i, p := range points {
		models[i] = repo.Mapper().ToModel(storedPoint{
			info:   search.PointInfo{ID: p.ID(), Payload: p.Payload()},
			vector: p.Vector(),
		})
	}

	return s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(repo.Table()).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(models, upsertBatchSize).Error
	})
}

// Delete removes points by id.
func (s *SQLiteIndex) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	if _, err := s.registry.get(ctx, collection); err != nil {
		return err
	}
	return s.points(collection).DeleteBy(ctx, repository.WithIDIn(ids))
}

// Search ranks the points of the declared dimension by cosine similarity.
func (s *SQLiteIndex) Search(ctx context.Context, collection string, req search.Request) ([]search.Candidate, error) {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	c, err := s.registry.get(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(c, req); err != nil {
		return nil, err
	}

	filters := []repository.Option{repository.WithCondition("dimension", c.Dimension())}
	if req.ProjectID() != "" {
		filters = append(filters, repository.WithProjectID(req.ProjectID()))
	}
	stored, err := s.points(collection).Find(ctx, filters...)
	if err != nil {
		return nil, err
	}

	query := req.Vector()
	candidates := make([]search.Candidate, 0, len(stored))
	for _, p := range stored {
		if p.info.PayloadErr != nil {
			s.opts.logger.Warn("skipping point with invalid payload", "collection", collection, "point_id", p.info.ID)
			continue
		}
		score := cosineScore(CosineSimilarity(query, p.vector))
		candidates = append(candidates, search.NewCandidate(p.info.ID, score, p.info.Payload))
	}
	return topK(candidates, req.Limit()), nil
}

// Points lists every stored point without vectors.
func (s *SQLiteIndex) Points(ctx context.Context, collection string) ([]search.PointInfo, error) {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	if _, err := s.registry.get(ctx, collection); err != nil {
		return nil, err
	}

	repo := s.points(collection)
	var models []SQLitePointModel
	err := repo.DB(ctx).
		Select("id, project_id, document_id, sequence_number, model_name, created_at, dimension").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}

	infos := make([]search.PointInfo, len(models))
	for i, m := range models {
		infos[i] = repo.Mapper().ToDomain(m).info
	}
	return infos, nil
}
