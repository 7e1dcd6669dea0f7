package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/database"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQL specific to pgvector (extension, per-dimension index).
const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(36) PRIMARY KEY,
    project_id VARCHAR(255) NOT NULL,
    document_id VARCHAR(36) NOT NULL,
    sequence_number INTEGER NOT NULL,
    model_name VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    embedding vector NOT NULL
)`

	pgvCreateProjectIndexTemplate = `CREATE INDEX IF NOT EXISTS %s_project_idx ON %s (project_id)`

	// The column has no fixed dimension, so the HNSW index is built over a
	// cast and restricted to rows of the declared dimension.
	pgvCreateHNSWIndexTemplate = `
CREATE INDEX IF NOT EXISTS %s_hnsw_%d
ON %s
USING hnsw ((embedding::vector(%d)) vector_cosine_ops)
WHERE vector_dims(embedding) = %d`
)

// ErrPgvectorInitializationFailed indicates pgvector initialization failed.
var ErrPgvectorInitializationFailed = errors.New("failed to initialize pgvector index")

// PgPointModel is one stored point in a pgvector table.
type PgPointModel struct {
	ID             string          `gorm:"column:id;primaryKey"`
	ProjectID      string          `gorm:"column:project_id"`
	DocumentID     string          `gorm:"column:document_id"`
	SequenceNumber int             `gorm:"column:sequence_number"`
	ModelName      string          `gorm:"column:model_name"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime:false"`
	Embedding      pgvector.Vector `gorm:"column:embedding;type:vector"`
}

type pgRow struct {
	ID             string
	ProjectID      string
	DocumentID     string
	SequenceNumber int
	ModelName      string
	CreatedAt      time.Time
	Dimension      int
	Distance       float64
}

func (r pgRow) payload() search.Payload {
	return search.Payload{
		ProjectID:      r.ProjectID,
		DocumentID:     r.DocumentID,
		ChunkID:        r.ID,
		SequenceNumber: r.SequenceNumber,
		ModelName:      r.ModelName,
		CreatedAt:      r.CreatedAt,
	}
}

// PgVectorIndex implements search.VectorIndex using the PostgreSQL pgvector
// extension. Search uses cosine distance.
type PgVectorIndex struct {
	db       database.Database
	registry collectionRegistry
	opts     options
}

// NewPgVectorIndex creates a PgVectorIndex, installing the extension and
// the collection registry table.
func NewPgVectorIndex(ctx context.Context, db database.Database, opts ...Option) (*PgVectorIndex, error) {
	if !db.IsPostgres() {
		return nil, fmt.Errorf("%w: database is not postgres", ErrPgvectorInitializationFailed)
	}
	s := &PgVectorIndex{db: db, registry: collectionRegistry{db: db}, opts: newOptions(opts...)}
	if err := db.Session(ctx).Exec(pgvCreateExtension).Error; err != nil {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create extension: %w", err))
	}
	if err := s.registry.migrate(ctx); err != nil {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create collection registry: %w", err))
	}
	return s, nil
}

// EnsureCollection creates the collection table and its index for the
// declared dimension, then records the identity.
func (s *PgVectorIndex) EnsureCollection(ctx context.Context, c search.Collection) error {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	table := pointsTable(c.Name())
	rawDB := s.db.Session(ctx)
	if err := rawDB.Exec(fmt.Sprintf(pgvCreateTableTemplate, table)).Error; err != nil {
		return fmt.Errorf("create collection %s: %w", c.Name(), err)
	}
	if err := rawDB.Exec(fmt.Sprintf(pgvCreateProjectIndexTemplate, table, table)).Error; err != nil {
		return fmt.Errorf("create project index for %s: %w", c.Name(), err)
	}

	d := c.Dimension()
	indexSQL := fmt.Sprintf(pgvCreateHNSWIndexTemplate, table, d, table, d, d)
	if err := rawDB.Exec(indexSQL).Error; err != nil {
		// Searches still work without it, just slower.
		s.opts.logger.Warn("failed to create hnsw index", "collection", c.Name(), "error", err)
	}

	if err := s.registry.save(ctx, c); err != nil {
		return fmt.Errorf("register collection %s: %w", c.Name(), err)
	}
	return nil
}

// Collection returns the declared collection.
func (s *PgVectorIndex) Collection(ctx context.Context, name string) (search.Collection, error) {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()
	return s.registry.get(ctx, name)
}

// Upsert writes points keyed by chunk id.
func (s *PgVectorIndex) Upsert(ctx context.Context, collection string, points []search.Point) error {
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

	models := make([]PgPointModel, len(points))
	for i, p := range points {
		payload := p.Payload()
		models[i] = PgPointModel{
			ID:             p.ID(),
			ProjectID:      payload.ProjectID,
			DocumentID:     payload.DocumentID,
			SequenceNumber: payload.SequenceNumber,
			ModelName:      payload.ModelName,
			CreatedAt:      payload.CreatedAt,
			Embedding:      pgvector.NewVector(toFloat32(p.Vector())),
		}
	}

	table := pointsTable(collection)
	return s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(models, upsertBatchSize).Error
	})
}

// Delete removes points by id.
func (s *PgVectorIndex) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	if _, err := s.registry.get(ctx, collection); err != nil {
		return err
	}
	err := s.db.Session(ctx).Table(pointsTable(collection)).Where("id IN ?", ids).Delete(&PgPointModel{}).Error
	if err != nil {
		return fmt.Errorf("delete points from %s: %w", collection, err)
	}
	return nil
}

// Search returns the nearest points of the declared dimension by cosine
// distance, mapped to a [0,1] score as 1 - distance/2.
func (s *PgVectorIndex) Search(ctx context.Context, collection string, req search.Request) ([]search.Candidate, error) {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	c, err := s.registry.get(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(c, req); err != nil {
		return nil, err
	}
	if req.Limit() <= 0 {
		return []search.Candidate{}, nil
	}

	d := c.Dimension()
	tx := s.db.Session(ctx).
		Table(pointsTable(collection)).
		Select(pgSearchColumns(d), pgvector.NewVector(toFloat32(req.Vector()))).
		Where("vector_dims(embedding) = ?", d)
	if req.ProjectID() != "" {
		tx = tx.Where("project_id = ?", req.ProjectID())
	}

	var rows []pgRow
	if err := tx.Order("distance ASC").Limit(req.Limit()).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	candidates := make([]search.Candidate, 0, len(rows))
	for _, r := range rows {
		payload := r.payload()
		if err := payload.Validate(); err != nil {
			s.opts.logger.Warn("skipping point with invalid payload", "collection", collection, "point_id", r.ID)
			continue
		}
		candidates = append(candidates, search.NewCandidate(r.ID, distanceScore(r.Distance), payload))
	}
	return candidates, nil
}

// Points lists every stored point with its actual dimension.
func (s *PgVectorIndex) Points(ctx context.Context, collection string) ([]search.PointInfo, error) {
	ctx, cancel := s.opts.deadline(ctx)
	defer cancel()

	if _, err := s.registry.get(ctx, collection); err != nil {
		return nil, err
	}

	var rows []pgRow
	err := s.db.Session(ctx).
		Table(pointsTable(collection)).
		Select("id, project_id, document_id, sequence_number, model_name, created_at, vector_dims(embedding) AS dimension").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}

	infos := make([]search.PointInfo, len(rows))
	for i, r := range rows {
		payload := r.payload()
		infos[i] = search.PointInfo{ID: r.ID, Dimension: r.Dimension, Payload: payload, PayloadErr: payload.Validate()}
	}
	return infos, nil
}

// pgSearchColumns selects the payload columns and the cosine distance to the
// bound query vector, both sides cast to dimension d.
func pgSearchColumns(d int) string {
	return fmt.Sprintf("id, project_id, document_id, sequence_number, model_name, created_at, "+
		"(embedding::vector(%d)) <=> ?::vector(%d) AS distance", d, d)
}

// distanceScore maps a pgvector cosine distance in [0,2] to [0,1].
func distanceScore(distance float64) float64 {
	return 1 - distance/2
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
