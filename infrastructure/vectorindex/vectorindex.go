// Package vectorindex implements search.VectorIndex over SQLite, PostgreSQL
// with pgvector, and Qdrant. Every backend keeps one collection per model
// identity and reports scores in [0,1].
package vectorindex

import (
	"cmp"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTimeout bounds each index call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Option configures an index.
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

func newOptions(opts ...Option) options {
	o := options{timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func (o options) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// CollectionModel records the declared identity of a collection.
type CollectionModel struct {
	Name      string    `gorm:"column:name;primaryKey;size:63"`
	Model     string    `gorm:"column:model;size:255;not null"`
	Dimension int       `gorm:"column:dimension;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (CollectionModel) TableName() string {
	return "vector_collections"
}

// collectionRegistry stores collection identities for the SQL backends.
type collectionRegistry struct {
	db database.Database
}

func (r collectionRegistry) migrate(ctx context.Context) error {
	return r.db.Session(ctx).AutoMigrate(&CollectionModel{})
}

func (r collectionRegistry) save(ctx context.Context, c search.Collection) error {
	model := CollectionModel{Name: c.Name(), Model: c.Model(), Dimension: c.Dimension()}
	return r.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"model", "dimension", "updated_at"}),
	}).Create(&model).Error
}

func (r collectionRegistry) get(ctx context.Context, name string) (search.Collection, error) {
	var model CollectionModel
	err := r.db.Session(ctx).Where("name = ?", name).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return search.Collection{}, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
		}
		return search.Collection{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	identity, err := search.NewModelIdentity(model.Model, model.Dimension)
	if err != nil {
		return search.Collection{}, err
	}
	return search.NewCollection(model.Name, identity)
}

// pointsTable returns the table holding a collection's points. Collection
// names are validated identifiers, so the result is safe to splice into SQL.
func pointsTable(collection string) string {
	return "vector_points_" + collection
}

// checkDimensions rejects points whose vectors do not match the collection.
func checkDimensions(c search.Collection, points []search.Point) error {
	for _, p := range points {
		if p.Dimension() != c.Dimension() {
			return &domain.DimensionMismatchError{
				Collection:    c.Name(),
				ExpectedModel: c.Model(),
				ActualModel:   p.Payload().ModelName,
				Expected:      c.Dimension(),
				Actual:        p.Dimension(),
			}
		}
	}
	return nil
}

// checkQuery rejects a query vector that does not match the collection.
func checkQuery(c search.Collection, req search.Request) error {
	if len(req.Vector()) == c.Dimension() {
		return nil
	}
	return &domain.DimensionMismatchError{
		Collection:    c.Name(),
		ExpectedModel: c.Model(),
		ActualModel:   c.Model(),
		Expected:      c.Dimension(),
		Actual:        len(req.Vector()),
	}
}

// Float64Slice is a []float64 stored as a JSON array.
type Float64Slice []float64

// Scan implements sql.Scanner.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}

	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float64(f))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Returns 0 if the lengths differ or either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// cosineScore maps a cosine similarity in [-1,1] to [0,1].
func cosineScore(similarity float64) float64 {
	return (similarity + 1) / 2
}

// topK orders candidates by descending score, then id, and keeps the first k.
func topK(candidates []search.Candidate, k int) []search.Candidate {
	slices.SortFunc(candidates, func(a, b search.Candidate) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		return cmp.Compare(a.PointID(), b.PointID())
	})
	if k >= 0 && k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates
}
