package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*SQLiteIndex, database.Database) {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), "sqlite:///:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx, err := NewSQLiteIndex(context.Background(), db)
	require.NoError(t, err)
	return idx, db
}

func testCollection(t *testing.T, model string, dim int) search.Collection {
	t.Helper()
	identity, err := search.NewModelIdentity(model, dim)
	require.NoError(t, err)
	c, err := search.NewCollection("docs", identity)
	require.NoError(t, err)
	return c
}

func testPoint(t *testing.T, chunkID, projectID, model string, vector ...float64) search.Point {
	t.Helper()
	p, err := search.NewPoint(vector, search.Payload{
		ProjectID:      projectID,
		DocumentID:     "doc-" + projectID,
		ChunkID:        chunkID,
		SequenceNumber: 0,
		ModelName:      model,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func TestSQLiteIndex_CollectionRoundTrip(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Collection(ctx, "docs")
	require.ErrorIs(t, err, domain.ErrNotFound)

	c := testCollection(t, "hashing", 3)
	require.NoError(t, idx.EnsureCollection(ctx, c))
	require.NoError(t, idx.EnsureCollection(ctx, c), "ensure is repeatable")

	got, err := idx.Collection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "hashing", got.Model())
	assert.Equal(t, 3, got.Dimension())
}

func TestSQLiteIndex_SearchRanksByCosine(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 3)))

	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{
		testPoint(t, "a", "p1", "hashing", 1, 0, 0),
		testPoint(t, "b", "p1", "hashing", 0.8, 0.2, 0),
		testPoint(t, "c", "p1", "hashing", -1, 0, 0),
		testPoint(t, "d", "p2", "hashing", 1, 0, 0),
	}))

	got, err := idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0, 0}, 10).WithProjectID("p1"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].PointID())
	assert.InDelta(t, 1.0, got[0].Score(), 1e-9)
	assert.Equal(t, "b", got[1].PointID())
	assert.Equal(t, "c", got[2].PointID())
	assert.InDelta(t, 0.0, got[2].Score(), 1e-9)

	got, err = idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0, 0}, 2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "d"}, []string{got[0].PointID(), got[1].PointID()}, "ties break by id")
	assert.Equal(t, "p2", got[1].Payload().ProjectID)
}

func TestSQLiteIndex_UpsertReplacesByID(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))

	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "hashing", 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "hashing", 0, 1)}))

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, points, 1)

	got, err := idx.Search(ctx, "docs", search.NewRequest([]float64{0, 1}, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score(), 1e-9)
}

func TestSQLiteIndex_DimensionMismatch(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 3)))

	err := idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "hashing", 1, 0)})
	require.ErrorIs(t, err, domain.ErrEmbeddingDimensionMismatch)

	_, err = idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0}, 5))
	var mismatch *domain.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Actual)
}

func TestSQLiteIndex_SearchIgnoresOtherDimensions(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "small", 2)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "old", "p1", "small", 1, 0)}))

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "large", 3)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "new", "p1", "large", 1, 0, 0)}))

	got, err := idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0, 0}, 10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].PointID())

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	dims := map[string]int{}
	for _, p := range points {
		dims[p.ID] = p.Dimension
	}
	assert.Equal(t, map[string]int{"old": 2, "new": 3}, dims)
}

func TestSQLiteIndex_InvalidPayloadIsReportedAndSkipped(t *testing.T) {
	idx, db := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "good", "p1", "hashing", 1, 0)}))

	err := db.Session(ctx).Exec(
		`INSERT INTO vector_points_docs (id, project_id, document_id, sequence_number, model_name, created_at, dimension, vector)
		 VALUES ('bad', '', 'doc', 0, 'hashing', ?, 2, '[1,0]')`, time.Now(),
	).Error
	require.NoError(t, err)

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		if p.ID == "bad" {
			require.ErrorIs(t, p.PayloadErr, search.ErrInvalidPayload)
		} else {
			require.NoError(t, p.PayloadErr)
		}
	}

	got, err := idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0}, 10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].PointID())
}

func TestSQLiteIndex_Delete(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{
		testPoint(t, "a", "p1", "hashing", 1, 0),
		testPoint(t, "b", "p1", "hashing", 0, 1),
	}))

	require.NoError(t, idx.Delete(ctx, "docs", []string{"a", "unknown"}))

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "b", points[0].ID)

	require.ErrorIs(t, idx.Delete(ctx, "missing", []string{"a"}), domain.ErrNotFound)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
}
