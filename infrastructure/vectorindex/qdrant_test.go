package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrantPoint is a point as the fake stores it.
type fakeQdrantPoint struct {
	ID      any             `json:"id"`
	Vector  []float64       `json:"vector,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// fakeQdrant is an in-memory stand-in for the Qdrant REST endpoints the
// index uses. Scroll pages hold pageSize points when it is set.
type fakeQdrant struct {
	mu          sync.Mutex
	size        int
	exists      bool
	points      map[string]fakeQdrantPoint
	deletes     int
	apiKeys     []string
	failNext    int
	pageSize    int
	pageDelay   time.Duration
	scrolls     int
	withVectors bool
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{points: map[string]fakeQdrantPoint{}}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /collections/docs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.exists {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		var info qdrantCollectionInfo
		info.Result.Config.Params.Vectors.Size = f.size
		_ = json.NewEncoder(w).Encode(info)
	})
	mux.HandleFunc("PUT /collections/docs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Cosine", body.Vectors.Distance)
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		f.exists, f.size = true, body.Vectors.Size
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("DELETE /collections/docs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.exists, f.points = false, map[string]fakeQdrantPoint{}
		f.deletes++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("PUT /collections/docs/index", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	})
	mux.HandleFunc("PUT /collections/docs/points", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failNext > 0 {
			f.failNext--
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Points []fakeQdrantPoint `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, p := range body.Points {
			f.points[p.ID.(string)] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/docs/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []string `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		for _, id := range body.Points {
			delete(f.points, id)
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/docs/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float64 `json:"vector"`
			Limit  int       `json:"limit"`
			Filter *struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		var hits []qdrantScoredPoint
		for id, p := range f.points {
			var payload search.Payload
			_ = json.Unmarshal(p.Payload, &payload)
			if body.Filter != nil && payload.ProjectID != body.Filter.Must[0].Match.Value {
				continue
			}
			hits = append(hits, qdrantScoredPoint{ID: id, Score: CosineSimilarity(body.Vector, p.Vector), Payload: p.Payload})
		}
		f.mu.Unlock()

		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})
	mux.HandleFunc("POST /collections/docs/points/scroll", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Offset     *string `json:"offset"`
			WithVector bool    `json:"with_vector"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		f.scrolls++
		f.withVectors = f.withVectors || body.WithVector
		ids := make([]string, 0, len(f.points))
		for id := range f.points {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if body.Offset != nil {
			ids = ids[sort.SearchStrings(ids, *body.Offset):]
		}
		var next any
		if f.pageSize > 0 && len(ids) > f.pageSize {
			next = ids[f.pageSize]
			ids = ids[:f.pageSize]
		}
		records := make([]fakeQdrantPoint, 0, len(ids))
		for _, id := range ids {
			p := f.points[id]
			if !body.WithVector {
				p.Vector = nil
			}
			records = append(records, p)
		}
		delay := f.pageDelay
		f.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"points": records, "next_page_offset": next},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestQdrant(t *testing.T, opts ...Option) (*QdrantIndex, *fakeQdrant) {
	t.Helper()
	fake, srv := newFakeQdrant(t)

	db, err := database.NewDatabase(context.Background(), "sqlite:///:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx, err := NewQdrantIndex(context.Background(), QdrantConfig{URL: srv.URL + "/", APIKey: "secret"}, db, opts...)
	require.NoError(t, err)
	return idx, fake
}

func TestNewQdrantIndex_RequiresURL(t *testing.T) {
	_, err := NewQdrantIndex(context.Background(), QdrantConfig{}, database.Database{})
	require.Error(t, err)
}

func TestQdrantIndex_UpsertAndSearch(t *testing.T) {
	idx, fake := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))
	assert.Equal(t, []string{"secret"}, fake.apiKeys)

	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{
		testPoint(t, "a", "p1", "hashing", 1, 0),
		testPoint(t, "b", "p1", "hashing", 0, 1),
		testPoint(t, "c", "p2", "hashing", 1, 0),
	}))

	got, err := idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0}, 5).WithProjectID("p1"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PointID())
	assert.InDelta(t, 1.0, got[0].Score(), 1e-9)
	assert.Equal(t, "b", got[1].PointID())
	assert.InDelta(t, 0.5, got[1].Score(), 1e-9)
	assert.Equal(t, "doc-p1", got[0].Payload().DocumentID)
}

func TestQdrantIndex_EnsureCollectionRecreatesOnDimensionChange(t *testing.T) {
	idx, fake := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "small", 2)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "small", 1, 0)}))

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "small", 2)))
	assert.Zero(t, fake.deletes, "same dimension keeps the collection")

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "large", 3)))
	assert.Equal(t, 1, fake.deletes)
	assert.Equal(t, 3, fake.size)

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, points)

	c, err := idx.Collection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "large", c.Model())
}

func TestQdrantIndex_PointsReportsInvalidPayload(t *testing.T) {
	idx, fake := newTestQdrant(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "hashing", 1, 0)}))

	fake.mu.Lock()
	fake.points["junk"] = fakeQdrantPoint{ID: "junk", Vector: []float64{1, 0}, Payload: json.RawMessage(`{"text":"leaked"}`)}
	fake.mu.Unlock()

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		assert.Equal(t, 2, p.Dimension)
		if p.ID == "junk" {
			require.ErrorIs(t, p.PayloadErr, search.ErrInvalidPayload)
		} else {
			require.NoError(t, p.PayloadErr)
		}
	}

	got, err := idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0}, 5))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].PointID())

	require.NoError(t, idx.Delete(ctx, "docs", []string{"junk"}))
	points, err = idx.Points(ctx, "docs")
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestQdrantIndex_ErrorsSurface(t *testing.T) {
	idx, fake := newTestQdrant(t)
	ctx := context.Background()

	_, err := idx.Search(ctx, "docs", search.NewRequest([]float64{1, 0}, 5))
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))
	err = idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "hashing", 1, 0, 0)})
	require.ErrorIs(t, err, domain.ErrEmbeddingDimensionMismatch)

	fake.mu.Lock()
	fake.failNext = 1
	fake.mu.Unlock()
	err = idx.Upsert(ctx, "docs", []search.Point{testPoint(t, "a", "p1", "hashing", 1, 0)})
	var status *QdrantStatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusServiceUnavailable, status.Status)
}

func TestQdrantIndex_PointsPagesWithoutVectors(t *testing.T) {
	idx, fake := newTestQdrant(t, WithTimeout(500*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, testCollection(t, "hashing", 2)))
	require.NoError(t, idx.Upsert(ctx, "docs", []search.Point{
		testPoint(t, "a", "p1", "hashing", 1, 0),
		testPoint(t, "b", "p1", "hashing", 0, 1),
		testPoint(t, "c", "p2", "hashing", 1, 1),
	}))

	// Three pages together outlast the timeout; each one alone does not.
	fake.mu.Lock()
	fake.pageSize = 1
	fake.pageDelay = 200 * time.Millisecond
	fake.mu.Unlock()

	points, err := idx.Points(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, points, 3)
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
		assert.Equal(t, 2, p.Dimension, "dimension comes from the collection config")
		assert.NoError(t, p.PayloadErr)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 3, fake.scrolls)
	assert.False(t, fake.withVectors)
}
