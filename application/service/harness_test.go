package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/search"
	domainservice "github.com/laserpointlabs/odras/domain/service"
	"github.com/laserpointlabs/odras/infrastructure/chunking"
	"github.com/laserpointlabs/odras/infrastructure/persistence"
	"github.com/laserpointlabs/odras/infrastructure/provider"
	"github.com/laserpointlabs/odras/infrastructure/vectorindex"
	"github.com/laserpointlabs/odras/internal/database"
	"github.com/laserpointlabs/odras/internal/testdb"
)

const testCollection = "docs"

// harness wires the services over one in-memory SQLite database.
type harness struct {
	db        database.Database
	documents persistence.DocumentStore
	chunks    persistence.ChunkStore
	jobs      persistence.JobStore
	tasks     persistence.TaskStore
	index     *vectorindex.SQLiteIndex
	queue     *Queue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testdb.New(t)
	index, err := vectorindex.NewSQLiteIndex(context.Background(), db)
	require.NoError(t, err)

	tasks := persistence.NewTaskStore(db)
	return &harness{
		db:        db,
		documents: persistence.NewDocumentStore(db),
		chunks:    persistence.NewChunkStore(db),
		jobs:      persistence.NewJobStore(db),
		tasks:     tasks,
		index:     index,
		queue:     NewQueue(tasks, nil),
	}
}

// collection declares the test collection for model/dimension.
func (h *harness) collection(t *testing.T, model string, dimension int) search.Collection {
	t.Helper()
	identity, err := search.NewModelIdentity(model, dimension)
	require.NoError(t, err)
	c, err := search.NewCollection(testCollection, identity)
	require.NoError(t, err)
	require.NoError(t, h.index.EnsureCollection(context.Background(), c))
	return c
}

func (h *harness) hashingGenerator(t *testing.T, dimension int) *domainservice.EmbeddingGenerator {
	t.Helper()
	embedder, err := provider.NewHashingEmbedding("", dimension)
	require.NoError(t, err)
	return h.generator(t, embedder)
}

func (h *harness) generator(t *testing.T, embedder search.Embedder) *domainservice.EmbeddingGenerator {
	t.Helper()
	g, err := domainservice.NewEmbeddingGenerator(embedder, search.DefaultTokenBudget())
	require.NoError(t, err)
	return g
}

func (h *harness) ingestion(c search.Collection, g domainservice.Generator) *Ingestion {
	return h.ingestionWithIndex(c, g, h.index)
}

func (h *harness) ingestionWithIndex(c search.Collection, g domainservice.Generator, index search.VectorIndex) *Ingestion {
	stores := IngestionStores{
		Documents: h.documents,
		Texts:     h.documents,
		Chunks:    h.chunks,
		Jobs:      h.jobs,
	}
	return NewIngestion(stores, index, g, c, h.queue, chunking.DefaultChunkParams(), nil)
}

func (h *harness) documentsService() *Documents {
	return NewDocuments(h.documents, h.documents, h.chunks, h.jobs, h.index, testCollection, h.queue, nil)
}

func (h *harness) register(t *testing.T, projectID, title, text string) document.Document {
	t.Helper()
	doc, err := h.documentsService().Register(context.Background(), projectID, title, "text/plain", text)
	require.NoError(t, err)
	return doc
}

// ingest submits and runs a job for the document.
func (h *harness) ingest(t *testing.T, s *Ingestion, doc document.Document, params IngestParams) error {
	t.Helper()
	ctx := context.Background()
	j, err := s.Submit(ctx, doc.ID(), params)
	require.NoError(t, err)
	return s.Run(ctx, j.ID())
}

func (h *harness) pointCount(t *testing.T) int {
	t.Helper()
	points, err := h.index.Points(context.Background(), testCollection)
	require.NoError(t, err)
	return len(points)
}

var errEmbedderDown = errors.New("embedding endpoint unavailable")

// failingEmbedder always fails.
type failingEmbedder struct {
	model string
}

func (f failingEmbedder) Model() string { return f.model }

func (f failingEmbedder) Embed(context.Context, []string) ([][]float64, error) {
	return nil, errEmbedderDown
}

// cancellingEmbedder cancels the run's context on its first call, as a
// shutdown arriving mid-embedding would.
type cancellingEmbedder struct {
	model  string
	cancel context.CancelFunc
}

func (e cancellingEmbedder) Model() string { return e.model }

func (e cancellingEmbedder) Embed(ctx context.Context, _ []string) ([][]float64, error) {
	e.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

// flakyIndex fails Upsert while failing is set and delegates everything else.
type flakyIndex struct {
	search.VectorIndex
	mu      sync.Mutex
	failing bool
}

func (f *flakyIndex) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyIndex) Upsert(ctx context.Context, collection string, points []search.Point) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("vector store unreachable")
	}
	return f.VectorIndex.Upsert(ctx, collection, points)
}

const (
	gpsParagraph = "GPS receivers compute positioning accuracy from satellite geometry. " +
		"Multipath reflections and ionospheric delay degrade the accuracy of a position fix, " +
		"and differential corrections from reference stations improve GPS positioning accuracy " +
		"to the centimetre level for surveying and precision agriculture."
	radarParagraph = "Radar altimeters measure height above terrain by timing the echo of a " +
		"downward pulse. Their returns are filtered to reject clutter from rain, and the " +
		"altitude reading feeds the flight management system during approach and landing " +
		"in low visibility conditions."
	bakingParagraph = "Sourdough bread rises slowly because wild yeast ferments the dough over " +
		"many hours. Bakers fold the dough, rest it overnight in a cool place, and bake it in " +
		"a hot covered pot so the crust becomes crisp while the crumb stays open and moist."
)
