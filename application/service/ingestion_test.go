package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/search"
	domainservice "github.com/laserpointlabs/odras/domain/service"
	"github.com/laserpointlabs/odras/domain/task"
	"github.com/laserpointlabs/odras/infrastructure/provider"
)

func intPtr(v int) *int { return &v }

func TestIngestion_TwoParagraphs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))

	doc := h.register(t, "proj-1", "Navigation", gpsParagraph+"\n\n"+radarParagraph)
	require.NoError(t, h.ingest(t, s, doc, IngestParams{ChunkSize: 500, Overlap: intPtr(50)}))

	chunks, err := h.chunks.Find(ctx, append(chunk.WithSequenceOrder(), repository.WithDocumentID(doc.ID()))...)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Sequence())
	assert.Equal(t, 1, chunks[1].Sequence())
	assert.Less(t, chunks[1].StartOffset(), chunks[0].EndOffset(), "second chunk should overlap the first")
	for _, ch := range chunks {
		assert.True(t, ch.HasVector())
		assert.Equal(t, "hashing-384", ch.ModelName())
	}

	assert.Equal(t, 2, h.pointCount(t))

	saved, err := h.documents.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusComplete, saved.Status())
	assert.Equal(t, 2, saved.Stats().ChunkCount())
	assert.Equal(t, 384, saved.Stats().Dimension())

	jobs, err := NewJobs(h.jobs, h.tasks, nil).ListByDocument(ctx, doc.ID())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.StatusComplete, jobs[0].Status())
	assert.NotNil(t, jobs[0].CompletedAt())
}

func TestIngestion_SubmitQueuesTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph)

	j, err := s.Submit(ctx, doc.ID(), IngestParams{})
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, j.Status())
	assert.Equal(t, "hashing-384", j.Params().Model())
	assert.Equal(t, chunk.StrategyHybrid, j.Params().Strategy())

	pending, err := h.queue.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.OperationIngestDocument, pending[0].Operation())
	assert.Equal(t, j.ID(), pending[0].Payload()[task.PayloadJobID])
	assert.Equal(t, doc.ID(), pending[0].Payload()[task.PayloadDocumentID])
}

func TestIngestion_EmbeddingFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.generator(t, failingEmbedder{model: "hashing-384"}))

	doc := h.register(t, "proj-1", "Navigation", gpsParagraph+"\n\n"+radarParagraph)
	j, err := s.Submit(ctx, doc.ID(), IngestParams{})
	require.NoError(t, err)

	err = s.Run(ctx, j.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.ErrorIs(t, err, errEmbedderDown)

	failed, err := h.jobs.Get(ctx, j.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status())
	assert.Contains(t, failed.Error(), errEmbedderDown.Error())

	count, err := h.chunks.Count(ctx, repository.WithDocumentID(doc.ID()))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, h.pointCount(t))

	saved, err := h.documents.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, saved.Status())
}

func TestIngestion_ConflictWhileActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph)

	first, err := s.Submit(ctx, doc.ID(), IngestParams{})
	require.NoError(t, err)

	_, err = s.Submit(ctx, doc.ID(), IngestParams{})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, s.Run(ctx, first.ID()))

	_, err = s.Submit(ctx, doc.ID(), IngestParams{})
	assert.NoError(t, err, "a finished job must not block a new one")
}

func TestIngestion_VectorFailureKeepsChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	g := h.hashingGenerator(t, 384)
	flaky := &flakyIndex{VectorIndex: h.index, failing: true}
	s := h.ingestionWithIndex(c, g, flaky)

	doc := h.register(t, "proj-1", "Navigation", gpsParagraph+"\n\n"+radarParagraph)
	err := h.ingest(t, s, doc, IngestParams{ChunkSize: 500, Overlap: intPtr(50)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVectorWrite)

	chunks, err := h.chunks.Find(ctx, repository.WithDocumentID(doc.ID()))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, ch := range chunks {
		assert.False(t, ch.HasVector())
	}
	assert.Zero(t, h.pointCount(t))

	saved, err := h.documents.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, saved.Status())

	report, err := NewReconciler(h.chunks, h.index, g, nil).Reconcile(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Repaired)
	assert.Equal(t, 2, h.pointCount(t))
}

func TestIngestion_ReingestReplacesChunksAndPoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph+"\n\n"+radarParagraph)

	require.NoError(t, h.ingest(t, s, doc, IngestParams{ChunkSize: 500, Overlap: intPtr(50)}))
	require.NoError(t, h.ingest(t, s, doc, IngestParams{Strategy: "fixed", ChunkSize: 200, Overlap: intPtr(20)}))

	count, err := h.chunks.Count(ctx, repository.WithDocumentID(doc.ID()))
	require.NoError(t, err)
	assert.Greater(t, count, int64(2))
	assert.Equal(t, int(count), h.pointCount(t), "superseded points must be removed")
}

func TestIngestion_Resolve(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))

	t.Run("defaults", func(t *testing.T) {
		p, err := s.Resolve(IngestParams{})
		require.NoError(t, err)
		assert.Equal(t, "hashing-384", p.Model())
		assert.Equal(t, 1000, p.ChunkSize())
		assert.Equal(t, 100, p.Overlap())
	})

	t.Run("explicit zero overlap", func(t *testing.T) {
		p, err := s.Resolve(IngestParams{Overlap: intPtr(0)})
		require.NoError(t, err)
		assert.Zero(t, p.Overlap())
	})

	t.Run("other model", func(t *testing.T) {
		_, err := s.Resolve(IngestParams{Model: "text-embedding-3-large"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingDimensionMismatch)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := s.Resolve(IngestParams{Strategy: "semantic"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("overlap not below size", func(t *testing.T) {
		_, err := s.Resolve(IngestParams{ChunkSize: 100, Overlap: intPtr(100)})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("chunk size at embedding limit", func(t *testing.T) {
		p, err := s.Resolve(IngestParams{ChunkSize: search.DefaultTokenBudget().MaxChars()})
		require.NoError(t, err)
		assert.Equal(t, 16000, p.ChunkSize())
	})

	t.Run("chunk size above embedding limit", func(t *testing.T) {
		_, err := s.Resolve(IngestParams{ChunkSize: 16001})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, err.Error(), "embedding limit")
	})
}

func TestIngestion_ResolveHonoursSmallBudget(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, "hashing-384", 384)
	embedder, err := provider.NewHashingEmbedding("", 384)
	require.NoError(t, err)
	budget, err := search.NewTokenBudget(512)
	require.NoError(t, err)
	g, err := domainservice.NewEmbeddingGenerator(embedder, budget)
	require.NoError(t, err)
	s := h.ingestion(c, g)

	_, err = s.Resolve(IngestParams{})
	assert.ErrorIs(t, err, domain.ErrValidation, "the default chunk size does not fit a 512 character budget")

	p, err := s.Resolve(IngestParams{ChunkSize: 512, Overlap: intPtr(50)})
	require.NoError(t, err)
	assert.Equal(t, 512, p.ChunkSize())
}

func TestIngestion_SubmitUnknownDocument(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))

	_, err := s.Submit(context.Background(), "missing", IngestParams{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestion_RunFinishedJobIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph)

	j, err := s.Submit(ctx, doc.ID(), IngestParams{})
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx, j.ID()))
	require.NoError(t, s.Run(ctx, j.ID()))

	done, err := h.jobs.Get(ctx, j.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusComplete, done.Status())
}

func TestIngestion_CancelledBeforeRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	s := h.ingestion(c, h.hashingGenerator(t, 384))
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph)

	j, err := s.Submit(ctx, doc.ID(), IngestParams{})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, s.Run(cancelled, j.ID()))

	got, err := h.jobs.Get(ctx, j.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status())
	assert.Contains(t, got.Error(), context.Canceled.Error())

	saved, err := h.documents.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, saved.Status())

	count, err := h.chunks.Count(ctx, repository.WithDocumentID(doc.ID()))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, h.pointCount(t))

	_, err = s.Submit(ctx, doc.ID(), IngestParams{})
	assert.NoError(t, err, "a cancelled run must not block the next submission")
}

func TestIngestion_CancelledDuringEmbedding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := h.ingestion(c, h.generator(t, cancellingEmbedder{model: "hashing-384", cancel: cancel}))
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph+"\n\n"+radarParagraph)

	j, err := s.Submit(ctx, doc.ID(), IngestParams{})
	require.NoError(t, err)

	err = s.Run(runCtx, j.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := h.jobs.Get(ctx, j.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status())
	assert.NotNil(t, got.CompletedAt())

	saved, err := h.documents.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, saved.Status())

	count, err := h.chunks.Count(ctx, repository.WithDocumentID(doc.ID()))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, h.pointCount(t))
}

func TestIngestion_CancelledReingestKeepsCommittedState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.collection(t, "hashing-384", 384)
	doc := h.register(t, "proj-1", "Navigation", gpsParagraph+"\n\n"+radarParagraph)

	require.NoError(t, h.ingest(t, h.ingestion(c, h.hashingGenerator(t, 384)), doc, IngestParams{ChunkSize: 500, Overlap: intPtr(50)}))
	before, err := h.chunks.Find(ctx, append(chunk.WithSequenceOrder(), repository.WithDocumentID(doc.ID()))...)
	require.NoError(t, err)
	require.NotEmpty(t, before)
	points := h.pointCount(t)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := h.ingestion(c, h.generator(t, cancellingEmbedder{model: "hashing-384", cancel: cancel}))
	j, err := s.Submit(ctx, doc.ID(), IngestParams{ChunkSize: 200, Overlap: intPtr(20)})
	require.NoError(t, err)
	require.Error(t, s.Run(runCtx, j.ID()))

	got, err := h.jobs.Get(ctx, j.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status())

	saved, err := h.documents.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusComplete, saved.Status())
	assert.Equal(t, len(before), saved.Stats().ChunkCount())

	after, err := h.chunks.Find(ctx, append(chunk.WithSequenceOrder(), repository.WithDocumentID(doc.ID()))...)
	require.NoError(t, err)
	assert.Equal(t, chunk.IDs(before), chunk.IDs(after))
	assert.Equal(t, points, h.pointCount(t))
}
