package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/search"
	domainservice "github.com/laserpointlabs/odras/domain/service"
	"github.com/laserpointlabs/odras/domain/task"
	"github.com/laserpointlabs/odras/infrastructure/chunking"
)

// IngestParams are the caller-supplied processing parameters. Zero values
// fall back to the configured defaults.
type IngestParams struct {
	Model     string `json:"model" validate:"omitempty,max=255"`
	Strategy  string `json:"strategy" validate:"omitempty,oneof=fixed sentence-boundary hybrid"`
	ChunkSize int    `json:"chunk_size" validate:"gte=0,lte=100000"`
	Overlap   *int   `json:"overlap" validate:"omitempty,gte=0"`
}

// IngestionStores groups the metadata stores the pipeline writes to.
type IngestionStores struct {
	Documents document.Store
	Texts     document.Source
	Chunks    chunk.Store
	Jobs      job.Store
}

// Ingestion runs the chunk, embed, commit chunks, commit vectors pipeline.
// Chunk rows always commit before their vector points; a vector failure
// leaves the chunks in place for the Reconciler.
type Ingestion struct {
	stores     IngestionStores
	index      search.VectorIndex
	generator  domainservice.Generator
	collection search.Collection
	queue      *Queue
	defaults   chunking.ChunkParams
	locks      *keyedLock
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewIngestion creates the ingestion pipeline for one collection.
func NewIngestion(
	stores IngestionStores,
	index search.VectorIndex,
	generator domainservice.Generator,
	collection search.Collection,
	queue *Queue,
	defaults chunking.ChunkParams,
	logger *slog.Logger,
) *Ingestion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestion{
		stores:     stores,
		index:      index,
		generator:  generator,
		collection: collection,
		queue:      queue,
		defaults:   defaults,
		locks:      newKeyedLock(),
		validate:   validator.New(),
		logger:     logger,
	}
}

// Collection returns the collection documents are ingested into.
func (s *Ingestion) Collection() search.Collection { return s.collection }

// Resolve validates params and fills in defaults.
func (s *Ingestion) Resolve(params IngestParams) (job.Params, error) {
	if err := s.validate.Struct(params); err != nil {
		return job.Params{}, domain.Wrap(domain.ErrValidation, "resolve params", err)
	}

	model := params.Model
	if model == "" {
		model = s.collection.Model()
	}
	if model != s.collection.Model() {
		return job.Params{}, domain.Wrap(domain.ErrEmbeddingDimensionMismatch, "resolve params", &domain.DimensionMismatchError{
			Collection:    s.collection.Name(),
			ExpectedModel: s.collection.Model(),
			ActualModel:   model,
			Expected:      s.collection.Dimension(),
		})
	}

	cp := s.defaults
	if params.Strategy != "" {
		cp.Strategy = chunk.Strategy(params.Strategy)
	}
	if params.ChunkSize > 0 {
		cp.Size = params.ChunkSize
	}
	if params.Overlap != nil {
		cp.Overlap = *params.Overlap
	}
	if err := cp.Validate(); err != nil {
		return job.Params{}, domain.Wrap(domain.ErrValidation, "resolve params", err)
	}
	// Longer chunks would be embedded from a truncated prefix.
	if limit := s.generator.MaxTextLength(); cp.Size > limit {
		return job.Params{}, domain.Errorf(domain.ErrValidation, "resolve params",
			"chunk size %d exceeds the embedding limit of %d characters", cp.Size, limit)
	}
	return job.NewParams(model, cp.Strategy, cp.Size, cp.Overlap), nil
}

// Submit creates a pending job for the document and queues it. It fails
// with domain.ErrConflict while another job for the document is in flight.
func (s *Ingestion) Submit(ctx context.Context, documentID string, params IngestParams) (job.Job, error) {
	resolved, err := s.Resolve(params)
	if err != nil {
		return job.Job{}, err
	}

	unlock, err := s.locks.Lock(ctx, documentID)
	if err != nil {
		return job.Job{}, err
	}
	defer unlock()

	if _, err := s.stores.Documents.Get(ctx, documentID); err != nil {
		return job.Job{}, err
	}

	active, err := s.stores.Jobs.Find(ctx, repository.WithDocumentID(documentID), job.WithActive())
	if err != nil {
		return job.Job{}, fmt.Errorf("find active jobs: %w", err)
	}
	if len(active) > 0 {
		return job.Job{}, domain.Errorf(domain.ErrConflict, "submit ingestion",
			"document %s already has job %s %s", documentID, active[0].ID(), active[0].Status())
	}

	j, err := s.stores.Jobs.Save(ctx, job.NewJob(documentID, resolved))
	if err != nil {
		return job.Job{}, domain.Wrap(domain.ErrMetadataWrite, "create job", err)
	}

	payload := map[string]any{
		task.PayloadDocumentID: documentID,
		task.PayloadJobID:      j.ID(),
	}
	if err := s.queue.Enqueue(ctx, task.NewTask(task.OperationIngestDocument, int(task.PriorityUserInitiated), payload)); err != nil {
		_, _ = s.stores.Jobs.Save(context.WithoutCancel(ctx), j.Fail("enqueue failed: "+err.Error()))
		return job.Job{}, fmt.Errorf("enqueue ingestion: %w", err)
	}

	s.logger.Info("ingestion submitted",
		slog.String("document_id", documentID),
		slog.String("job_id", j.ID()),
		slog.String("strategy", resolved.Strategy().String()),
		slog.Int("chunk_size", resolved.ChunkSize()),
		slog.Int("overlap", resolved.Overlap()),
	)
	return j, nil
}

// Run executes a submitted job. Failures are recorded on the job and also
// returned. A job that is already terminal is left alone.
func (s *Ingestion) Run(ctx context.Context, jobID string) error {
	j, err := s.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			s.abandon(ctx, jobID, ctx.Err())
		}
		return err
	}
	if j.Status().IsTerminal() {
		s.logger.Debug("job already finished", slog.String("job_id", jobID), slog.String("status", j.Status().String()))
		return nil
	}

	unlock, err := s.locks.Lock(ctx, j.DocumentID())
	if err != nil {
		s.saveJob(ctx, j.Fail(err.Error()))
		return err
	}
	defer unlock()

	doc, err := s.stores.Documents.Get(ctx, j.DocumentID())
	if err != nil {
		s.saveJob(ctx, j.Start().Fail(err.Error()))
		return err
	}

	run := &ingestRun{Ingestion: s, job: j.Start(), doc: doc, prior: doc.Status()}
	return run.execute(ctx)
}

// ingestRun carries the state of one pipeline execution.
type ingestRun struct {
	*Ingestion
	job   job.Job
	doc   document.Document
	prior document.Status
}

func (r *ingestRun) execute(ctx context.Context) error {
	logger := r.logger.With(slog.String("job_id", r.job.ID()), slog.String("document_id", r.doc.ID()))
	started := time.Now().UTC()

	if err := r.saveJobErr(ctx, r.job); err != nil {
		return r.fail(ctx, err, r.prior)
	}
	if err := r.saveDocErr(ctx, r.doc.WithStatus(document.StatusProcessing)); err != nil {
		return r.fail(ctx, err, r.prior)
	}

	pieces, err := r.chunk(ctx)
	if err != nil {
		return r.fail(ctx, err, r.prior)
	}

	vectors, err := r.generator.Generate(ctx, r.collection, pieces.texts(),
		search.WithProgress(func(completed, total int) {
			logger.Debug("embedding progress", slog.Int("completed", completed), slog.Int("total", total))
		}),
		search.WithBatchError(func(start, end int, err error) {
			logger.Warn("embedding batch failed", slog.Int("start", start), slog.Int("end", end), slog.Any("error", err))
		}),
	)
	if err != nil {
		return r.fail(ctx, err, r.prior)
	}

	previous, err := r.stores.Chunks.Find(ctx, repository.WithDocumentID(r.doc.ID()))
	if err != nil {
		return r.fail(ctx, domain.Wrap(domain.ErrMetadataWrite, "load previous chunks", err), r.prior)
	}

	model := r.collection.Model()
	chunks := make([]chunk.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = chunk.NewChunk(r.doc.ID(), p.Sequence(), p.Content(), p.Start(), p.End(), p.Page(), model)
	}
	if err := r.stores.Chunks.ReplaceForDocument(ctx, r.doc.ID(), chunks); err != nil {
		return r.fail(ctx, err, r.prior)
	}
	logger.Debug("chunks committed", slog.Int("chunks", len(chunks)))

	// From here on chunks are durable; failures leave them for the Reconciler.
	points := make([]search.Point, len(chunks))
	for i, c := range chunks {
		p, err := search.NewPoint(vectors[i], search.Payload{
			ProjectID:      r.doc.ProjectID(),
			DocumentID:     r.doc.ID(),
			ChunkID:        c.ID(),
			SequenceNumber: c.Sequence(),
			ModelName:      model,
			CreatedAt:      c.CreatedAt(),
		})
		if err != nil {
			return r.fail(ctx, domain.Wrap(domain.ErrVectorWrite, "build point", err), document.StatusFailed)
		}
		points[i] = p
	}
	if err := r.index.Upsert(ctx, r.collection.Name(), points); err != nil {
		return r.fail(ctx, domain.Wrap(domain.ErrVectorWrite, "upsert points", err), document.StatusFailed)
	}

	recorded := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		recorded[i] = c.WithVector(c.ID(), model)
	}
	if err := r.stores.Chunks.UpdateVector(ctx, recorded); err != nil {
		return r.fail(ctx, err, document.StatusFailed)
	}

	if stale := chunk.IDs(previous); len(stale) > 0 {
		if err := r.index.Delete(ctx, r.collection.Name(), stale); err != nil {
			logger.Warn("failed to delete superseded points; reconciliation will remove them",
				slog.Int("points", len(stale)), slog.String("error", err.Error()))
		}
	}

	completed := time.Now().UTC()
	stats := document.NewStats(len(chunks), model, r.collection.Dimension(), started, completed)
	if err := r.saveDocErr(ctx, r.doc.Completed(stats)); err != nil {
		return r.fail(ctx, err, document.StatusFailed)
	}
	// The document is already complete; cancellation must not strand the job.
	if err := r.saveJobErr(context.WithoutCancel(ctx), r.job.Complete()); err != nil {
		return err
	}

	logger.Info("ingestion complete",
		slog.Int("chunks", len(chunks)),
		slog.String("model", model),
		slog.Duration("duration", completed.Sub(started)),
	)
	return nil
}

type pieceList []chunking.Chunk

func (p pieceList) texts() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Content()
	}
	return out
}

func (r *ingestRun) chunk(ctx context.Context) (pieceList, error) {
	text, err := r.stores.Texts.Text(ctx, r.doc.ID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Wrap(domain.ErrChunking, "load text", err)
		}
		return nil, fmt.Errorf("load text: %w", err)
	}

	params := r.job.Params()
	cp := chunking.ChunkParams{
		Strategy: params.Strategy(),
		Size:     params.ChunkSize(),
		Overlap:  params.Overlap(),
		MinSize:  r.defaults.MinSize,
	}
	chunks, err := chunking.NewTextChunks(text, cp)
	if err != nil {
		return nil, err
	}
	return chunks.All(), nil
}

// fail records err on the job and reverts the document to status. The
// bookkeeping writes ignore cancellation so an aborted run still leaves a
// terminal job behind.
func (r *ingestRun) fail(ctx context.Context, err error, status document.Status) error {
	ctx = context.WithoutCancel(ctx)
	r.saveJob(ctx, r.job.Fail(err.Error()))
	if _, serr := r.stores.Documents.Save(ctx, r.doc.WithStatus(status)); serr != nil {
		r.logger.Error("failed to record document status", slog.String("document_id", r.doc.ID()), slog.String("error", serr.Error()))
	}
	r.logger.Warn("ingestion failed",
		slog.String("job_id", r.job.ID()),
		slog.String("document_id", r.doc.ID()),
		slog.String("error", err.Error()),
	)
	return err
}

func (r *ingestRun) saveJobErr(ctx context.Context, j job.Job) error {
	if _, err := r.stores.Jobs.Save(ctx, j); err != nil {
		return domain.Wrap(domain.ErrMetadataWrite, "save job", err)
	}
	r.job = j
	return nil
}

func (r *ingestRun) saveDocErr(ctx context.Context, d document.Document) error {
	if _, err := r.stores.Documents.Save(ctx, d); err != nil {
		return domain.Wrap(domain.ErrMetadataWrite, "save document", err)
	}
	return nil
}

// abandon fails a job whose run was cancelled before it could be loaded.
func (s *Ingestion) abandon(ctx context.Context, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	j, err := s.stores.Jobs.Get(ctx, jobID)
	if err != nil || j.Status().IsTerminal() {
		return
	}
	s.saveJob(ctx, j.Fail(cause.Error()))
}

func (s *Ingestion) saveJob(ctx context.Context, j job.Job) {
	if _, err := s.stores.Jobs.Save(context.WithoutCancel(ctx), j); err != nil {
		s.logger.Error("failed to record job status", slog.String("job_id", j.ID()), slog.String("error", err.Error()))
	}
}
