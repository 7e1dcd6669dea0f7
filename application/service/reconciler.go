package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/search"
	domainservice "github.com/laserpointlabs/odras/domain/service"
)

const (
	reconcileBatchSize = 64
	reconcilePageSize  = 500
)

// Report summarises one reconciliation pass.
type Report struct {
	Collection     string        `json:"collection"`
	Repaired       int           `json:"repaired"`
	OrphansRemoved int           `json:"orphans_removed"`
	Failed         int           `json:"failed"`
	Elapsed        time.Duration `json:"-"`
}

// Reconciler restores the 1:1 correspondence between chunks and vector
// points. It only adds, replaces or removes points; chunk rows are never
// deleted and their text is never touched.
type Reconciler struct {
	chunks    chunk.Store
	index     search.VectorIndex
	generator domainservice.Generator
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(chunks chunk.Store, index search.VectorIndex, generator domainservice.Generator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{chunks: chunks, index: index, generator: generator, logger: logger}
}

// Reconcile runs one pass over the named collection. Per-item failures are
// logged, counted in Report.Failed and skipped. Errors are returned only
// when the pass cannot run at all.
func (r *Reconciler) Reconcile(ctx context.Context, collectionName string) (Report, error) {
	start := time.Now()
	report := Report{Collection: collectionName}
	logger := r.logger.With(slog.String("collection", collectionName))

	c, err := r.index.Collection(ctx, collectionName)
	if err != nil {
		return report, err
	}
	if r.generator.Model() != c.Model() {
		return report, domain.Wrap(domain.ErrEmbeddingDimensionMismatch, "reconcile", &domain.DimensionMismatchError{
			Collection:    c.Name(),
			ExpectedModel: c.Model(),
			ActualModel:   r.generator.Model(),
			Expected:      c.Dimension(),
		})
	}

	present, err := r.prunePoints(ctx, c, &report, logger)
	if err != nil {
		return report, err
	}

	pending, err := r.chunksNeedingVectors(ctx, c, present)
	if err != nil {
		return report, err
	}

	for i := 0; i < len(pending); i += reconcileBatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(i+reconcileBatchSize, len(pending))
		repaired, failed, err := r.repair(ctx, c, pending[i:end], logger)
		report.Repaired += repaired
		report.Failed += failed
		if err != nil {
			return report, err
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("reconciliation complete",
		slog.Int("repaired", report.Repaired),
		slog.Int("orphans_removed", report.OrphansRemoved),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Elapsed),
	)
	return report, nil
}

// prunePoints deletes orphaned, malformed and wrong-dimension points and
// returns the ids of the points that remain valid.
func (r *Reconciler) prunePoints(ctx context.Context, c search.Collection, report *Report, logger *slog.Logger) (map[string]bool, error) {
	points, err := r.index.Points(ctx, c.Name())
	if err != nil {
		return nil, domain.Wrap(domain.ErrReconciliation, "scan points", err)
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	existing, err := r.chunks.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, domain.Wrap(domain.ErrReconciliation, "check chunk ids", err)
	}

	present := make(map[string]bool, len(points))
	var orphans, mismatched []string
	for _, p := range points {
		switch {
		case p.PayloadErr != nil:
			logger.Debug("point payload invalid", slog.String("point_id", p.ID), slog.String("error", p.PayloadErr.Error()))
			orphans = append(orphans, p.ID)
		case p.Payload.ChunkID != p.ID:
			logger.Debug("point payload names another chunk", slog.String("point_id", p.ID), slog.String("chunk_id", p.Payload.ChunkID))
			orphans = append(orphans, p.ID)
		case !existing[p.ID]:
			orphans = append(orphans, p.ID)
		case p.Dimension != c.Dimension():
			mismatched = append(mismatched, p.ID)
		default:
			present[p.ID] = true
		}
	}

	if len(orphans) > 0 {
		if err := r.index.Delete(ctx, c.Name(), orphans); err != nil {
			report.Failed += len(orphans)
			logger.Error("failed to delete orphaned points", slog.Int("points", len(orphans)),
				slog.String("error", domain.Wrap(domain.ErrReconciliation, "delete orphans", err).Error()))
		} else {
			report.OrphansRemoved += len(orphans)
		}
	}

	if len(mismatched) > 0 {
		// Stale-dimension points are re-derived below because they are no
		// longer in present.
		if err := r.index.Delete(ctx, c.Name(), mismatched); err != nil {
			report.Failed += len(mismatched)
			logger.Error("failed to delete wrong-dimension points", slog.Int("points", len(mismatched)),
				slog.String("error", domain.Wrap(domain.ErrReconciliation, "delete mismatched", err).Error()))
		} else {
			logger.Info("deleted wrong-dimension points", slog.Int("points", len(mismatched)),
				slog.Int("declared_dimension", c.Dimension()))
		}
	}
	return present, nil
}

// chunksNeedingVectors pages through every chunk and selects those with no
// vector, a vector from another model, or no valid point in the index.
func (r *Reconciler) chunksNeedingVectors(ctx context.Context, c search.Collection, present map[string]bool) ([]chunk.Chunk, error) {
	var pending []chunk.Chunk
	for offset := 0; ; offset += reconcilePageSize {
		opts := append(chunk.WithSequenceOrder(), repository.WithOrderAsc("id"),
			repository.WithLimit(reconcilePageSize), repository.WithOffset(offset))
		page, err := r.chunks.Find(ctx, opts...)
		if err != nil {
			return nil, domain.Wrap(domain.ErrReconciliation, "list chunks", err)
		}
		for _, ch := range page {
			if ch.NeedsVector(c.Model()) || !present[ch.ID()] {
				pending = append(pending, ch)
			}
		}
		if len(page) < reconcilePageSize {
			return pending, nil
		}
	}
}

// repair re-embeds one batch of chunks and upserts their points. A failing
// batch is retried item by item so one bad chunk cannot sink its neighbours.
// Only configuration errors abort the pass.
func (r *Reconciler) repair(ctx context.Context, c search.Collection, batch []chunk.Chunk, logger *slog.Logger) (int, int, error) {
	vectors, err := r.generator.Generate(ctx, c, chunk.Texts(batch))
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingDimensionMismatch) {
			return 0, 0, err
		}
		if len(batch) == 1 {
			logger.Warn("chunk re-embedding failed", slog.String("chunk_id", batch[0].ID()),
				slog.String("error", domain.Wrap(domain.ErrReconciliation, "embed chunk", err).Error()))
			return 0, 1, nil
		}
		var repaired, failed int
		for i := range batch {
			n, f, err := r.repair(ctx, c, batch[i:i+1], logger)
			repaired += n
			failed += f
			if err != nil {
				return repaired, failed, err
			}
		}
		return repaired, failed, nil
	}

	hydrated, err := r.chunks.FindHydrated(ctx, chunk.IDs(batch))
	if err != nil {
		logger.Warn("failed to load chunk documents", slog.Int("chunks", len(batch)),
			slog.String("error", domain.Wrap(domain.ErrReconciliation, "hydrate chunks", err).Error()))
		return 0, len(batch), nil
	}

	points := make([]search.Point, 0, len(batch))
	kept := make([]chunk.Chunk, 0, len(batch))
	failed := 0
	for i, ch := range batch {
		h, ok := hydrated[ch.ID()]
		if !ok {
			// Deleted since the scan; nothing to repair.
			continue
		}
		p, err := search.NewPoint(vectors[i], search.Payload{
			ProjectID:      h.ProjectID,
			DocumentID:     ch.DocumentID(),
			ChunkID:        ch.ID(),
			SequenceNumber: ch.Sequence(),
			ModelName:      c.Model(),
			CreatedAt:      ch.CreatedAt(),
		})
		if err != nil {
			failed++
			logger.Warn("invalid point for chunk", slog.String("chunk_id", ch.ID()), slog.String("error", err.Error()))
			continue
		}
		points = append(points, p)
		kept = append(kept, ch.WithVector(ch.ID(), c.Model()))
	}
	if len(points) == 0 {
		return 0, failed, nil
	}

	if err := r.index.Upsert(ctx, c.Name(), points); err != nil {
		logger.Warn("failed to upsert repaired points", slog.Int("points", len(points)),
			slog.String("error", domain.Wrap(domain.ErrReconciliation, "upsert points", err).Error()))
		return 0, failed + len(points), nil
	}
	if err := r.chunks.UpdateVector(ctx, kept); err != nil {
		logger.Warn("failed to record repaired vectors", slog.Int("chunks", len(kept)),
			slog.String("error", domain.Wrap(domain.ErrReconciliation, "record vectors", err).Error()))
		return 0, failed + len(kept), nil
	}
	return len(kept), failed, nil
}
