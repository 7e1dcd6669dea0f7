// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/search"
	domainservice "github.com/laserpointlabs/odras/domain/service"
)

// Search answers semantic queries against one collection. Vector points
// only rank candidates; text and metadata always come from the metadata
// store.
type Search struct {
	chunks         chunk.Store
	index          search.VectorIndex
	generator      domainservice.Generator
	collectionName string
	defaults       []search.QueryOption
	logger         *slog.Logger
}

// NewSearch creates a Search service. defaults are applied before the
// options of each query.
func NewSearch(
	chunks chunk.Store,
	index search.VectorIndex,
	generator domainservice.Generator,
	collectionName string,
	logger *slog.Logger,
	defaults ...search.QueryOption,
) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{
		chunks:         chunks,
		index:          index,
		generator:      generator,
		collectionName: collectionName,
		defaults:       defaults,
		logger:         logger,
	}
}

// Query embeds text with the collection's model, retrieves candidates and
// re-hydrates them from the metadata store. Embedding or index failures
// return domain.ErrSearchUnavailable; no matches is an empty result.
func (s *Search) Query(ctx context.Context, text string, opts ...search.QueryOption) (search.Results, error) {
	start := time.Now()
	cfg := search.NewQueryConfig(append(append([]search.QueryOption{}, s.defaults...), opts...)...)

	if strings.TrimSpace(text) == "" {
		return search.Results{}, domain.Errorf(domain.ErrValidation, "search", "query text is empty")
	}
	if cfg.MinScore() < 0 || cfg.MinScore() > 1 {
		return search.Results{}, domain.Errorf(domain.ErrValidation, "search", "min_score %.3f is outside [0,1]", cfg.MinScore())
	}

	c, err := s.index.Collection(ctx, s.collectionName)
	if err != nil {
		return search.Results{}, domain.Wrap(domain.ErrSearchUnavailable, "load collection", err)
	}

	vectors, err := s.generator.Generate(ctx, c, []string{text})
	if err != nil {
		// A model mismatch still matches ErrEmbeddingDimensionMismatch through the cause.
		return search.Results{}, domain.Wrap(domain.ErrSearchUnavailable, "embed query", err)
	}

	req := search.NewRequest(vectors[0], cfg.CandidateCount()).WithProjectID(cfg.ProjectID())
	candidates, err := s.index.Search(ctx, c.Name(), req)
	if err != nil {
		return search.Results{}, domain.Wrap(domain.ErrSearchUnavailable, "query index", err)
	}
	if len(candidates) == 0 {
		return search.NewResults(nil, 0, time.Since(start)), nil
	}

	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.PointID()
	}
	hydrated, err := s.chunks.FindHydrated(ctx, ids)
	if err != nil {
		return search.Results{}, domain.Wrap(domain.ErrSearchUnavailable, "hydrate candidates", err)
	}

	results := make([]search.Result, 0, len(candidates))
	dropped := 0
	for _, cand := range candidates {
		h, ok := hydrated[cand.PointID()]
		if !ok {
			dropped++
			continue
		}
		// The project filter is re-applied against the authoritative row.
		if cfg.ProjectID() != "" && h.ProjectID != cfg.ProjectID() {
			continue
		}
		if cand.Score() < cfg.MinScore() {
			continue
		}
		ch := h.Chunk
		results = append(results, search.NewResult(
			ch.ID(), ch.DocumentID(), h.ProjectID, h.DocumentTitle, h.DocumentType,
			ch.Sequence(), ch.Content(), ch.StartOffset(), ch.EndOffset(), ch.Page(),
			cand.Score(),
		))
	}
	if dropped > 0 {
		s.logger.Debug("dropped candidates missing from metadata store",
			slog.Int("dropped", dropped), slog.String("collection", c.Name()))
	}

	search.SortResults(results)
	total := len(results)
	if len(results) > cfg.Limit() {
		results = results[:cfg.Limit()]
	}

	return search.NewResults(results, total, time.Since(start)), nil
}
