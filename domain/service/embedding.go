package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/search"
)

// Generator turns chunk texts into vectors for one collection.
type Generator interface {
	// Generate returns one vector per text, in input order. Either every
	// text is embedded or an error is returned; there are no partial results.
	Generate(ctx context.Context, collection search.Collection, texts []string, opts ...search.GenerateOption) ([][]float64, error)
	// Model returns the model identifier of the underlying embedder.
	Model() string
	// MaxTextLength is the longest text, in runes, embedded without
	// truncation.
	MaxTextLength() int
}

// EmbeddingGenerator implements Generator over a search.Embedder.
type EmbeddingGenerator struct {
	embedder    search.Embedder
	budget      search.TokenBudget
	parallelism int
	timeout     time.Duration
}

// GeneratorOption configures an EmbeddingGenerator.
type GeneratorOption func(*EmbeddingGenerator)

// WithParallelism sets how many batches are embedded concurrently.
func WithParallelism(n int) GeneratorOption {
	return func(g *EmbeddingGenerator) {
		if n > 0 {
			g.parallelism = n
		}
	}
}

// WithEmbedTimeout bounds each embedder call.
func WithEmbedTimeout(d time.Duration) GeneratorOption {
	return func(g *EmbeddingGenerator) { g.timeout = d }
}

// NewEmbeddingGenerator creates a generator.
// The budget controls text truncation and batching.
func NewEmbeddingGenerator(embedder search.Embedder, budget search.TokenBudget, opts ...GeneratorOption) (*EmbeddingGenerator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("NewEmbeddingGenerator: nil embedder")
	}
	g := &EmbeddingGenerator{
		embedder:    embedder,
		budget:      budget,
		parallelism: 1,
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Model returns the embedder's model identifier.
func (g *EmbeddingGenerator) Model() string { return g.embedder.Model() }

// MaxTextLength returns the budget's per-text character limit.
func (g *EmbeddingGenerator) MaxTextLength() int { return g.budget.MaxChars() }

// CheckIdentity verifies the embedder produces vectors for the collection's model.
func (g *EmbeddingGenerator) CheckIdentity(collection search.Collection) error {
	if g.embedder.Model() == collection.Model() {
		return nil
	}
	return domain.Wrap(domain.ErrEmbeddingDimensionMismatch, "check identity", &domain.DimensionMismatchError{
		Collection:    collection.Name(),
		ExpectedModel: collection.Model(),
		ActualModel:   g.embedder.Model(),
		Expected:      collection.Dimension(),
	})
}

// Generate embeds texts in parallel batches. Each batch writes its own
// slice of the output so input order is preserved. The first failing batch
// cancels the rest.
func (g *EmbeddingGenerator) Generate(ctx context.Context, collection search.Collection, texts []string, opts ...search.GenerateOption) ([][]float64, error) {
	if err := g.CheckIdentity(collection); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	cfg := search.NewGenerateConfig(opts...)
	spans := g.budget.Batches(texts)
	vectors := make([][]float64, len(texts))

	var (
		mu        sync.Mutex
		completed int
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(g.parallelism)

	for _, span := range spans {
		group.Go(func() error {
			batch := make([]string, span.Len())
			for j := range batch {
				batch[j] = g.budget.Truncate(texts[span.Start+j])
			}

			out, err := g.embed(gctx, batch)
			if err == nil {
				err = g.validate(collection, out, len(batch))
			}
			if err != nil {
				if cb := cfg.BatchError(); cb != nil {
					cb(span.Start, span.End, err)
				}
				return err
			}

			copy(vectors[span.Start:span.End], out)

			mu.Lock()
			completed += span.Len()
			if cb := cfg.Progress(); cb != nil {
				cb(completed, len(texts))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (g *EmbeddingGenerator) embed(ctx context.Context, batch []string) ([][]float64, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.embedder.Embed(ctx, batch)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbedding, "embed batch", err)
	}
	return out, nil
}

func (g *EmbeddingGenerator) validate(collection search.Collection, out [][]float64, expected int) error {
	if len(out) != expected {
		return domain.Errorf(domain.ErrEmbedding, "embed batch", "count mismatch: got %d vectors for %d texts", len(out), expected)
	}
	for _, v := range out {
		if len(v) != collection.Dimension() {
			return domain.Wrap(domain.ErrEmbeddingDimensionMismatch, "embed batch", &domain.DimensionMismatchError{
				Collection:    collection.Name(),
				ExpectedModel: collection.Model(),
				ActualModel:   g.embedder.Model(),
				Expected:      collection.Dimension(),
				Actual:        len(v),
			})
		}
	}
	return nil
}

// ProbeDimension embeds a short text to discover the embedder's output size.
func ProbeDimension(ctx context.Context, embedder search.Embedder) (int, error) {
	out, err := embedder.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, domain.Wrap(domain.ErrEmbedding, "probe dimension", err)
	}
	if len(out) != 1 || len(out[0]) == 0 {
		return 0, domain.Wrap(domain.ErrEmbedding, "probe dimension", errors.New("embedder returned no vector"))
	}
	return len(out[0]), nil
}
