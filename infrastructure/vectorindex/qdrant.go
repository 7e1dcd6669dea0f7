package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/database"
	"github.com/sony/gobreaker"
)

const qdrantScrollPage = 256

// ErrQdrantCircuitOpen is returned while the Qdrant breaker is open.
var ErrQdrantCircuitOpen = errors.New("qdrant circuit breaker open")

// QdrantStatusError is a non-2xx response from Qdrant.
type QdrantStatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *QdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// QdrantIndex implements search.VectorIndex over the Qdrant REST API.
// Collection identities are recorded in the metadata database so the
// declared model name survives alongside Qdrant's own vector size.
type QdrantIndex struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	registry collectionRegistry
	opts     options
}

// NewQdrantIndex creates a QdrantIndex.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, db database.Database, opts ...Option) (*QdrantIndex, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("qdrant url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	q := &QdrantIndex{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		client:   client,
		registry: collectionRegistry{db: db},
		opts:     newOptions(opts...),
	}
	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "qdrant",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var status *QdrantStatusError
			if errors.As(err, &status) {
				return status.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			q.opts.logger.Warn("circuit breaker state change", "breaker", name,
				"from", from.String(), "to", to.String())
		},
	})
	if err := q.registry.migrate(ctx); err != nil {
		return nil, fmt.Errorf("create collection registry: %w", err)
	}
	return q, nil
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection, recreating it when its vector
// size differs from the declared dimension. Recreation drops every point;
// the reconciler re-derives them from the metadata store.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, c search.Collection) error {
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()

	path := "/collections/" + url.PathEscape(c.Name())

	var info qdrantCollectionInfo
	err := q.do(ctx, http.MethodGet, path, nil, &info)
	exists := err == nil
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("get collection %s: %w", c.Name(), err)
	}

	if exists && info.Result.Config.Params.Vectors.Size != c.Dimension() {
		q.opts.logger.Warn("recreating collection with new dimension", "collection", c.Name(),
			"from", info.Result.Config.Params.Vectors.Size, "to", c.Dimension())
		if err := q.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
			return fmt.Errorf("drop collection %s: %w", c.Name(), err)
		}
		exists = false
	}

	if !exists {
		body := map[string]any{
			"vectors": map[string]any{"size": c.Dimension(), "distance": "Cosine"},
		}
		if err := q.do(ctx, http.MethodPut, path, body, nil); err != nil {
			return fmt.Errorf("create collection %s: %w", c.Name(), err)
		}
		index := map[string]any{"field_name": "project_id", "field_schema": "keyword"}
		if err := q.do(ctx, http.MethodPut, path+"/index?wait=true", index, nil); err != nil {
			q.opts.logger.Warn("failed to create project_id payload index", "collection", c.Name(), "error", err)
		}
	}

	if err := q.registry.save(ctx, c); err != nil {
		return fmt.Errorf("register collection %s: %w", c.Name(), err)
	}
	return nil
}

// Collection returns the declared collection.
func (q *QdrantIndex) Collection(ctx context.Context, name string) (search.Collection, error) {
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()
	return q.registry.get(ctx, name)
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload search.Payload `json:"payload"`
}

// Upsert writes points keyed by chunk id and waits for them to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []search.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()

	c, err := q.registry.get(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkDimensions(c, points); err != nil {
		return err
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		batch := make([]qdrantPoint, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, qdrantPoint{ID: p.ID(), Vector: p.Vector(), Payload: p.Payload()})
		}
		path := "/collections/" + url.PathEscape(collection) + "/points?wait=true"
		if err := q.do(ctx, http.MethodPut, path, map[string]any{"points": batch}, nil); err != nil {
			return fmt.Errorf("upsert points into %s: %w", collection, err)
		}
	}
	return nil
}

// Delete removes points by id.
func (q *QdrantIndex) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()

	path := "/collections/" + url.PathEscape(collection) + "/points/delete?wait=true"
	if err := q.do(ctx, http.MethodPost, path, map[string]any{"points": ids}, nil); err != nil {
		return fmt.Errorf("delete points from %s: %w", collection, err)
	}
	return nil
}

type qdrantScoredPoint struct {
	ID      any             `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload"`
}

// Search queries the collection with an optional project filter. Qdrant
// cosine scores in [-1,1] are mapped to [0,1].
func (q *QdrantIndex) Search(ctx context.Context, collection string, req search.Request) ([]search.Candidate, error) {
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()

	c, err := q.registry.get(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(c, req); err != nil {
		return nil, err
	}
	if req.Limit() <= 0 {
		return []search.Candidate{}, nil
	}

	body := map[string]any{
		"vector":       req.Vector(),
		"limit":        req.Limit(),
		"with_payload": true,
	}
	if req.ProjectID() != "" {
		body["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "project_id", "match": map[string]any{"value": req.ProjectID()}},
			},
		}
	}

	var resp struct {
		Result []qdrantScoredPoint `json:"result"`
	}
	path := "/collections/" + url.PathEscape(collection) + "/points/search"
	if err := q.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	candidates := make([]search.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := fmt.Sprint(r.ID)
		payload, err := decodePayload(r.Payload)
		if err != nil {
			q.opts.logger.Warn("skipping point with invalid payload", "collection", collection, "point_id", id)
			continue
		}
		candidates = append(candidates, search.NewCandidate(id, cosineScore(r.Score), payload))
	}
	return topK(candidates, req.Limit()), nil
}

type qdrantRecord struct {
	ID      any             `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Points scrolls through the whole collection. Qdrant holds one vector size
// per collection, so every point reports the collection's configured size
// and vectors are not transferred. Each page gets its own deadline.
func (q *QdrantIndex) Points(ctx context.Context, collection string) ([]search.PointInfo, error) {
	dimension, err := q.vectorSize(ctx, collection)
	if err != nil {
		return nil, err
	}

	path := "/collections/" + url.PathEscape(collection) + "/points/scroll"
	var (
		infos  []search.PointInfo
		offset any
	)
	for {
		records, next, err := q.scrollPage(ctx, path, offset)
		if err != nil {
			return nil, fmt.Errorf("scan collection %s: %w", collection, err)
		}
		for _, r := range records {
			payload, err := decodePayload(r.Payload)
			infos = append(infos, search.PointInfo{
				ID:         fmt.Sprint(r.ID),
				Dimension:  dimension,
				Payload:    payload,
				PayloadErr: err,
			})
		}
		if next == nil {
			return infos, nil
		}
		offset = next
	}
}

func (q *QdrantIndex) vectorSize(ctx context.Context, collection string) (int, error) {
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()

	if _, err := q.registry.get(ctx, collection); err != nil {
		return 0, err
	}
	var info qdrantCollectionInfo
	if err := q.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(collection), nil, &info); err != nil {
		return 0, fmt.Errorf("get collection %s: %w", collection, err)
	}
	return info.Result.Config.Params.Vectors.Size, nil
}

func (q *QdrantIndex) scrollPage(ctx context.Context, path string, offset any) ([]qdrantRecord, any, error) {
	ctx, cancel := q.opts.deadline(ctx)
	defer cancel()

	body := map[string]any{
		"limit":        qdrantScrollPage,
		"with_payload": true,
		"with_vector":  false,
	}
	if offset != nil {
		body["offset"] = offset
	}
	var resp struct {
		Result struct {
			Points         []qdrantRecord `json:"points"`
			NextPageOffset any            `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Result.Points, resp.Result.NextPageOffset, nil
}

func decodePayload(raw json.RawMessage) (search.Payload, error) {
	var payload search.Payload
	if len(raw) == 0 {
		return payload, fmt.Errorf("%w: missing", search.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", search.ErrInvalidPayload, err)
	}
	return payload, payload.Validate()
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body any, out any) error {
	_, err := q.breaker.Execute(func() (any, error) {
		return nil, q.send(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrQdrantCircuitOpen, err)
	}
	return err
}

func (q *QdrantIndex) send(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &QdrantStatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isStatus(err error, status int) bool {
	var e *QdrantStatusError
	return errors.As(err, &e) && e.Status == status
}
