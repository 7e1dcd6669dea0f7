package provider

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheEntries bounds the CachingTransport when no size is given.
const DefaultCacheEntries = 4096

// CachingTransport is an http.RoundTripper that caches POST request/response
// pairs in a bounded in-memory LRU, keyed by the SHA-256 of method + URL +
// request body. Re-embedding unchanged chunk text (re-ingestion, reconciler
// passes) is then served without a network call. Only 2xx responses are
// cached.
type CachingTransport struct {
	inner http.RoundTripper
	cache *lru.Cache[string, cachedResponse]
}

type cachedResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// NewCachingTransport creates a CachingTransport holding at most entries
// responses. If inner is nil, http.DefaultTransport is used.
func NewCachingTransport(entries int, inner http.RoundTripper) (*CachingTransport, error) {
	if inner == nil {
		inner = http.DefaultTransport
	}
	if entries <= 0 {
		entries = DefaultCacheEntries
	}
	cache, err := lru.New[string, cachedResponse](entries)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &CachingTransport{inner: inner, cache: cache}, nil
}

// Len returns the number of cached responses.
func (t *CachingTransport) Len() int { return t.cache.Len() }

// Close drops every cached response.
func (t *CachingTransport) Close() error {
	t.cache.Purge()
	return nil
}

// RoundTrip implements http.RoundTripper.
func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil {
		return t.inner.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))

	key := cacheKey(req.Method, req.URL.String(), body)
	if cached, ok := t.cache.Get(key); ok {
		return &http.Response{
			Status:        http.StatusText(cached.statusCode),
			StatusCode:    cached.statusCode,
			Header:        cached.header.Clone(),
			Body:          io.NopCloser(bytes.NewReader(cached.body)),
			ContentLength: int64(len(cached.body)),
			Request:       req,
		}, nil
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()

	t.cache.Add(key, cachedResponse{
		statusCode: resp.StatusCode,
		header:     resp.Header.Clone(),
		body:       respBody,
	})

	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	return resp, nil
}

func cacheKey(method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte("\n"))
	h.Write([]byte(url))
	h.Write([]byte("\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
