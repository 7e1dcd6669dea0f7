package search

// BatchProgress is called after each embedding batch completes.
// completed is the running total of texts embedded so far;
// total is the overall number of texts in the request.
type BatchProgress func(completed, total int)

// BatchError is called when an embedding batch fails.
// batchStart and batchEnd are the text offsets of the failed batch;
// err is the upstream error (e.g. HTTP 429, timeout, auth failure).
type BatchError func(batchStart, batchEnd int, err error)

// GenerateOption configures the behaviour of an embedding generation call.
type GenerateOption func(*GenerateConfig)

// GenerateConfig holds the resolved configuration for a generation call.
type GenerateConfig struct {
	progress   BatchProgress
	batchError BatchError
}

// NewGenerateConfig applies all options and returns the resolved config.
func NewGenerateConfig(opts ...GenerateOption) GenerateConfig {
	var cfg GenerateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Progress returns the progress callback, or nil if none was set.
func (c GenerateConfig) Progress() BatchProgress { return c.progress }

// BatchError returns the batch error callback, or nil if none was set.
func (c GenerateConfig) BatchError() BatchError { return c.batchError }

// WithProgress registers a callback that is invoked after each batch
// of embeddings is generated. Batches may finish out of order.
func WithProgress(fn BatchProgress) GenerateOption {
	return func(c *GenerateConfig) { c.progress = fn }
}

// WithBatchError registers a callback that is invoked when an individual
// batch fails, before the whole generation call is aborted.
func WithBatchError(fn BatchError) GenerateOption {
	return func(c *GenerateConfig) { c.batchError = fn }
}
