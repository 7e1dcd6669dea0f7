// Package provider implements embedding providers: remote OpenAI-compatible
// endpoints, a local hugot model, and a deterministic hashing embedder.
package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Common errors.
var (
	// ErrCircuitOpen indicates the provider's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrProviderError indicates a general provider error.
	ErrProviderError = errors.New("provider error")
)

// ProviderError describes a failed call to an embedding provider.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Operation returns the failed operation.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the upstream HTTP status, or 0.
func (e *ProviderError) StatusCode() int { return e.statusCode }

func (e *ProviderError) Error() string {
	if e.statusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.operation, e.statusCode, e.message)
	}
	return fmt.Sprintf("%s: %s", e.operation, e.message)
}

// Unwrap returns the cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Is matches ErrProviderError.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderError }

// newBreaker builds the circuit breaker placed around remote provider calls.
// It trips when at least 60% of 3 or more requests in a 10s window fail and
// half-opens after timeout.
func newBreaker(name string, timeout time.Duration, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", slog.String("breaker", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
}
