package search

import (
	"fmt"
	"unicode/utf8"
)

// TokenBudget constrains embedding batches to stay within model token limits.
// It holds a character budget and a maximum batch size: each batch's total
// (truncated) text must not exceed maxChars, each batch contains at most
// maxBatchSize texts, and individual texts are truncated to maxChars.
type TokenBudget struct {
	maxChars     int
	maxBatchSize int
}

const defaultMaxBatchSize = 10

// NewTokenBudget creates a TokenBudget with the given character limit.
// maxChars must be positive.
func NewTokenBudget(maxChars int) (TokenBudget, error) {
	if maxChars <= 0 {
		return TokenBudget{}, fmt.Errorf("NewTokenBudget: maxChars must be positive, got %d", maxChars)
	}
	return TokenBudget{maxChars: maxChars, maxBatchSize: defaultMaxBatchSize}, nil
}

// DefaultTokenBudget returns a conservative budget of 16 000 characters
// (~5 300 tokens at ~3 chars/token), safe for 8 192-token models like
// text-embedding-3-small.
func DefaultTokenBudget() TokenBudget {
	b, _ := NewTokenBudget(16000)
	return b
}

// WithMaxBatchSize returns a new TokenBudget with the given maximum number
// of documents per batch. Values <= 0 are clamped to 1.
func (b TokenBudget) WithMaxBatchSize(n int) TokenBudget {
	if n <= 0 {
		n = 1
	}
	b.maxBatchSize = n
	return b
}

// MaxChars returns the per-text character limit.
func (b TokenBudget) MaxChars() int { return b.maxChars }

// Truncate returns text capped to the character (rune) limit.
func (b TokenBudget) Truncate(text string) string {
	if utf8.RuneCountInString(text) <= b.maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:b.maxChars])
}

// Span is a half-open range [Start, End) of batch positions.
type Span struct {
	Start int
	End   int
}

// Len returns the number of texts in the span.
func (s Span) Len() int { return s.End - s.Start }

// Batches partitions texts into consecutive spans whose total truncated
// character count stays within the budget and whose size does not exceed
// maxBatchSize. A single text whose truncated length still exceeds the
// character budget is placed alone in its own span.
func (b TokenBudget) Batches(texts []string) []Span {
	if len(texts) == 0 {
		return nil
	}

	var spans []Span
	i := 0

	for i < len(texts) {
		start := i
		batchChars := 0

		for i < len(texts) {
			if i-start >= b.maxBatchSize && i > start {
				break
			}

			textLen := min(utf8.RuneCountInString(texts[i]), b.maxChars)

			if batchChars+textLen > b.maxChars && i > start {
				break
			}

			batchChars += textLen
			i++
		}

		spans = append(spans, Span{Start: start, End: i})
	}

	return spans
}
