package search

import (
	"cmp"
	"slices"
	"time"
)

// Result is one ranked hit. Text and metadata come from the metadata store,
// never from the vector payload.
type Result struct {
	chunkID       string
	documentID    string
	projectID     string
	documentTitle string
	documentType  string
	sequence      int
	content       string
	startOffset   int
	endOffset     int
	page          *int
	score         float64
}

// NewResult creates a Result.
func NewResult(
	chunkID, documentID, projectID, documentTitle, documentType string,
	sequence int,
	content string,
	startOffset, endOffset int,
	page *int,
	score float64,
) Result {
	return Result{
		chunkID:       chunkID,
		documentID:    documentID,
		projectID:     projectID,
		documentTitle: documentTitle,
		documentType:  documentType,
		sequence:      sequence,
		content:       content,
		startOffset:   startOffset,
		endOffset:     endOffset,
		page:          page,
		score:         score,
	}
}

// ChunkID returns the chunk id.
func (r Result) ChunkID() string { return r.chunkID }

// DocumentID returns the document id.
func (r Result) DocumentID() string { return r.documentID }

// ProjectID returns the project id.
func (r Result) ProjectID() string { return r.projectID }

// DocumentTitle returns the document title.
func (r Result) DocumentTitle() string { return r.documentTitle }

// DocumentType returns the document type.
func (r Result) DocumentType() string { return r.documentType }

// Sequence returns the chunk sequence number.
func (r Result) Sequence() int { return r.sequence }

// Content returns the authoritative chunk text.
func (r Result) Content() string { return r.content }

// StartOffset returns the chunk's first character offset.
func (r Result) StartOffset() int { return r.startOffset }

// EndOffset returns the chunk's end character offset.
func (r Result) EndOffset() int { return r.endOffset }

// Page returns the page number, or nil.
func (r Result) Page() *int { return r.page }

// Score returns the similarity in [0,1].
func (r Result) Score() float64 { return r.score }

// SortResults orders results by descending score, breaking ties by ascending
// document id and then sequence number.
func SortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.documentID, b.documentID); c != 0 {
			return c
		}
		return cmp.Compare(a.sequence, b.sequence)
	})
}

// Results is the outcome of a search.
type Results struct {
	hits       []Result
	totalFound int
	elapsed    time.Duration
}

// NewResults creates Results.
func NewResults(hits []Result, totalFound int, elapsed time.Duration) Results {
	h := make([]Result, len(hits))
	copy(h, hits)
	return Results{hits: h, totalFound: totalFound, elapsed: elapsed}
}

// Hits returns the ranked results.
func (r Results) Hits() []Result {
	h := make([]Result, len(r.hits))
	copy(h, r.hits)
	return h
}

// TotalFound returns how many candidates survived hydration and filtering
// before truncation to the limit.
func (r Results) TotalFound() int { return r.totalFound }

// Elapsed returns the wall time of the search.
func (r Results) Elapsed() time.Duration { return r.elapsed }

// ElapsedMillis returns the elapsed time in milliseconds.
func (r Results) ElapsedMillis() int64 { return r.elapsed.Milliseconds() }
