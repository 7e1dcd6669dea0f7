// Package chunking splits extracted document text into ordered, overlapping
// chunks for embedding.
package chunking

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
)

// ChunkParams configures the chunking algorithm. Size, Overlap and MinSize
// are measured in runes (Unicode code points).
type ChunkParams struct {
	Strategy chunk.Strategy
	Size     int
	Overlap  int
	MinSize  int
}

// DefaultChunkParams returns sensible defaults for prose documents.
func DefaultChunkParams() ChunkParams {
	return ChunkParams{
		Strategy: chunk.StrategyHybrid,
		Size:     1000,
		Overlap:  100,
		MinSize:  0,
	}
}

// Validate checks the parameters.
func (p ChunkParams) Validate() error {
	if _, err := chunk.ParseStrategy(string(p.Strategy)); err != nil {
		return err
	}
	switch {
	case p.Size <= 0:
		return domain.Errorf(domain.ErrChunking, "validate params", "size must be positive, got %d", p.Size)
	case p.Overlap < 0:
		return domain.Errorf(domain.ErrChunking, "validate params", "overlap must not be negative, got %d", p.Overlap)
	case p.Overlap >= p.Size:
		return domain.Errorf(domain.ErrChunking, "validate params", "overlap (%d) must be less than size (%d)", p.Overlap, p.Size)
	case p.MinSize < 0:
		return domain.Errorf(domain.ErrChunking, "validate params", "min size must not be negative, got %d", p.MinSize)
	}
	return nil
}

// Chunk is one piece of the source text with its rune offsets.
type Chunk struct {
	sequence int
	content  string
	start    int
	end      int
	page     *int
}

// Sequence returns the 0-based position of the chunk.
func (c Chunk) Sequence() int { return c.sequence }

// Content returns the chunk text.
func (c Chunk) Content() string { return c.content }

// Start returns the rune offset of the first character (inclusive).
func (c Chunk) Start() int { return c.start }

// End returns the rune offset after the last character (exclusive).
func (c Chunk) End() int { return c.end }

// Page returns the 1-based page the chunk starts on, or nil when the text
// carries no form-feed page breaks.
func (c Chunk) Page() *int {
	if c.page == nil {
		return nil
	}
	p := *c.page
	return &p
}

// TextChunks holds the result of splitting text.
type TextChunks struct {
	chunks []Chunk
}

// All returns all chunks in sequence order.
func (t TextChunks) All() []Chunk {
	out := make([]Chunk, len(t.chunks))
	copy(out, t.chunks)
	return out
}

// Len returns the number of chunks.
func (t TextChunks) Len() int { return len(t.chunks) }

// NewTextChunks splits text according to params.Strategy:
//   - fixed: windows of Size runes advancing by Size-Overlap
//   - sentence-boundary: whole sentences packed up to Size, trailing
//     sentences that fit within Overlap are repeated at the start of the
//     next chunk; sentences longer than Size fall back to fixed windows
//   - hybrid: whole paragraphs packed up to Size-Overlap, oversized
//     paragraphs split by sentence and then by fixed windows; each chunk
//     after the first is prefixed with up to Overlap runes of the
//     preceding text, starting on a word boundary
//
// Every chunk equals text[Start:End] in runes, is never empty or
// whitespace-only, and chunks are numbered 0..n-1.
func NewTextChunks(text string, params ChunkParams) (TextChunks, error) {
	if err := params.Validate(); err != nil {
		return TextChunks{}, err
	}
	if strings.TrimSpace(text) == "" {
		return TextChunks{}, domain.Errorf(domain.ErrChunking, "chunk text", "text is empty")
	}

	runes := []rune(text)
	all := span{0, len(runes)}

	var spans []span
	switch params.Strategy {
	case chunk.StrategyFixed:
		spans = windows(all, params.Size, params.Overlap)
	case chunk.StrategySentenceBoundary:
		spans = packUnits(sentences(runes, all), params.Size, params.Overlap, func(u span) []span {
			return windows(u, params.Size, params.Overlap)
		})
	case chunk.StrategyHybrid:
		spans = hybrid(runes, params.Size, params.Overlap)
	}

	chunks := finalize(runes, spans, params.MinSize)
	if len(chunks) == 0 {
		return TextChunks{}, domain.Errorf(domain.ErrChunking, "chunk text", "no chunks produced")
	}
	return TextChunks{chunks: chunks}, nil
}

// span is a half-open rune range.
type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// windows cuts s into fixed windows of size runes with the given overlap.
// The last window ends exactly at s.end.
func windows(s span, size, overlap int) []span {
	var out []span
	step := size - overlap
	for start := s.start; ; start += step {
		end := min(start+size, s.end)
		out = append(out, span{start, end})
		if end >= s.end {
			break
		}
	}
	return out
}

// packUnits greedily groups contiguous units into chunks of at most size
// runes. Units longer than size are handed to splitLong. When overlap is
// positive, trailing units of a chunk whose combined length fits within
// overlap start the next chunk as well.
func packUnits(units []span, size, overlap int, splitLong func(span) []span) []span {
	var out []span
	i := 0
	for i < len(units) {
		if units[i].len() > size {
			out = append(out, splitLong(units[i])...)
			i++
			continue
		}

		first := i
		next := i
		for next < len(units) && units[next].len() <= size && units[next].end-units[first].start <= size {
			next++
		}
		out = append(out, span{units[first].start, units[next-1].end})
		if next >= len(units) {
			break
		}

		i = next
		if overlap == 0 || units[next].len() > size {
			continue
		}
		for k := next - 1; k > first; k-- {
			if units[next-1].end-units[k].start > overlap {
				break
			}
			if units[next].end-units[k].start > size {
				break
			}
			i = k
		}
	}
	return out
}

// hybrid packs paragraphs, falling back to sentences and then fixed
// windows, and prefixes every chunk after the first with overlap context.
func hybrid(runes []rune, size, overlap int) []span {
	budget := size - overlap
	var units []span
	for _, p := range paragraphs(runes, span{0, len(runes)}) {
		if p.len() <= budget {
			units = append(units, p)
			continue
		}
		for _, s := range sentences(runes, p) {
			if s.len() <= budget {
				units = append(units, s)
				continue
			}
			units = append(units, windows(s, budget, 0)...)
		}
	}

	packed := packUnits(units, budget, 0, func(u span) []span { return []span{u} })
	if overlap == 0 {
		return packed
	}
	for i := 1; i < len(packed); i++ {
		from := max(packed[i-1].start+1, packed[i].start-overlap)
		packed[i].start = wordStart(runes, from, packed[i].start)
	}
	return packed
}

// wordStart returns the first position in [from, limit] that begins a word,
// or limit when none does.
func wordStart(runes []rune, from, limit int) int {
	for p := from; p < limit; p++ {
		if !unicode.IsSpace(runes[p]) && (p == 0 || unicode.IsSpace(runes[p-1])) {
			return p
		}
	}
	return limit
}

// paragraphs splits s into contiguous spans that end after a blank line or
// a form-feed page break. The separating whitespace stays with the
// preceding paragraph.
func paragraphs(runes []rune, s span) []span {
	var out []span
	start := s.start
	i := s.start
	for i < s.end {
		if runes[i] != '\n' && runes[i] != '\f' {
			i++
			continue
		}
		j, isBreak := whitespaceRun(runes, i, s.end)
		if isBreak && j < s.end {
			out = append(out, span{start, j})
			start = j
		}
		i = j
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

// sentenceClosers may follow terminal punctuation inside a sentence.
const sentenceClosers = `"')]”’`

// sentences splits s into contiguous spans that end after terminal
// punctuation followed by whitespace, or at a paragraph break. Trailing
// whitespace stays with the preceding sentence.
func sentences(runes []rune, s span) []span {
	var out []span
	start := s.start
	i := s.start
	for i < s.end {
		end := -1
		switch runes[i] {
		case '.', '!', '?':
			j := i + 1
			for j < s.end && strings.ContainsRune(sentenceClosers, runes[j]) {
				j++
			}
			if j == s.end || unicode.IsSpace(runes[j]) {
				end = j
			}
		case '\n', '\f':
			if _, isBreak := whitespaceRun(runes, i, s.end); isBreak {
				end = i
			}
		}
		if end < 0 {
			i++
			continue
		}
		for end < s.end && unicode.IsSpace(runes[end]) {
			end++
		}
		if end < s.end {
			out = append(out, span{start, end})
			start = end
		}
		i = end
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

// whitespaceRun scans the whitespace starting at i and reports where it
// ends and whether it forms a paragraph break (two newlines or a form feed).
func whitespaceRun(runes []rune, i, limit int) (int, bool) {
	newlines := 0
	page := false
	j := i
	for j < limit && unicode.IsSpace(runes[j]) {
		switch runes[j] {
		case '\n':
			newlines++
		case '\f':
			page = true
		}
		j++
	}
	return j, newlines >= 2 || page
}

// finalize trims whitespace from each span, drops spans that add nothing
// beyond the previous chunk, merges spans shorter than minSize or starting
// no later than their predecessor into it, and assigns sequence numbers and
// pages. Kept starts are strictly increasing.
func finalize(runes []rune, spans []span, minSize int) []Chunk {
	var pageBreaks []int
	for i, r := range runes {
		if r == '\f' {
			pageBreaks = append(pageBreaks, i)
		}
	}

	var kept []span
	for _, s := range spans {
		for s.start < s.end && unicode.IsSpace(runes[s.start]) {
			s.start++
		}
		for s.end > s.start && unicode.IsSpace(runes[s.end-1]) {
			s.end--
		}
		if s.len() == 0 {
			continue
		}
		if n := len(kept); n > 0 {
			if s.end <= kept[n-1].end {
				continue
			}
			if s.len() < minSize || s.start <= kept[n-1].start {
				kept[n-1].end = s.end
				continue
			}
		}
		kept = append(kept, s)
	}

	chunks := make([]Chunk, len(kept))
	for i, s := range kept {
		chunks[i] = Chunk{
			sequence: i,
			content:  string(runes[s.start:s.end]),
			start:    s.start,
			end:      s.end,
		}
		if len(pageBreaks) > 0 {
			page := sort.SearchInts(pageBreaks, s.start) + 1
			chunks[i].page = &page
		}
	}
	return chunks
}

// String renders a short description for logs.
func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d [%d:%d]", c.sequence, c.start, c.end)
}
