package mcp

import "fmt"

// ChunkURI identifies a chunk of a document for MCP clients.
// Immutable value object; methods return copies.
type ChunkURI struct {
	documentID string
	sequence   int
	start      int
	end        int
}

// NewChunkURI creates a ChunkURI for the chunk at sequence in a document.
func NewChunkURI(documentID string, sequence int) ChunkURI {
	return ChunkURI{documentID: documentID, sequence: sequence}
}

// WithOffsets returns a copy carrying the chunk's character span.
func (u ChunkURI) WithOffsets(start, end int) ChunkURI {
	u.start = start
	u.end = end
	return u
}

// String builds the odras:// URI string.
func (u ChunkURI) String() string {
	base := fmt.Sprintf("odras://documents/%s/chunks/%d", u.documentID, u.sequence)
	if u.end > u.start {
		return fmt.Sprintf("%s?offsets=%d-%d", base, u.start, u.end)
	}
	return base
}
