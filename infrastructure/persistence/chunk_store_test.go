package persistence

import (
	"context"
	"testing"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunks(documentID string, texts ...string) []chunk.Chunk {
	chunks := make([]chunk.Chunk, len(texts))
	offset := 0
	for i, text := range texts {
		end := offset + len([]rune(text))
		chunks[i] = chunk.NewChunk(documentID, i, text, offset, end, nil, "")
		offset = end + 1
	}
	return chunks
}

func TestChunkStore_ReplaceForDocument(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	ctx := context.Background()
	doc := saveDocument(t, db, "proj-1", "Doc")

	first := newChunks(doc.ID(), "one", "two", "three")
	require.NoError(t, store.ReplaceForDocument(ctx, doc.ID(), first))

	second := newChunks(doc.ID(), "uno", "dos")
	require.NoError(t, store.ReplaceForDocument(ctx, doc.ID(), second))

	found, err := store.Find(ctx, append(chunk.WithSequenceOrder(), repository.WithDocumentID(doc.ID()))...)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "uno", found[0].Content())
	assert.Equal(t, 0, found[0].Sequence())
	assert.Equal(t, "dos", found[1].Content())
	assert.Equal(t, 1, found[1].Sequence())
	assert.Equal(t, chunk.IDs(second), chunk.IDs(found))
}

func TestChunkStore_ReplaceIsAtomic(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	ctx := context.Background()
	doc := saveDocument(t, db, "proj-1", "Doc")

	require.NoError(t, store.ReplaceForDocument(ctx, doc.ID(), newChunks(doc.ID(), "kept")))

	// Two chunks share sequence 0, violating the unique index mid-insert.
	dup := []chunk.Chunk{
		chunk.NewChunk(doc.ID(), 0, "a", 0, 1, nil, ""),
		chunk.NewChunk(doc.ID(), 0, "b", 2, 3, nil, ""),
	}
	err := store.ReplaceForDocument(ctx, doc.ID(), dup)
	require.ErrorIs(t, err, domain.ErrMetadataWrite)

	found, err := store.Find(ctx, repository.WithDocumentID(doc.ID()))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "kept", found[0].Content())
}

func TestChunkStore_ReplaceRejectsForeignChunks(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	doc := saveDocument(t, db, "proj-1", "Doc")

	err := store.ReplaceForDocument(context.Background(), doc.ID(), newChunks("other", "x"))
	require.ErrorIs(t, err, domain.ErrMetadataWrite)
}

func TestChunkStore_ReplaceRequiresDocument(t *testing.T) {
	store := NewChunkStore(newTestDB(t))

	err := store.ReplaceForDocument(context.Background(), "missing", newChunks("missing", "x"))
	require.ErrorIs(t, err, domain.ErrMetadataWrite)
}

func TestChunkStore_UpdateVector(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	ctx := context.Background()
	doc := saveDocument(t, db, "proj-1", "Doc")

	chunks := newChunks(doc.ID(), "one", "two")
	require.NoError(t, store.ReplaceForDocument(ctx, doc.ID(), chunks))

	missing, err := store.Count(ctx, chunk.WithMissingVector("m1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), missing)

	require.NoError(t, store.UpdateVector(ctx, []chunk.Chunk{chunks[0].WithVector(chunks[0].ID(), "m1")}))

	found, err := store.Find(ctx, append(chunk.WithSequenceOrder(), repository.WithDocumentID(doc.ID()))...)
	require.NoError(t, err)
	require.True(t, found[0].HasVector())
	assert.Equal(t, chunks[0].ID(), *found[0].VectorPointID())
	assert.Equal(t, "m1", found[0].ModelName())
	assert.Equal(t, "one", found[0].Content())
	assert.False(t, found[1].HasVector())

	missing, err = store.Count(ctx, chunk.WithMissingVector("m1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), missing)

	missing, err = store.Count(ctx, chunk.WithMissingVector("m2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), missing, "a model switch makes every vector stale")
}

func TestChunkStore_ContentIsImmutable(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	ctx := context.Background()
	doc := saveDocument(t, db, "proj-1", "Doc")

	chunks := newChunks(doc.ID(), "original")
	require.NoError(t, store.ReplaceForDocument(ctx, doc.ID(), chunks))

	err := db.Session(ctx).Model(&ChunkModel{ID: chunks[0].ID()}).Update("content", "rewritten").Error
	require.ErrorIs(t, err, ErrChunkContentImmutable)

	found, err := store.Find(ctx, repository.WithID(chunks[0].ID()))
	require.NoError(t, err)
	assert.Equal(t, "original", found[0].Content())
}

func TestChunkStore_ExistingIDs(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	ctx := context.Background()
	doc := saveDocument(t, db, "proj-1", "Doc")

	chunks := newChunks(doc.ID(), "one", "two")
	require.NoError(t, store.ReplaceForDocument(ctx, doc.ID(), chunks))

	existing, err := store.ExistingIDs(ctx, []string{chunks[1].ID(), "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{chunks[1].ID(): true}, existing)
}

func TestChunkStore_FindHydrated(t *testing.T) {
	db := newTestDB(t)
	store := NewChunkStore(db)
	ctx := context.Background()
	docA := saveDocument(t, db, "proj-1", "GPS spec")
	docB := saveDocument(t, db, "proj-2", "Battery spec")

	page := 2
	a := []chunk.Chunk{chunk.NewChunk(docA.ID(), 0, "GPS accuracy", 0, 12, &page, "")}
	b := newChunks(docB.ID(), "Battery life")
	require.NoError(t, store.ReplaceForDocument(ctx, docA.ID(), a))
	require.NoError(t, store.ReplaceForDocument(ctx, docB.ID(), b))

	hydrated, err := store.FindHydrated(ctx, []string{a[0].ID(), b[0].ID(), "ghost"})
	require.NoError(t, err)
	require.Len(t, hydrated, 2)

	ha := hydrated[a[0].ID()]
	assert.Equal(t, "proj-1", ha.ProjectID)
	assert.Equal(t, "GPS spec", ha.DocumentTitle)
	assert.Equal(t, "requirements", ha.DocumentType)
	assert.Equal(t, "GPS accuracy", ha.Chunk.Content())
	require.NotNil(t, ha.Chunk.Page())
	assert.Equal(t, 2, *ha.Chunk.Page())
	assert.Equal(t, 12, ha.Chunk.EndOffset())

	assert.Equal(t, "proj-2", hydrated[b[0].ID()].ProjectID)
	assert.Nil(t, hydrated[b[0].ID()].Chunk.Page())
}
