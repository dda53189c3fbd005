package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffsync/pkg/document"
)

// TestMemoryStoreDefaultDocument tests that a fresh store is seeded with the default document
func TestMemoryStoreDefaultDocument(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	// Test Load of the seeded document
	doc, err := store.Load(ctx, DefaultDocumentName)
	require.NoError(t, err, "Load should not return an error")
	assert.Equal(t, DefaultDocumentContent, doc.Content, "Default content should match")
	assert.Equal(t, uint64(0), doc.Version, "Default document should start at version 0")

	// Test List contains exactly the seeded document
	infos, err := store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	require.Len(t, infos, 1, "List should contain one document")
	assert.Equal(t, DefaultDocumentName, infos[0].Name, "Listed name should match")
}

// TestMemoryStoreLoadMissing tests that loading an unknown document returns ErrNotFound
func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Load(context.Background(), "no-such-document")
	assert.ErrorIs(t, err, ErrNotFound, "Load of missing document should return ErrNotFound")
}

// TestMemoryStoreUpdate tests that Update replaces content and bumps the version
func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	// Test first update
	doc, err := store.Update(ctx, DefaultDocumentName, "hello")
	require.NoError(t, err, "Update should not return an error")
	assert.Equal(t, "hello", doc.Content, "Content should be replaced")
	assert.Equal(t, uint64(1), doc.Version, "Version should bump to 1")

	// Test second update
	doc, err = store.Update(ctx, DefaultDocumentName, "hello world")
	require.NoError(t, err, "Update should not return an error")
	assert.Equal(t, uint64(2), doc.Version, "Version should bump to 2")

	// Test Load reflects the latest update
	loaded, err := store.Load(ctx, DefaultDocumentName)
	require.NoError(t, err, "Load should not return an error")
	assert.Equal(t, doc, loaded, "Load should return the updated document")
}

// TestMemoryStoreUpdateCreatesMissing tests that Update upserts unknown documents
func TestMemoryStoreUpdateCreatesMissing(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	doc, err := store.Update(ctx, "scratch", "first draft")
	require.NoError(t, err, "Update of missing document should create it")
	assert.Equal(t, "first draft", doc.Content, "Content should match")
	assert.Equal(t, uint64(1), doc.Version, "Created document should start at version 1")

	infos, err := store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	assert.Len(t, infos, 2, "List should contain default and created documents")
}

// TestMemoryStoreSavePreservesCreatedAt tests that overwriting keeps the original creation time
func TestMemoryStoreSavePreservesCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	err := store.Save(ctx, "notes", document.New("v1"))
	require.NoError(t, err, "Save should not return an error")

	infos, err := store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	created := findInfo(t, infos, "notes").CreatedAt

	time.Sleep(10 * time.Millisecond)

	err = store.Save(ctx, "notes", document.NewWithVersion("v2", 5))
	require.NoError(t, err, "Save should not return an error")

	infos, err = store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	info := findInfo(t, infos, "notes")
	assert.Equal(t, created, info.CreatedAt, "CreatedAt should survive overwrites")
	assert.True(t, info.UpdatedAt.After(created), "UpdatedAt should advance on overwrite")
	assert.Equal(t, uint64(5), info.Version, "Save should store the given version")
}

// TestMemoryStoreListOrder tests that List returns most recently updated documents first
func TestMemoryStoreListOrder(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := store.Update(ctx, name, "content for "+name)
		require.NoError(t, err, "Update should not return an error")
		time.Sleep(5 * time.Millisecond)
	}

	infos, err := store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	require.Len(t, infos, 4, "List should contain default plus three created documents")
	assert.Equal(t, "gamma", infos[0].Name, "Most recently updated document should come first")
}

// TestMemoryStoreStats tests document counting and latest update tracking
func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	_, err := store.Update(ctx, "extra", "text")
	require.NoError(t, err, "Update should not return an error")

	stats, err := store.Stats(ctx)
	require.NoError(t, err, "Stats should not return an error")
	assert.Equal(t, int64(2), stats.TotalDocuments, "Stats should count all documents")
	assert.False(t, stats.LatestUpdate.IsZero(), "LatestUpdate should be set")
}

// TestMemoryStoreClose tests that operations after Close return ErrClosed
func TestMemoryStoreClose(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Close(), "Close should not return an error")
	assert.NoError(t, store.Close(), "Second Close should be a no-op")

	ctx := context.Background()

	_, err := store.Load(ctx, DefaultDocumentName)
	assert.ErrorIs(t, err, ErrClosed, "Load after Close should return ErrClosed")

	_, err = store.Update(ctx, DefaultDocumentName, "x")
	assert.ErrorIs(t, err, ErrClosed, "Update after Close should return ErrClosed")

	_, err = store.List(ctx)
	assert.ErrorIs(t, err, ErrClosed, "List after Close should return ErrClosed")
}

// findInfo returns the DocumentInfo with the given name, failing the test if absent
func findInfo(t *testing.T, infos []DocumentInfo, name string) DocumentInfo {
	t.Helper()
	for _, info := range infos {
		if info.Name == name {
			return info
		}
	}
	t.Fatalf("document %q not found in list", name)
	return DocumentInfo{}
}
