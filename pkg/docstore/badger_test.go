package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupBadgerStore creates a BadgerDB store backed by a temporary directory
func setupBadgerStore(t *testing.T) *BadgerStore {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err, "Failed to create BadgerDB store")
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// TestBadgerStoreBasicOperations tests seeding, loading, and updating documents
func TestBadgerStoreBasicOperations(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	// Test the seeded default document
	doc, err := store.Load(ctx, DefaultDocumentName)
	require.NoError(t, err, "Load should not return an error")
	assert.Equal(t, DefaultDocumentContent, doc.Content, "Default content should match")
	assert.Equal(t, uint64(0), doc.Version, "Default document should start at version 0")

	// Test Load of a missing document
	_, err = store.Load(ctx, "no-such-document")
	assert.ErrorIs(t, err, ErrNotFound, "Load of missing document should return ErrNotFound")

	// Test Update
	doc, err = store.Update(ctx, DefaultDocumentName, "persisted text")
	require.NoError(t, err, "Update should not return an error")
	assert.Equal(t, "persisted text", doc.Content, "Content should be replaced")
	assert.Equal(t, uint64(1), doc.Version, "Version should bump to 1")

	// Test Update upserts missing documents
	doc, err = store.Update(ctx, "scratch", "draft")
	require.NoError(t, err, "Update of missing document should create it")
	assert.Equal(t, uint64(1), doc.Version, "Created document should start at version 1")
}

// TestBadgerStorePersistence tests that documents survive a close and reopen
func TestBadgerStorePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// First store instance
	store1, err := NewBadgerStore(dir)
	require.NoError(t, err, "Failed to create first store")

	doc, err := store1.Update(ctx, DefaultDocumentName, "written before restart")
	require.NoError(t, err, "Update should not return an error")
	require.NoError(t, store1.Close(), "Close should not return an error")

	// Second store instance over the same directory
	store2, err := NewBadgerStore(dir)
	require.NoError(t, err, "Failed to create second store")
	defer store2.Close()

	// The existing document must not be reset by the default seeding
	loaded, err := store2.Load(ctx, DefaultDocumentName)
	require.NoError(t, err, "Load after reopen should not return an error")
	assert.Equal(t, doc.Content, loaded.Content, "Content should survive a restart")
	assert.Equal(t, doc.Version, loaded.Version, "Version should survive a restart")
}

// TestBadgerStoreListAndStats tests listing and aggregate statistics
func TestBadgerStoreListAndStats(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "alpha", "a")
	require.NoError(t, err, "Update should not return an error")
	_, err = store.Update(ctx, "beta", "b")
	require.NoError(t, err, "Update should not return an error")

	infos, err := store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	assert.Len(t, infos, 3, "List should contain default plus created documents")
	assert.Equal(t, "beta", infos[0].Name, "Most recently updated document should come first")

	stats, err := store.Stats(ctx)
	require.NoError(t, err, "Stats should not return an error")
	assert.Equal(t, int64(3), stats.TotalDocuments, "Stats should count all documents")
	assert.False(t, stats.LatestUpdate.IsZero(), "LatestUpdate should be set")
}

// TestBadgerStoreClose tests that operations after Close return ErrClosed
func TestBadgerStoreClose(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err, "Failed to create store")

	require.NoError(t, store.Close(), "Close should not return an error")
	assert.NoError(t, store.Close(), "Second Close should be a no-op")

	ctx := context.Background()

	_, err = store.Load(ctx, DefaultDocumentName)
	assert.ErrorIs(t, err, ErrClosed, "Load after Close should return ErrClosed")

	_, err = store.Update(ctx, DefaultDocumentName, "x")
	assert.ErrorIs(t, err, ErrClosed, "Update after Close should return ErrClosed")
}
