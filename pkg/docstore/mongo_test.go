package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMongoStore connects to MongoDB or skips the test when it is unreachable
func setupMongoStore(t *testing.T) *MongoStore {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewMongoStore(ctx, mongoURI, "diffsync_test")
	if err != nil {
		t.Skipf("Skipping MongoDB test: %v", err)
		return nil
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// TestMongoStoreBasicOperations tests loading and updating documents in MongoDB
func TestMongoStoreBasicOperations(t *testing.T) {
	store := setupMongoStore(t)
	ctx := context.Background()

	// Test the seeded default document exists
	doc, err := store.Load(ctx, DefaultDocumentName)
	require.NoError(t, err, "Load should not return an error")
	assert.NotEmpty(t, doc.Content, "Default document should have content")

	// Use a unique name so repeated runs do not interfere
	name := "test-" + uuid.NewString()

	// Test Load of a missing document
	_, err = store.Load(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound, "Load of missing document should return ErrNotFound")

	// Test Update creates and bumps server-side
	doc, err = store.Update(ctx, name, "mongo draft")
	require.NoError(t, err, "Update should not return an error")
	assert.Equal(t, "mongo draft", doc.Content, "Content should match")
	assert.Equal(t, uint64(1), doc.Version, "Created document should start at version 1")

	doc, err = store.Update(ctx, name, "mongo draft v2")
	require.NoError(t, err, "Update should not return an error")
	assert.Equal(t, uint64(2), doc.Version, "Version should bump to 2")

	// Test Save preserves the creation time across overwrites
	infos, err := store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	created := findInfo(t, infos, name).CreatedAt

	err = store.Save(ctx, name, doc)
	require.NoError(t, err, "Save should not return an error")

	infos, err = store.List(ctx)
	require.NoError(t, err, "List should not return an error")
	info := findInfo(t, infos, name)
	assert.WithinDuration(t, created, info.CreatedAt, time.Second, "CreatedAt should survive overwrites")

	// Test Stats counts stored documents
	stats, err := store.Stats(ctx)
	require.NoError(t, err, "Stats should not return an error")
	assert.GreaterOrEqual(t, stats.TotalDocuments, int64(2), "Stats should count stored documents")
}
