// Package docstore provides persistent storage for named documents.
//
// It defines a Store interface and several implementations:
//   - MemoryStore: an in-memory map, for tests and demos
//   - BadgerStore: an embedded persistent store using BadgerDB
//   - RedisStore: a shared store backed by Redis
//   - MongoStore: a shared store backed by MongoDB
//
// A fresh store of any kind seeds the default document named "main" so a
// server can come up against an empty database and immediately serve content.
package docstore

import (
	"context"
	"errors"
	"time"

	"diffsync/pkg/document"
)

var (
	// ErrNotFound is returned when the named document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")
)

const (
	// DefaultDocumentName is the document seeded into every fresh store.
	DefaultDocumentName = "main"

	// DefaultDocumentContent is the content of the seeded document.
	DefaultDocumentContent = "Welcome to collaborative editing with persistence!"
)

// Store is the persistent source of truth for documents. Implementations
// must make Update atomic: concurrent updates to the same name serialize and
// each returned version is strictly greater than the one it replaced.
type Store interface {
	// Load fetches the named document, or ErrNotFound.
	Load(ctx context.Context, name string) (document.Document, error)

	// Save inserts or replaces the named document as-is, preserving the
	// original creation time when the document already exists.
	Save(ctx context.Context, name string, doc document.Document) error

	// Update atomically replaces the content of the named document and
	// bumps its version, creating the document when it does not exist.
	// The returned document reflects the committed state.
	Update(ctx context.Context, name string, content string) (document.Document, error)

	// List returns metadata for every stored document, most recently
	// updated first.
	List(ctx context.Context) ([]DocumentInfo, error)

	// Stats returns aggregate store statistics.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the store's resources.
	Close() error
}

// DocumentInfo is per-document metadata reported by List.
type DocumentInfo struct {
	Name      string    `json:"name"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats summarizes a store. LatestUpdate is the zero time for an empty store.
type Stats struct {
	TotalDocuments int64     `json:"total_documents"`
	LatestUpdate   time.Time `json:"latest_update"`
}

// record is the stored shape shared by the JSON-encoded backends.
type record struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r record) document() document.Document {
	return document.NewWithVersion(r.Content, r.Version)
}

func (r record) info() DocumentInfo {
	return DocumentInfo{Name: r.Name, Version: r.Version, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// EnsureDocument makes sure the named document exists, creating it with the
// default content at version 0 when absent, and returns it. The server runs
// this for its configured document at startup.
func EnsureDocument(ctx context.Context, store Store, name string) (document.Document, error) {
	doc, err := store.Load(ctx, name)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return document.Document{}, err
	}

	doc = document.New(DefaultDocumentContent)
	if err := store.Save(ctx, name, doc); err != nil {
		return document.Document{}, err
	}
	return doc, nil
}
