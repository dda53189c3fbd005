package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"diffsync/pkg/document"
)

// MemoryStore keeps documents in an in-process map. It is the backend for
// tests and the demo binary; nothing survives the process.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]record
	closed bool
}

// NewMemoryStore creates an empty in-memory store seeded with the default
// document.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{docs: make(map[string]record)}
	now := time.Now()
	s.docs[DefaultDocumentName] = record{
		Name:      DefaultDocumentName,
		Content:   DefaultDocumentContent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s
}

// Load fetches the named document.
func (s *MemoryStore) Load(ctx context.Context, name string) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return document.Document{}, ErrClosed
	}
	rec, ok := s.docs[name]
	if !ok {
		return document.Document{}, ErrNotFound
	}
	return rec.document(), nil
}

// Save inserts or replaces the named document.
func (s *MemoryStore) Save(ctx context.Context, name string, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	now := time.Now()
	rec := record{Name: name, Content: doc.Content, Version: doc.Version, CreatedAt: now, UpdatedAt: now}
	if existing, ok := s.docs[name]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	s.docs[name] = rec
	return nil
}

// Update atomically replaces the content and bumps the version.
func (s *MemoryStore) Update(ctx context.Context, name string, content string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return document.Document{}, ErrClosed
	}
	now := time.Now()
	rec, ok := s.docs[name]
	if !ok {
		rec = record{Name: name, CreatedAt: now}
	}
	rec.Content = content
	rec.Version++
	rec.UpdatedAt = now
	s.docs[name] = rec
	return rec.document(), nil
}

// List returns every document's metadata, most recently updated first.
func (s *MemoryStore) List(ctx context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	infos := make([]DocumentInfo, 0, len(s.docs))
	for _, rec := range s.docs {
		infos = append(infos, rec.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Stats returns aggregate statistics.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{}, ErrClosed
	}
	stats := Stats{TotalDocuments: int64(len(s.docs))}
	for _, rec := range s.docs {
		if rec.UpdatedAt.After(stats.LatestUpdate) {
			stats.LatestUpdate = rec.UpdatedAt
		}
	}
	return stats, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
