package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"diffsync/pkg/document"
)

const badgerDocPrefix = "doc:"

// BadgerStore persists documents in an embedded BadgerDB at a filesystem
// path. It is the default backend for the server binary.
type BadgerStore struct {
	db   *badger.DB
	mu   sync.Mutex
	stop chan struct{}

	closedMu sync.RWMutex
	closed   bool
}

// NewBadgerStore opens (or creates) a BadgerDB at dbPath and seeds the
// default document.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	// Configure BadgerDB options
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Disable default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	s := &BadgerStore{db: db, stop: make(chan struct{})}
	if _, err := EnsureDocument(context.Background(), s, DefaultDocumentName); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed default document: %w", err)
	}

	// Run value log garbage collection in background
	go s.runGC()

	return s, nil
}

// Load fetches the named document.
func (s *BadgerStore) Load(ctx context.Context, name string) (document.Document, error) {
	if s.isClosed() {
		return document.Document{}, ErrClosed
	}

	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return document.Document{}, ErrNotFound
		}
		return document.Document{}, fmt.Errorf("failed to load document: %w", err)
	}
	return rec.document(), nil
}

// Save inserts or replaces the named document.
func (s *BadgerStore) Save(ctx context.Context, name string, doc document.Document) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		now := time.Now()
		rec := record{Name: name, Content: doc.Content, Version: doc.Version, CreatedAt: now, UpdatedAt: now}
		if existing, err := readRecord(txn, name); err == nil {
			rec.CreatedAt = existing.CreatedAt
		}
		return writeRecord(txn, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Update atomically replaces the content and bumps the version.
func (s *BadgerStore) Update(ctx context.Context, name string, content string) (document.Document, error) {
	if s.isClosed() {
		return document.Document{}, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rec record
	err := s.db.Update(func(txn *badger.Txn) error {
		now := time.Now()
		existing, err := readRecord(txn, name)
		if err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
			existing = record{Name: name, CreatedAt: now}
		}
		rec = existing
		rec.Content = content
		rec.Version++
		rec.UpdatedAt = now
		return writeRecord(txn, rec)
	})
	if err != nil {
		return document.Document{}, fmt.Errorf("failed to update document: %w", err)
	}
	return rec.document(), nil
}

// List returns every document's metadata, most recently updated first.
func (s *BadgerStore) List(ctx context.Context) ([]DocumentInfo, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var infos []DocumentInfo
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerDocPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				infos = append(infos, rec.info())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Stats returns aggregate statistics.
func (s *BadgerStore) Stats(ctx context.Context) (Stats, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalDocuments: int64(len(infos))}
	for _, info := range infos {
		if info.UpdatedAt.After(stats.LatestUpdate) {
			stats.LatestUpdate = info.UpdatedAt
		}
	}
	return stats, nil
}

// Close stops background GC and closes the database.
func (s *BadgerStore) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	close(s.stop)
	return s.db.Close()
}

func (s *BadgerStore) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

func (s *BadgerStore) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Run GC until it reports nothing left to reclaim
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func badgerKey(name string) []byte {
	return []byte(badgerDocPrefix + name)
}

func readRecord(txn *badger.Txn, name string) (record, error) {
	var rec record
	item, err := txn.Get(badgerKey(name))
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func writeRecord(txn *badger.Txn, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(badgerKey(rec.Name), data)
}
