package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"diffsync/pkg/document"
)

// RedisStore persists documents in Redis so several server processes can
// share one source of truth. Documents live under <prefix>:doc:<name> with a
// <prefix>:docs set for listing.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	mu        sync.Mutex
}

// NewRedisStore connects to Redis and seeds the default document.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	s := &RedisStore{client: client, keyPrefix: "diffsync"}
	if _, err := EnsureDocument(ctx, s, DefaultDocumentName); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to seed default document")
	}
	return s, nil
}

func (s *RedisStore) docKey(name string) string {
	return s.keyPrefix + ":doc:" + name
}

func (s *RedisStore) docsKey() string {
	return s.keyPrefix + ":docs"
}

// Load fetches the named document.
func (s *RedisStore) Load(ctx context.Context, name string) (document.Document, error) {
	data, err := s.client.Get(ctx, s.docKey(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return document.Document{}, ErrNotFound
		}
		return document.Document{}, errors.Wrap(err, "failed to load document")
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return document.Document{}, errors.Wrap(err, "failed to decode document record")
	}
	return rec.document(), nil
}

// Save inserts or replaces the named document.
func (s *RedisStore) Save(ctx context.Context, name string, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := record{Name: name, Content: doc.Content, Version: doc.Version, CreatedAt: now, UpdatedAt: now}
	if existing, err := s.readRecord(ctx, name); err == nil {
		rec.CreatedAt = existing.CreatedAt
	}
	return s.writeRecord(ctx, rec)
}

// Update atomically replaces the content and bumps the version. Updates are
// serialized through a process-local mutex; the sync server already funnels
// all writes for one document through a single process.
func (s *RedisStore) Update(ctx context.Context, name string, content string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec, err := s.readRecord(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return document.Document{}, err
		}
		rec = record{Name: name, CreatedAt: now}
	}
	rec.Content = content
	rec.Version++
	rec.UpdatedAt = now

	if err := s.writeRecord(ctx, rec); err != nil {
		return document.Document{}, err
	}
	return rec.document(), nil
}

// List returns every document's metadata, most recently updated first.
func (s *RedisStore) List(ctx context.Context) ([]DocumentInfo, error) {
	names, err := s.client.SMembers(ctx, s.docsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}

	infos := make([]DocumentInfo, 0, len(names))
	for _, name := range names {
		rec, err := s.readRecord(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		infos = append(infos, rec.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Stats returns aggregate statistics.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
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

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) readRecord(ctx context.Context, name string) (record, error) {
	var rec record
	data, err := s.client.Get(ctx, s.docKey(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return rec, ErrNotFound
		}
		return rec, errors.Wrap(err, "failed to read document record")
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.Wrap(err, "failed to decode document record")
	}
	return rec, nil
}

func (s *RedisStore) writeRecord(ctx context.Context, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode document record")
	}
	if err := s.client.Set(ctx, s.docKey(rec.Name), data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to write document record")
	}
	if err := s.client.SAdd(ctx, s.docsKey(), rec.Name).Err(); err != nil {
		return errors.Wrap(err, "failed to index document")
	}
	return nil
}
