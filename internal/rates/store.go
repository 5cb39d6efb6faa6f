package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"subtrack/internal/cache"
	"subtrack/internal/core"
)

// Snapshot is a fetched table plus when it was fetched.
type Snapshot struct {
	Base      string         `json:"base"`
	Rates     core.RateTable `json:"rates"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Store keeps the last fetched snapshot per base, fresh or not.
type Store interface {
	Load(ctx context.Context, base string) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
}

// MemoryStore keeps snapshots in a process-local LRU.
type MemoryStore struct {
	lru *cache.LRUCache[Snapshot]
}

// NewMemoryStore keeps at most size bases for retention.
// Register Cleaner() with a cache.Manager to drop long-dead entries.
func NewMemoryStore(size int, retention time.Duration) *MemoryStore {
	return &MemoryStore{lru: cache.NewLRUCache[Snapshot](size, retention)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, base string) (Snapshot, bool, error) {
	snap, ok := m.lru.GetStale(base)
	return snap, ok, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	m.lru.Set(snap.Base, snap)
	return nil
}

// Cleaner exposes the underlying cache for periodic cleanup.
func (m *MemoryStore) Cleaner() cache.Cleaner {
	return m.lru
}

// RedisStore shares snapshots between processes through Redis.
type RedisStore struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

// NewRedisStore wraps an existing client. Keys live for retention.
func NewRedisStore(client redis.Cmdable, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "rates:", retention: retention}
}

// NewRedisClient builds a client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *RedisStore) key(base string) string {
	return r.prefix + base
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, base string) (Snapshot, bool, error) {
	data, err := r.client.Get(ctx, r.key(base)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("redis get rates: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal rates snapshot: %w", err)
	}
	return snap, true, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal rates snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(snap.Base), data, r.retention).Err(); err != nil {
		return fmt.Errorf("redis set rates: %w", err)
	}
	return nil
}
