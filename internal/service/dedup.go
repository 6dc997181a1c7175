package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers event keys for a TTL. Seen records the key and
// reports whether it was already present, so a key is claimed before the
// event is processed.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// MemoryDedup is a process-local DedupStore.
type MemoryDedup struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	return &MemoryDedup{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

func (m *MemoryDedup) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if t, ok := m.seen[key]; ok && now.Sub(t) < m.ttl {
		return true, nil
	}
	m.seen[key] = now
	return false, nil
}

// Prune drops expired keys and returns how many were removed.
func (m *MemoryDedup) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, t := range m.seen {
		if now.Sub(t) >= m.ttl {
			delete(m.seen, k)
			n++
		}
	}
	return n
}

func (m *MemoryDedup) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// RedisDedup shares dedup state between bot instances.
type RedisDedup struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{client: client, prefix: "trackerbot:dedup:", ttl: ttl}
}

func (r *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}
