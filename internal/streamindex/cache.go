package streamindex

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/resolver/internal/domain"
)

const redisCachePrefix = "resolver:streams:"

// Cache stores successful search responses. Only redacted candidates are
// ever written, so a shared backend never sees the debrid key.
type Cache interface {
	Get(ctx context.Context, key string) (domain.StreamSearchResponse, bool, error)
	Set(ctx context.Context, key string, response domain.StreamSearchResponse, ttl time.Duration) error
}

type memoryEntry struct {
	response  domain.StreamSearchResponse
	expiresAt time.Time
}

type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (domain.StreamSearchResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return domain.StreamSearchResponse{}, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return domain.StreamSearchResponse{}, false, nil
	}
	return entry.response, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, response domain.StreamSearchResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if len(m.entries) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.entries[key] = memoryEntry{response: response, expiresAt: now.Add(ttl)}
	return nil
}

// evictLocked drops expired entries, then the one closest to expiry if the
// cache is still full.
func (m *MemoryCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.expiresAt
		}
	}
	if len(m.entries) >= m.maxEntries && oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// RedisCache stores search responses in Redis with JSON serialization.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (domain.StreamSearchResponse, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StreamSearchResponse{}, false, nil
		}
		return domain.StreamSearchResponse{}, false, err
	}
	var resp domain.StreamSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.StreamSearchResponse{}, false, err
	}
	return resp, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, response domain.StreamSearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}
