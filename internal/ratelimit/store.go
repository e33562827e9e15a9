package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateStore is the counter backend for the abuse guard. Counters are
// ephemeral: losing them resets budgets, which the guard treats as
// fail-open. The same guard logic works against the in-memory store or
// an external cache.
type RateStore interface {
	// Incr adds one to the windowed counter for key, creating it with the
	// given window on first use. Returns the new count and when the
	// window resets.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Get reads the counter without mutating it. A missing counter
	// returns count 0.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Block marks key as hard-blocked until the given time.
	Block(ctx context.Context, key string, until time.Time) error

	// BlockedUntil reports whether key is currently blocked and until when.
	BlockedUntil(ctx context.Context, key string) (time.Time, bool, error)
}

type memoryCounter struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is the default in-process RateStore.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	blocks   map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		blocks:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Incr implements RateStore.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.resetAt) {
		c = &memoryCounter{resetAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt, nil
}

// Get implements RateStore.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || s.now().After(c.resetAt) {
		return 0, time.Time{}, nil
	}
	return c.count, c.resetAt, nil
}

// Block implements RateStore.
func (s *MemoryStore) Block(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[key] = until
	return nil
}

// BlockedUntil implements RateStore.
func (s *MemoryStore) BlockedUntil(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.blocks[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if s.now().After(until) {
		delete(s.blocks, key)
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// RedisStore backs the guard with Redis so budgets survive restarts
// and are shared across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store from a connection URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Incr implements RateStore using INCR plus a window-scoped expiry.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	count, err := s.client.Incr(ctx, "rl:"+key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, "rl:"+key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
	}
	ttl, err := s.client.TTL(ctx, "rl:"+key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, time.Now().Add(ttl), nil
}

// Get implements RateStore.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	count, err := s.client.Get(ctx, "rl:"+key).Int64()
	if err == redis.Nil {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	ttl, err := s.client.TTL(ctx, "rl:"+key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, time.Now().Add(ttl), nil
}

// Block implements RateStore.
func (s *RedisStore) Block(ctx context.Context, key string, until time.Time) error {
	return s.client.Set(ctx, "rlblock:"+key, until.Unix(), time.Until(until)).Err()
}

// BlockedUntil implements RateStore.
func (s *RedisStore) BlockedUntil(ctx context.Context, key string) (time.Time, bool, error) {
	unix, err := s.client.Get(ctx, "rlblock:"+key).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}
