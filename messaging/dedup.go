package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers processed event ids. It is an optimization on top of
// idempotent handlers, not a substitute for them: Seen and MarkProcessed are
// not one atomic step.
type DedupStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
}

const dedupKeyPrefix = "saga:processed:"

// RedisDedupStore keeps processed ids in Redis with a TTL, shared across
// consumer replicas and restarts.
type RedisDedupStore struct {
	client *redis.Client
}

// NewRedisDedupStore creates a Redis-backed dedup store.
func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client}
}

// Seen implements DedupStore.
func (s *RedisDedupStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKeyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed implements DedupStore. SET NX keeps the first writer's TTL
// when replicas race on the same event.
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	return s.client.SetNX(ctx, dedupKeyPrefix+eventID, 1, ttl).Err()
}

// MemoryDedupStore is an in-memory DedupStore for tests and single-process
// demos. TTLs are honored lazily on lookup.
type MemoryDedupStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedupStore creates an in-memory dedup store.
func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{seen: make(map[string]time.Time)}
}

// Seen implements DedupStore.
func (s *MemoryDedupStore) Seen(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.seen[eventID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(s.seen, eventID)
		return false, nil
	}
	return true, nil
}

// MarkProcessed implements DedupStore.
func (s *MemoryDedupStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID] = time.Now().Add(ttl)
	return nil
}
