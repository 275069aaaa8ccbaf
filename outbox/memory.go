package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-process demos.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]*Record
	maxRetries int
}

// NewMemoryStore creates an in-memory store with the given retry cap.
func NewMemoryStore(maxRetries int) *MemoryStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &MemoryStore{
		records:    make(map[string]*Record),
		maxRetries: maxRetries,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, eventType string, payload []byte) (Record, error) {
	if len(payload) == 0 {
		return Record{}, ErrEmptyPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := Record{
		ID:        uuid.New().String(),
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UTC(),
	}
	s.records[record.ID] = &record

	copied := record
	return copied, nil
}

// FetchPending implements Store.
func (s *MemoryStore) FetchPending(ctx context.Context, batchSize int) ([]Record, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Record
	for _, r := range s.records {
		if !r.Published && r.RetryCount < s.maxRetries {
			pending = append(pending, *r)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > batchSize {
		pending = pending[:batchSize]
	}
	return pending, nil
}

// MarkPublished implements Store.
func (s *MemoryStore) MarkPublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if r.Published {
		return nil
	}
	now := time.Now().UTC()
	r.Published = true
	r.PublishedAt = &now
	return nil
}

// MarkFailed implements Store.
func (s *MemoryStore) MarkFailed(ctx context.Context, id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if r.Published {
		return nil
	}
	now := time.Now().UTC()
	r.RetryCount++
	r.LastError = truncateError(cause)
	r.LastAttemptAt = &now
	return nil
}

// CountExhausted implements Store.
func (s *MemoryStore) CountExhausted(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, r := range s.records {
		if !r.Published && r.RetryCount >= s.maxRetries {
			count++
		}
	}
	return count, nil
}

// Get returns a snapshot of one record.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}
