package booking

import (
	"context"
	"sync"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// demos, backed by an in-memory outbox store.
type MemoryRepository struct {
	mu       sync.Mutex
	bookings map[string]Booking
	outbox   *outbox.MemoryStore
}

// NewMemoryRepository creates an in-memory repository writing events to ob.
func NewMemoryRepository(ob *outbox.MemoryStore) *MemoryRepository {
	return &MemoryRepository{
		bookings: make(map[string]Booking),
		outbox:   ob,
	}
}

// CreateWithEvent implements Repository.
func (r *MemoryRepository) CreateWithEvent(ctx context.Context, b Booking, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bookings[b.ID] = b
	if _, err := r.outbox.Append(ctx, env.EventName, body); err != nil {
		delete(r.bookings, b.ID)
		return err
	}
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(ctx context.Context, id string) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return b, nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(ctx context.Context, b Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[b.ID]; !ok {
		return ErrBookingNotFound
	}
	r.bookings[b.ID] = b
	return nil
}

// UpdateWithEvent implements Repository.
func (r *MemoryRepository) UpdateWithEvent(ctx context.Context, b Booking, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.bookings[b.ID]
	if !ok {
		return ErrBookingNotFound
	}
	r.bookings[b.ID] = b
	if _, err := r.outbox.Append(ctx, env.EventName, body); err != nil {
		r.bookings[b.ID] = prev
		return err
	}
	return nil
}
