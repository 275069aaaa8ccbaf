package payment

import (
	"context"
	"sync"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// demos.
type MemoryRepository struct {
	mu       sync.Mutex
	payments map[string]Payment // keyed by booking id
	outbox   *outbox.MemoryStore
}

// NewMemoryRepository creates an in-memory repository writing events to ob.
func NewMemoryRepository(ob *outbox.MemoryStore) *MemoryRepository {
	return &MemoryRepository{
		payments: make(map[string]Payment),
		outbox:   ob,
	}
}

// GetByBooking implements Repository.
func (r *MemoryRepository) GetByBooking(ctx context.Context, bookingID string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[bookingID]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

// CreateWithEvent implements Repository.
func (r *MemoryRepository) CreateWithEvent(ctx context.Context, p Payment, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.payments[p.BookingID] = p
	if _, err := r.outbox.Append(ctx, env.EventName, body); err != nil {
		delete(r.payments, p.BookingID)
		return err
	}
	return nil
}
