package inventory

import (
	"context"
	"sync"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// demos.
type MemoryRepository struct {
	mu           sync.Mutex
	items        map[string]Item
	reservations map[string]Reservation // keyed by booking id
	outbox       *outbox.MemoryStore
}

// NewMemoryRepository creates an in-memory repository writing events to ob.
func NewMemoryRepository(ob *outbox.MemoryStore) *MemoryRepository {
	return &MemoryRepository{
		items:        make(map[string]Item),
		reservations: make(map[string]Reservation),
		outbox:       ob,
	}
}

// SeedItem implements Repository.
func (r *MemoryRepository) SeedItem(ctx context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		r.items[item.ID] = item
	}
	return nil
}

// GetItem implements Repository.
func (r *MemoryRepository) GetItem(ctx context.Context, itemID string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// GetReservationByBooking implements Repository.
func (r *MemoryRepository) GetReservationByBooking(ctx context.Context, bookingID string) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[bookingID]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

// Reserve implements Repository.
func (r *MemoryRepository) Reserve(ctx context.Context, item Item, res Reservation, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ID]
	if !ok || current.Available < res.Quantity {
		return ErrItemNotFound
	}
	current.Available -= res.Quantity
	r.items[item.ID] = current
	r.reservations[res.BookingID] = res

	if _, err := r.outbox.Append(ctx, env.EventName, body); err != nil {
		current.Available += res.Quantity
		r.items[item.ID] = current
		delete(r.reservations, res.BookingID)
		return err
	}
	return nil
}

// AppendEvent implements Repository.
func (r *MemoryRepository) AppendEvent(ctx context.Context, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	_, err = r.outbox.Append(ctx, env.EventName, body)
	return err
}

// Release implements Repository.
func (r *MemoryRepository) Release(ctx context.Context, item Item, res Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.reservations[res.BookingID]
	if !ok || stored.Released {
		return nil
	}
	stored.Released = true
	r.reservations[res.BookingID] = stored

	current, ok := r.items[item.ID]
	if ok {
		current.Available += stored.Quantity
		r.items[item.ID] = current
	}
	return nil
}
