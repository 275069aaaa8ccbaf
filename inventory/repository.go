package inventory

import (
	"context"

	"github.com/hiennm11/booking-saga/contracts"
)

// Repository persists items and reservations. Mutating operations that emit
// an event append it to the service's outbox in the same unit of work.
type Repository interface {
	SeedItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, itemID string) (Item, error)
	GetReservationByBooking(ctx context.Context, bookingID string) (Reservation, error)
	// Reserve decrements stock, creates the reservation and appends the
	// SeatReserved event atomically.
	Reserve(ctx context.Context, item Item, res Reservation, env contracts.Envelope) error
	// AppendEvent records an event with no accompanying mutation, e.g. a
	// reservation failure.
	AppendEvent(ctx context.Context, env contracts.Envelope) error
	// Release returns stock and marks the reservation released atomically.
	Release(ctx context.Context, item Item, res Reservation) error
}
