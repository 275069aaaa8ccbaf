package booking

import (
	"context"

	"github.com/hiennm11/booking-saga/contracts"
)

// Repository persists bookings. The WithEvent variants append the envelope to
// the service's outbox in the same unit of work as the booking write; the
// record exists iff the mutation committed.
type Repository interface {
	CreateWithEvent(ctx context.Context, b Booking, env contracts.Envelope) error
	Get(ctx context.Context, id string) (Booking, error)
	Update(ctx context.Context, b Booking) error
	UpdateWithEvent(ctx context.Context, b Booking, env contracts.Envelope) error
}
