package payment

import (
	"context"

	"github.com/hiennm11/booking-saga/contracts"
)

// Repository persists payments; the charge outcome and its event commit in
// one unit of work.
type Repository interface {
	GetByBooking(ctx context.Context, bookingID string) (Payment, error)
	CreateWithEvent(ctx context.Context, p Payment, env contracts.Envelope) error
}
