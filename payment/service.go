package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hiennm11/booking-saga/contracts"
)

// Service is the payment side of the saga: it reacts to SeatReserved by
// charging and settles the outcome as PaymentSucceeded or PaymentFailed.
type Service struct {
	repo    Repository
	gateway Gateway
	logger  *slog.Logger
}

// NewService creates the payment service.
func NewService(repo Repository, gateway Gateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, gateway: gateway, logger: logger}
}

// HandleSeatReserved charges for the reservation. A duplicate SeatReserved
// for an already settled booking is a no-op: no double-charge, no duplicate
// outcome event.
func (s *Service) HandleSeatReserved(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SeatReserved
	if err := env.DecodeData(&payload); err != nil {
		return err
	}

	logger := s.logger.With(
		"booking_id", payload.BookingID,
		"correlation_id", env.CorrelationID,
	)

	if existing, err := s.repo.GetByBooking(ctx, payload.BookingID); err == nil {
		logger.Info("booking already settled, duplicate ignored",
			"payment_id", existing.ID,
			"status", existing.Status)
		return nil
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return err
	}

	p := Payment{
		ID:            uuid.New().String(),
		BookingID:     payload.BookingID,
		Amount:        payload.Amount,
		CorrelationID: env.CorrelationID,
		CreatedAt:     time.Now().UTC(),
	}

	chargeErr := s.gateway.Charge(ctx, payload.BookingID, payload.Amount)
	var declined *DeclinedError
	switch {
	case chargeErr == nil:
		p.Status = StatusSucceeded
	case errors.As(chargeErr, &declined):
		// Expected business outcome; settles as a failed payment and drives
		// the compensation path.
		p.Status = StatusFailed
		p.FailReason = declined.Reason
	default:
		// Gateway infrastructure failure: no settlement written, the
		// consumer pipeline retries the whole handler.
		return chargeErr
	}

	var outcome contracts.Envelope
	var err error
	if p.Status == StatusSucceeded {
		outcome, err = contracts.NewEnvelope(contracts.EventPaymentSucceeded, env.CorrelationID, contracts.PaymentSucceeded{
			BookingID: p.BookingID,
			PaymentID: p.ID,
			Amount:    p.Amount,
		})
	} else {
		outcome, err = contracts.NewEnvelope(contracts.EventPaymentFailed, env.CorrelationID, contracts.PaymentFailed{
			BookingID: p.BookingID,
			Amount:    p.Amount,
			Reason:    p.FailReason,
		})
	}
	if err != nil {
		return err
	}

	if err := s.repo.CreateWithEvent(ctx, p, outcome); err != nil {
		return err
	}

	logger.Info("payment settled",
		"payment_id", p.ID,
		"status", p.Status,
		"amount", p.Amount)
	return nil
}
