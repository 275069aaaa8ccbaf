package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/internal/reliability"
)

// Service is the booking side of the saga: it opens every saga instance and
// reacts to reservation and payment outcomes.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates the booking service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateBookingInput is the saga entry request.
type CreateBookingInput struct {
	UserID   string
	ItemID   string
	Quantity int
	Amount   float64
}

// CreateBooking is the saga entry point. It generates the correlation id that
// every downstream event and log line carries, and writes the PENDING booking
// together with its BookingRequested outbox record in one transaction.
func (s *Service) CreateBooking(ctx context.Context, input CreateBookingInput) (Booking, error) {
	if input.Quantity <= 0 {
		return Booking{}, fmt.Errorf("booking: quantity must be positive")
	}

	now := time.Now().UTC()
	b := Booking{
		ID:            uuid.New().String(),
		UserID:        input.UserID,
		ItemID:        input.ItemID,
		Quantity:      input.Quantity,
		Amount:        input.Amount,
		Status:        StatusPending,
		CorrelationID: contracts.NewCorrelationID(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	env, err := contracts.NewEnvelope(contracts.EventBookingRequested, b.CorrelationID, contracts.BookingRequested{
		BookingID: b.ID,
		UserID:    b.UserID,
		ItemID:    b.ItemID,
		Quantity:  b.Quantity,
		Amount:    b.Amount,
	})
	if err != nil {
		return Booking{}, err
	}

	if err := s.repo.CreateWithEvent(ctx, b, env); err != nil {
		return Booking{}, err
	}

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"correlation_id", b.CorrelationID,
		"item_id", b.ItemID,
		"amount", b.Amount)
	return b, nil
}

// HandleSeatReservationFailed cancels the booking with the reported reason.
func (s *Service) HandleSeatReservationFailed(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SeatReservationFailed
	if err := env.DecodeData(&payload); err != nil {
		return err
	}

	b, err := s.repo.Get(ctx, payload.BookingID)
	if err != nil {
		return s.classifyLookup(err, payload.BookingID, env)
	}

	if !b.Cancel(payload.Reason, time.Now().UTC()) {
		s.logger.Info("reservation failure for terminal booking ignored",
			"booking_id", b.ID,
			"correlation_id", env.CorrelationID,
			"status", b.Status)
		return nil
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return err
	}

	s.logger.Info("booking cancelled",
		"booking_id", b.ID,
		"correlation_id", env.CorrelationID,
		"reason", payload.Reason)
	return nil
}

// HandlePaymentSucceeded confirms the booking.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.PaymentSucceeded
	if err := env.DecodeData(&payload); err != nil {
		return err
	}

	b, err := s.repo.Get(ctx, payload.BookingID)
	if err != nil {
		return s.classifyLookup(err, payload.BookingID, env)
	}

	if !b.Confirm(time.Now().UTC()) {
		s.logger.Info("payment success for terminal booking ignored",
			"booking_id", b.ID,
			"correlation_id", env.CorrelationID,
			"status", b.Status)
		return nil
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return err
	}

	s.logger.Info("booking confirmed",
		"booking_id", b.ID,
		"correlation_id", env.CorrelationID,
		"payment_id", payload.PaymentID)
	return nil
}

// HandlePaymentFailed cancels the booking and emits the compensating seat
// release in one transaction. A PaymentFailed arriving after the booking was
// already cancelled by another path is a no-op: no state change, no duplicate
// compensation event.
func (s *Service) HandlePaymentFailed(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.PaymentFailed
	if err := env.DecodeData(&payload); err != nil {
		return err
	}

	b, err := s.repo.Get(ctx, payload.BookingID)
	if err != nil {
		return s.classifyLookup(err, payload.BookingID, env)
	}

	if !b.Cancel(payload.Reason, time.Now().UTC()) {
		s.logger.Info("payment failure for terminal booking ignored",
			"booking_id", b.ID,
			"correlation_id", env.CorrelationID,
			"status", b.Status)
		return nil
	}

	release, err := contracts.NewEnvelope(contracts.EventSeatReleaseRequested, env.CorrelationID, contracts.SeatReleaseRequested{
		BookingID: b.ID,
		ItemID:    b.ItemID,
		Quantity:  b.Quantity,
	})
	if err != nil {
		return err
	}

	if err := s.repo.UpdateWithEvent(ctx, b, release); err != nil {
		return err
	}

	s.logger.Info("booking cancelled, seat release requested",
		"booking_id", b.ID,
		"correlation_id", env.CorrelationID,
		"reason", payload.Reason)
	return nil
}

// classifyLookup marks an unknown booking id as permanent: the event can
// never apply, so it belongs in the dead-letter sink, not back on the queue.
func (s *Service) classifyLookup(err error, bookingID string, env contracts.Envelope) error {
	if errors.Is(err, ErrBookingNotFound) {
		s.logger.Error("event references unknown booking",
			"booking_id", bookingID,
			"event_name", env.EventName,
			"correlation_id", env.CorrelationID)
		return reliability.Permanent(err)
	}
	return err
}
