package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hiennm11/booking-saga/contracts"
)

// CapacityExceededReason is the business outcome reported when stock runs
// out. It travels in the SeatReservationFailed payload, not as an error.
const CapacityExceededReason = "capacity exceeded"

// UnknownItemReason is reported when a booking references an item the
// inventory has never seen.
const UnknownItemReason = "unknown item"

// Service is the inventory side of the saga: it reserves stock on
// BookingRequested and releases it on the compensating SeatReleaseRequested.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates the inventory service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// HandleBookingRequested tries to hold stock for the booking. Insufficient
// capacity is an expected business outcome that produces a
// SeatReservationFailed event, never a handler error.
func (s *Service) HandleBookingRequested(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.BookingRequested
	if err := env.DecodeData(&payload); err != nil {
		return err
	}

	logger := s.logger.With(
		"booking_id", payload.BookingID,
		"item_id", payload.ItemID,
		"correlation_id", env.CorrelationID,
	)

	// Re-delivery check: an existing reservation means this event was fully
	// processed before, SeatReserved included.
	if _, err := s.repo.GetReservationByBooking(ctx, payload.BookingID); err == nil {
		logger.Info("booking already reserved, duplicate ignored")
		return nil
	} else if !errors.Is(err, ErrReservationNotFound) {
		return err
	}

	item, err := s.repo.GetItem(ctx, payload.ItemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return s.reject(ctx, env, payload, UnknownItemReason, logger)
		}
		return err
	}
	if item.Available < payload.Quantity {
		return s.reject(ctx, env, payload, CapacityExceededReason, logger)
	}

	now := time.Now().UTC()
	reserved, err := contracts.NewEnvelope(contracts.EventSeatReserved, env.CorrelationID, contracts.SeatReserved{
		BookingID: payload.BookingID,
		ItemID:    payload.ItemID,
		Quantity:  payload.Quantity,
		Amount:    payload.Amount,
	})
	if err != nil {
		return err
	}

	item.UpdatedAt = now
	res := Reservation{
		ID:        uuid.New().String(),
		BookingID: payload.BookingID,
		ItemID:    payload.ItemID,
		Quantity:  payload.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Reserve(ctx, item, res, reserved); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			// Lost the race for the last units inside the transaction.
			return s.reject(ctx, env, payload, CapacityExceededReason, logger)
		}
		return err
	}

	logger.Info("seat reserved", "quantity", payload.Quantity)
	return nil
}

// HandleSeatReleaseRequested returns held stock. Releasing an unknown or
// already released reservation is a no-op, so duplicate compensations cannot
// double-credit stock.
func (s *Service) HandleSeatReleaseRequested(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SeatReleaseRequested
	if err := env.DecodeData(&payload); err != nil {
		return err
	}

	logger := s.logger.With(
		"booking_id", payload.BookingID,
		"item_id", payload.ItemID,
		"correlation_id", env.CorrelationID,
	)

	res, err := s.repo.GetReservationByBooking(ctx, payload.BookingID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			logger.Info("release for unknown reservation ignored")
			return nil
		}
		return err
	}
	if res.Released {
		logger.Info("reservation already released, duplicate ignored")
		return nil
	}

	item, err := s.repo.GetItem(ctx, res.ItemID)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return err
	}

	now := time.Now().UTC()
	item.UpdatedAt = now
	res.UpdatedAt = now
	if err := s.repo.Release(ctx, item, res); err != nil {
		return err
	}

	logger.Info("reservation released", "quantity", res.Quantity)
	return nil
}

func (s *Service) reject(ctx context.Context, env contracts.Envelope, payload contracts.BookingRequested, reason string, logger *slog.Logger) error {
	failed, err := contracts.NewEnvelope(contracts.EventSeatReservationFailed, env.CorrelationID, contracts.SeatReservationFailed{
		BookingID: payload.BookingID,
		ItemID:    payload.ItemID,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	if err := s.repo.AppendEvent(ctx, failed); err != nil {
		return err
	}
	logger.Info("reservation rejected", "reason", reason)
	return nil
}
