package booking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/internal/reliability"
	"github.com/hiennm11/booking-saga/outbox"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository, *outbox.MemoryStore) {
	t.Helper()
	ob := outbox.NewMemoryStore(5)
	repo := NewMemoryRepository(ob)
	return NewService(repo, nil), repo, ob
}

func mustCreateBooking(t *testing.T, svc *Service) Booking {
	t.Helper()
	b, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:   "user-1",
		ItemID:   "concert-42",
		Quantity: 2,
		Amount:   180,
	})
	require.NoError(t, err)
	return b
}

func envelopeFor(t *testing.T, eventName, correlationID string, payload any) contracts.Envelope {
	t.Helper()
	env, err := contracts.NewEnvelope(eventName, correlationID, payload)
	require.NoError(t, err)
	return env
}

func TestCreateBooking(t *testing.T) {
	svc, repo, ob := newTestService(t)
	ctx := context.Background()

	b := mustCreateBooking(t, svc)

	assert.NotEmpty(t, b.ID)
	assert.NotEmpty(t, b.CorrelationID)
	assert.Equal(t, StatusPending, b.Status)

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	t.Run("writes the BookingRequested event to the outbox", func(t *testing.T) {
		pending, err := ob.FetchPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, contracts.EventBookingRequested, pending[0].EventType)

		env, err := contracts.DecodeEnvelope(pending[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, b.CorrelationID, env.CorrelationID)

		var payload contracts.BookingRequested
		require.NoError(t, env.DecodeData(&payload))
		assert.Equal(t, b.ID, payload.BookingID)
		assert.Equal(t, 2, payload.Quantity)
		assert.Equal(t, 180.0, payload.Amount)
	})

	t.Run("rejects a non-positive quantity", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, CreateBookingInput{UserID: "user-1", ItemID: "concert-42", Quantity: 0})
		assert.Error(t, err)
	})
}

func TestHandleSeatReservationFailed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	b := mustCreateBooking(t, svc)

	env := envelopeFor(t, contracts.EventSeatReservationFailed, b.CorrelationID, contracts.SeatReservationFailed{
		BookingID: b.ID,
		ItemID:    b.ItemID,
		Reason:    "capacity exceeded",
	})
	require.NoError(t, svc.HandleSeatReservationFailed(ctx, env))

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, "capacity exceeded", stored.CancelReason)

	t.Run("redelivery is a no-op", func(t *testing.T) {
		require.NoError(t, svc.HandleSeatReservationFailed(ctx, env))

		stored, err := repo.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, stored.Status)
	})
}

func TestHandlePaymentSucceeded(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	b := mustCreateBooking(t, svc)

	env := envelopeFor(t, contracts.EventPaymentSucceeded, b.CorrelationID, contracts.PaymentSucceeded{
		BookingID: b.ID,
		PaymentID: "pay-1",
		Amount:    180,
	})
	require.NoError(t, svc.HandlePaymentSucceeded(ctx, env))

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)

	t.Run("does not resurrect a cancelled booking", func(t *testing.T) {
		other := mustCreateBooking(t, svc)
		cancelEnv := envelopeFor(t, contracts.EventSeatReservationFailed, other.CorrelationID, contracts.SeatReservationFailed{
			BookingID: other.ID,
			Reason:    "capacity exceeded",
		})
		require.NoError(t, svc.HandleSeatReservationFailed(ctx, cancelEnv))

		lateEnv := envelopeFor(t, contracts.EventPaymentSucceeded, other.CorrelationID, contracts.PaymentSucceeded{
			BookingID: other.ID,
			PaymentID: "pay-2",
		})
		require.NoError(t, svc.HandlePaymentSucceeded(ctx, lateEnv))

		stored, err := repo.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, stored.Status)
	})
}

func TestHandlePaymentFailed(t *testing.T) {
	svc, repo, ob := newTestService(t)
	ctx := context.Background()
	b := mustCreateBooking(t, svc)

	env := envelopeFor(t, contracts.EventPaymentFailed, b.CorrelationID, contracts.PaymentFailed{
		BookingID: b.ID,
		Amount:    180,
		Reason:    "card declined",
	})
	require.NoError(t, svc.HandlePaymentFailed(ctx, env))

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, "card declined", stored.CancelReason)

	t.Run("emits the seat release through the outbox", func(t *testing.T) {
		pending, err := ob.FetchPending(ctx, 10)
		require.NoError(t, err)

		var releases []outbox.Record
		for _, r := range pending {
			if r.EventType == contracts.EventSeatReleaseRequested {
				releases = append(releases, r)
			}
		}
		require.Len(t, releases, 1)

		release, err := contracts.DecodeEnvelope(releases[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, b.CorrelationID, release.CorrelationID)

		var payload contracts.SeatReleaseRequested
		require.NoError(t, release.DecodeData(&payload))
		assert.Equal(t, b.ID, payload.BookingID)
		assert.Equal(t, b.Quantity, payload.Quantity)
	})

	t.Run("duplicate failure emits no second release", func(t *testing.T) {
		require.NoError(t, svc.HandlePaymentFailed(ctx, env))

		pending, err := ob.FetchPending(ctx, 10)
		require.NoError(t, err)

		count := 0
		for _, r := range pending {
			if r.EventType == contracts.EventSeatReleaseRequested {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestUnknownBookingIsPermanent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	env := envelopeFor(t, contracts.EventPaymentSucceeded, "corr-x", contracts.PaymentSucceeded{
		BookingID: "missing",
	})
	err := svc.HandlePaymentSucceeded(ctx, env)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.False(t, reliability.IsRetryable(err))
}

func TestBookingTransitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("confirm from pending", func(t *testing.T) {
		b := Booking{Status: StatusPending}
		assert.True(t, b.Confirm(now))
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.False(t, b.Confirm(now))
	})

	t.Run("cancel from pending", func(t *testing.T) {
		b := Booking{Status: StatusPending}
		assert.True(t, b.Cancel("capacity exceeded", now))
		assert.Equal(t, StatusCancelled, b.Status)
		assert.Equal(t, "capacity exceeded", b.CancelReason)
	})

	t.Run("terminal states never flip", func(t *testing.T) {
		b := Booking{Status: StatusConfirmed}
		assert.False(t, b.Cancel("late failure", now))
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.Empty(t, b.CancelReason)
	})
}

func TestMemoryRepositoryDoesNotKeepBookingWithoutEvent(t *testing.T) {
	ob := outbox.NewMemoryStore(5)
	repo := NewMemoryRepository(ob)
	ctx := context.Background()

	// Invalid raw data makes the envelope unencodable, so the write must not
	// leave a booking behind without its outbox record.
	bad := contracts.Envelope{
		EventName: contracts.EventBookingRequested,
		Data:      json.RawMessage("{"),
	}
	err := repo.CreateWithEvent(ctx, Booking{ID: "bkg-1", Status: StatusPending}, bad)

	require.Error(t, err)
	_, getErr := repo.Get(ctx, "bkg-1")
	assert.ErrorIs(t, getErr, ErrBookingNotFound)
}
