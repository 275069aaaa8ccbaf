package booking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/booking-saga/booking"
	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/inventory"
	"github.com/hiennm11/booking-saga/outbox"
	"github.com/hiennm11/booking-saga/payment"
)

// sagaHarness wires the three services over in-memory repositories and an
// in-process event router standing in for the broker.
type sagaHarness struct {
	bookingSvc   *booking.Service
	bookingRepo  *booking.MemoryRepository
	inventorySvc *inventory.Service
	invRepo      *inventory.MemoryRepository
	paymentSvc   *payment.Service
	paymentRepo  *payment.MemoryRepository

	relays []*outbox.Relay
	routed []contracts.Envelope
}

// router delivers relayed envelopes straight to the consuming service, the
// same queue-to-service mapping the deployed topology uses.
type router struct {
	h *sagaHarness
}

func (r *router) PublishEnvelope(ctx context.Context, queue string, env contracts.Envelope) error {
	r.h.routed = append(r.h.routed, env)
	switch queue {
	case contracts.EventBookingRequested:
		return r.h.inventorySvc.HandleBookingRequested(ctx, env)
	case contracts.EventSeatReserved:
		return r.h.paymentSvc.HandleSeatReserved(ctx, env)
	case contracts.EventSeatReservationFailed:
		return r.h.bookingSvc.HandleSeatReservationFailed(ctx, env)
	case contracts.EventPaymentSucceeded:
		return r.h.bookingSvc.HandlePaymentSucceeded(ctx, env)
	case contracts.EventPaymentFailed:
		return r.h.bookingSvc.HandlePaymentFailed(ctx, env)
	case contracts.EventSeatReleaseRequested:
		return r.h.inventorySvc.HandleSeatReleaseRequested(ctx, env)
	}
	return nil
}

func newSagaHarness(t *testing.T, available int, declineOver float64) *sagaHarness {
	t.Helper()
	h := &sagaHarness{}

	bookingOutbox := outbox.NewMemoryStore(5)
	inventoryOutbox := outbox.NewMemoryStore(5)
	paymentOutbox := outbox.NewMemoryStore(5)

	h.bookingRepo = booking.NewMemoryRepository(bookingOutbox)
	h.bookingSvc = booking.NewService(h.bookingRepo, nil)

	h.invRepo = inventory.NewMemoryRepository(inventoryOutbox)
	h.inventorySvc = inventory.NewService(h.invRepo, nil)
	require.NoError(t, h.invRepo.SeedItem(context.Background(), inventory.Item{
		ID:        "concert-42",
		Name:      "Concert",
		Available: available,
	}))

	h.paymentRepo = payment.NewMemoryRepository(paymentOutbox)
	h.paymentSvc = payment.NewService(h.paymentRepo, &payment.DemoGateway{DeclineOver: declineOver}, nil)

	bus := &router{h: h}
	for _, store := range []*outbox.MemoryStore{bookingOutbox, inventoryOutbox, paymentOutbox} {
		h.relays = append(h.relays, outbox.NewRelay(store, bus))
	}
	return h
}

// pump drains every outbox until a full round moves nothing.
func (h *sagaHarness) pump(t *testing.T) {
	t.Helper()
	for round := 0; round < 20; round++ {
		before := len(h.routed)
		for _, relay := range h.relays {
			require.NoError(t, relay.RunOnce(context.Background()))
		}
		if len(h.routed) == before {
			return
		}
	}
	t.Fatal("saga did not settle")
}

func (h *sagaHarness) eventNames() []string {
	names := make([]string, 0, len(h.routed))
	for _, env := range h.routed {
		names = append(names, env.EventName)
	}
	return names
}

func TestSagaHappyPath(t *testing.T) {
	h := newSagaHarness(t, 10, 500)
	ctx := context.Background()

	b, err := h.bookingSvc.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:   "user-1",
		ItemID:   "concert-42",
		Quantity: 2,
		Amount:   180,
	})
	require.NoError(t, err)
	h.pump(t)

	stored, err := h.bookingRepo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, stored.Status)

	item, err := h.invRepo.GetItem(ctx, "concert-42")
	require.NoError(t, err)
	assert.Equal(t, 8, item.Available)

	p, err := h.paymentRepo.GetByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, p.Status)

	assert.Equal(t, []string{
		contracts.EventBookingRequested,
		contracts.EventSeatReserved,
		contracts.EventPaymentSucceeded,
	}, h.eventNames())

	t.Run("every event carries the booking correlation id", func(t *testing.T) {
		for _, env := range h.routed {
			assert.Equal(t, b.CorrelationID, env.CorrelationID, env.EventName)
		}
	})
}

func TestSagaReservationFailure(t *testing.T) {
	h := newSagaHarness(t, 1, 500)
	ctx := context.Background()

	b, err := h.bookingSvc.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:   "user-1",
		ItemID:   "concert-42",
		Quantity: 5,
		Amount:   450,
	})
	require.NoError(t, err)
	h.pump(t)

	stored, err := h.bookingRepo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	assert.Equal(t, inventory.CapacityExceededReason, stored.CancelReason)

	item, err := h.invRepo.GetItem(ctx, "concert-42")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Available, "stock untouched")

	_, err = h.paymentRepo.GetByBooking(ctx, b.ID)
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound, "payment never entered the saga")

	assert.Equal(t, []string{
		contracts.EventBookingRequested,
		contracts.EventSeatReservationFailed,
	}, h.eventNames())
}

func TestSagaPaymentFailureCompensates(t *testing.T) {
	h := newSagaHarness(t, 10, 100)
	ctx := context.Background()

	b, err := h.bookingSvc.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:   "user-1",
		ItemID:   "concert-42",
		Quantity: 2,
		Amount:   180,
	})
	require.NoError(t, err)
	h.pump(t)

	stored, err := h.bookingRepo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	assert.Equal(t, "amount over limit", stored.CancelReason)

	item, err := h.invRepo.GetItem(ctx, "concert-42")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Available, "compensation returned the held stock")

	res, err := h.invRepo.GetReservationByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Released)

	p, err := h.paymentRepo.GetByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)

	assert.Equal(t, []string{
		contracts.EventBookingRequested,
		contracts.EventSeatReserved,
		contracts.EventPaymentFailed,
		contracts.EventSeatReleaseRequested,
	}, h.eventNames())
}

func TestSagaDuplicatePaymentFailedIsNoOp(t *testing.T) {
	h := newSagaHarness(t, 10, 100)
	ctx := context.Background()

	b, err := h.bookingSvc.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:   "user-1",
		ItemID:   "concert-42",
		Quantity: 2,
		Amount:   180,
	})
	require.NoError(t, err)
	h.pump(t)

	stored, err := h.bookingRepo.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, stored.Status)

	// Redeliver the PaymentFailed event after the saga already compensated.
	var failedEnv contracts.Envelope
	for _, env := range h.routed {
		if env.EventName == contracts.EventPaymentFailed {
			failedEnv = env
		}
	}
	require.NotEmpty(t, failedEnv.EventID)

	releases := 0
	for _, name := range h.eventNames() {
		if name == contracts.EventSeatReleaseRequested {
			releases++
		}
	}
	require.Equal(t, 1, releases)

	require.NoError(t, h.bookingSvc.HandlePaymentFailed(ctx, failedEnv))
	h.pump(t)

	releases = 0
	for _, name := range h.eventNames() {
		if name == contracts.EventSeatReleaseRequested {
			releases++
		}
	}
	assert.Equal(t, 1, releases, "no duplicate compensation")

	item, err := h.invRepo.GetItem(ctx, "concert-42")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Available, "stock credited exactly once")
}
