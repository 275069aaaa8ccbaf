package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

type flakyGateway struct {
	failures int
	calls    int
}

func (g *flakyGateway) Charge(ctx context.Context, bookingID string, amount float64) error {
	g.calls++
	if g.calls <= g.failures {
		return errors.New("gateway timeout")
	}
	return nil
}

func seatReserved(t *testing.T, bookingID string, amount float64) contracts.Envelope {
	t.Helper()
	env, err := contracts.NewEnvelope(contracts.EventSeatReserved, "corr-"+bookingID, contracts.SeatReserved{
		BookingID: bookingID,
		ItemID:    "concert-42",
		Quantity:  2,
		Amount:    amount,
	})
	require.NoError(t, err)
	return env
}

func settledEvents(t *testing.T, ob *outbox.MemoryStore) []contracts.Envelope {
	t.Helper()
	pending, err := ob.FetchPending(context.Background(), 50)
	require.NoError(t, err)

	var envs []contracts.Envelope
	for _, r := range pending {
		env, err := contracts.DecodeEnvelope(r.Payload)
		require.NoError(t, err)
		envs = append(envs, env)
	}
	return envs
}

func TestHandleSeatReserved(t *testing.T) {
	t.Run("approved charge settles as PaymentSucceeded", func(t *testing.T) {
		ob := outbox.NewMemoryStore(5)
		repo := NewMemoryRepository(ob)
		svc := NewService(repo, &DemoGateway{DeclineOver: 500}, nil)
		ctx := context.Background()

		require.NoError(t, svc.HandleSeatReserved(ctx, seatReserved(t, "bkg-1", 180)))

		p, err := repo.GetByBooking(ctx, "bkg-1")
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, p.Status)
		assert.Equal(t, 180.0, p.Amount)

		events := settledEvents(t, ob)
		require.Len(t, events, 1)
		assert.Equal(t, contracts.EventPaymentSucceeded, events[0].EventName)

		var payload contracts.PaymentSucceeded
		require.NoError(t, events[0].DecodeData(&payload))
		assert.Equal(t, p.ID, payload.PaymentID)
	})

	t.Run("declined charge settles as PaymentFailed", func(t *testing.T) {
		ob := outbox.NewMemoryStore(5)
		repo := NewMemoryRepository(ob)
		svc := NewService(repo, &DemoGateway{DeclineOver: 100}, nil)
		ctx := context.Background()

		require.NoError(t, svc.HandleSeatReserved(ctx, seatReserved(t, "bkg-1", 180)))

		p, err := repo.GetByBooking(ctx, "bkg-1")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, p.Status)
		assert.Equal(t, "amount over limit", p.FailReason)

		events := settledEvents(t, ob)
		require.Len(t, events, 1)
		assert.Equal(t, contracts.EventPaymentFailed, events[0].EventName)

		var payload contracts.PaymentFailed
		require.NoError(t, events[0].DecodeData(&payload))
		assert.Equal(t, "amount over limit", payload.Reason)
	})

	t.Run("gateway failure leaves no settlement and surfaces the error", func(t *testing.T) {
		ob := outbox.NewMemoryStore(5)
		repo := NewMemoryRepository(ob)
		gateway := &flakyGateway{failures: 10}
		svc := NewService(repo, gateway, nil)
		ctx := context.Background()

		err := svc.HandleSeatReserved(ctx, seatReserved(t, "bkg-1", 180))
		require.Error(t, err)

		_, getErr := repo.GetByBooking(ctx, "bkg-1")
		assert.ErrorIs(t, getErr, ErrPaymentNotFound)
		assert.Empty(t, settledEvents(t, ob))
	})

	t.Run("a retried delivery succeeds once the gateway recovers", func(t *testing.T) {
		ob := outbox.NewMemoryStore(5)
		repo := NewMemoryRepository(ob)
		gateway := &flakyGateway{failures: 1}
		svc := NewService(repo, gateway, nil)
		ctx := context.Background()
		env := seatReserved(t, "bkg-1", 180)

		require.Error(t, svc.HandleSeatReserved(ctx, env))
		require.NoError(t, svc.HandleSeatReserved(ctx, env))

		p, err := repo.GetByBooking(ctx, "bkg-1")
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, p.Status)
	})

	t.Run("duplicate SeatReserved never double-charges", func(t *testing.T) {
		ob := outbox.NewMemoryStore(5)
		repo := NewMemoryRepository(ob)
		gateway := &flakyGateway{}
		svc := NewService(repo, gateway, nil)
		ctx := context.Background()
		env := seatReserved(t, "bkg-1", 180)

		require.NoError(t, svc.HandleSeatReserved(ctx, env))
		require.NoError(t, svc.HandleSeatReserved(ctx, env))

		assert.Equal(t, 1, gateway.calls)
		assert.Len(t, settledEvents(t, ob), 1)
	})
}

func TestDemoGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("approves under the limit", func(t *testing.T) {
		g := &DemoGateway{DeclineOver: 100}
		assert.NoError(t, g.Charge(ctx, "bkg-1", 100))
	})

	t.Run("declines over the limit", func(t *testing.T) {
		g := &DemoGateway{DeclineOver: 100}
		err := g.Charge(ctx, "bkg-1", 100.01)

		var declined *DeclinedError
		require.ErrorAs(t, err, &declined)
		assert.False(t, declined.IsRetryable())
	})

	t.Run("zero limit approves everything", func(t *testing.T) {
		g := &DemoGateway{}
		assert.NoError(t, g.Charge(ctx, "bkg-1", 1e9))
	})
}
