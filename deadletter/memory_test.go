package deadletter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := Record{
		SourceQueue:   "seat.reserved",
		EventType:     "seat.reserved",
		CorrelationID: "corr-1",
		Payload:       []byte(`{}`),
		ErrorMessage:  "gateway timeout",
		AttemptCount:  3,
		FailedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, record))

	records, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID, "an id is assigned when missing")
	assert.Equal(t, "gateway timeout", records[0].ErrorMessage)
	assert.False(t, records[0].Resolved)
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	records := []Record{
		{ID: "dl-1", SourceQueue: "booking.requested", FailedAt: base.Add(-2 * time.Hour)},
		{ID: "dl-2", SourceQueue: "seat.reserved", FailedAt: base.Add(-time.Hour)},
		{ID: "dl-3", SourceQueue: "seat.reserved", FailedAt: base},
	}
	for _, r := range records {
		require.NoError(t, store.Save(ctx, r))
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "dl-3", got[0].ID)
		assert.Equal(t, "dl-1", got[2].ID)
	})

	t.Run("filters by source queue", func(t *testing.T) {
		got, err := store.List(ctx, Filter{SourceQueue: "seat.reserved"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("limits results", func(t *testing.T) {
		got, err := store.List(ctx, Filter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "dl-3", got[0].ID)
	})

	t.Run("hides resolved records when asked", func(t *testing.T) {
		require.NoError(t, store.Resolve(ctx, "dl-2"))

		got, err := store.List(ctx, Filter{OnlyUnresolved: true})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestMemoryStoreResolve(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Record{ID: "dl-1", SourceQueue: "payment.failed", FailedAt: time.Now()}))
	require.NoError(t, store.Resolve(ctx, "dl-1"))

	got, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Resolved, "resolved records are kept, not deleted")

	assert.ErrorIs(t, store.Resolve(ctx, "missing"), ErrRecordNotFound)
}
