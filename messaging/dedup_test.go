package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDedupStore(t *testing.T) {
	store := NewMemoryDedupStore()
	ctx := context.Background()

	t.Run("unknown ids are unseen", func(t *testing.T) {
		seen, err := store.Seen(ctx, "evt-1")
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("marked ids are seen", func(t *testing.T) {
		require.NoError(t, store.MarkProcessed(ctx, "evt-1", time.Hour))

		seen, err := store.Seen(ctx, "evt-1")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("expired ids are unseen again", func(t *testing.T) {
		require.NoError(t, store.MarkProcessed(ctx, "evt-2", -time.Second))

		seen, err := store.Seen(ctx, "evt-2")
		require.NoError(t, err)
		assert.False(t, seen)
	})
}
