package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/msupply-sync/internal/db/dbtest"
)

func TestSettings(t *testing.T) {
	st := New(dbtest.Open(t))
	ctx := context.Background()

	t.Run("unset key reads empty", func(t *testing.T) {
		v, err := st.Get(ctx, ThisStoreID)
		require.NoError(t, err)
		assert.Empty(t, v)

		b, err := st.GetBool(ctx, SyncIsInitialised)
		require.NoError(t, err)
		assert.False(t, b)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, st.Set(ctx, ThisStoreID, "A"))
		require.NoError(t, st.Set(ctx, ThisStoreID, "B"))

		v, err := st.Get(ctx, ThisStoreID)
		require.NoError(t, err)
		assert.Equal(t, "B", v)
	})

	t.Run("bool round trip", func(t *testing.T) {
		require.NoError(t, st.SetBool(ctx, SyncLastPostProcessingFailed, true))
		b, err := st.GetBool(ctx, SyncLastPostProcessingFailed)
		require.NoError(t, err)
		assert.True(t, b)

		require.NoError(t, st.SetBool(ctx, SyncLastPostProcessingFailed, false))
		b, err = st.GetBool(ctx, SyncLastPostProcessingFailed)
		require.NoError(t, err)
		assert.False(t, b)
	})

	t.Run("time is stored in UTC to the second", func(t *testing.T) {
		at := time.Date(2024, 3, 9, 14, 30, 5, 999, time.FixedZone("BRT", -3*3600))
		require.NoError(t, st.SetTime(ctx, SyncLastSuccess, at))

		got, err := st.GetTime(ctx, SyncLastSuccess)
		require.NoError(t, err)
		assert.True(t, got.Equal(at.Truncate(time.Second)))
		assert.Equal(t, time.UTC, got.Location())
	})
}
