// ABOUTME: Tests for device sessions against miniredis
// ABOUTME: Covers lazy creation, credit spend, and exhaustion

package devices

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestStore_Grant_CreatesLazily(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	session, err := store.Grant(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, "device-1", session.DeviceID)
	assert.Equal(t, int64(StartingCredits), session.Credits)

	// Second grant sees the existing session, not a fresh one
	_, err = store.Decrement(ctx, "device-1")
	require.NoError(t, err)

	session, err = store.Grant(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.Credits)
}

func TestStore_Grant_Exhausted(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Grant(ctx, "device-1")
	require.NoError(t, err)

	for i := 0; i < StartingCredits; i++ {
		_, err = store.Decrement(ctx, "device-1")
		require.NoError(t, err)
	}

	_, err = store.Grant(ctx, "device-1")
	assert.ErrorIs(t, err, ErrNoCredits)
}

func TestStore_Decrement(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Grant(ctx, "device-1")
	require.NoError(t, err)

	remaining, err := store.Decrement(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	remaining, err = store.Decrement(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestStore_Credits_UnseenDevice(t *testing.T) {
	store := setupStore(t)

	// Unseen devices report the starting balance without being created
	credits, err := store.Credits(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, int64(StartingCredits), credits)
}

func TestStore_Credits_TracksSpend(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Grant(ctx, "device-1")
	require.NoError(t, err)
	_, err = store.Decrement(ctx, "device-1")
	require.NoError(t, err)

	credits, err := store.Credits(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), credits)
}
