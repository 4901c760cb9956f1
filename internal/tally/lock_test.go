package tally

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexLockHonoursContext(t *testing.T) {
	km := newKeyedMutex()

	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, km.size())

	other, err := km.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	unlock()
	require.Zero(t, km.size())

	unlock, err = km.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	require.Zero(t, km.size())
}

func TestLockingEngineTimesOutOnHeldKey(t *testing.T) {
	store := &rwStore{counts: map[Key]int64{}}
	e := NewLockingEngine(testLogger(t), store, StoreTimeout(20*time.Millisecond))

	unlock, err := e.locks.Lock(context.Background(), testKey.String())
	require.NoError(t, err)
	defer unlock()

	_, err = e.Increment(context.Background(), testKey, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, store.counts[testKey])
}
