package sessions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RunOnceRemovesExpiredAndRunsTasks(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	_, err := store.Create(ctx, adminPrincipal())
	require.NoError(t, err)
	clock.Advance(DefaultTTL)
	_, err = store.Create(ctx, userPrincipal())
	require.NoError(t, err)

	sweeper := NewSweeper(store, 0, nil)
	var taskRuns int32
	sweeper.AddTask(func(ctx context.Context) { atomic.AddInt32(&taskRuns, 1) })

	removed, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&taskRuns))

	n, _ := store.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestSweeper_StartAndStop(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now), WithTTL(time.Minute))

	_, err := store.Create(ctx, adminPrincipal())
	require.NoError(t, err)
	clock.Advance(time.Hour)

	sweeper := NewSweeper(store, 5*time.Millisecond, nil)
	sweeper.Start(ctx)
	sweeper.Start(ctx) // second Start is a no-op

	require.Eventually(t, func() bool {
		n, _ := store.Len(ctx)
		return n == 0
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}

func TestSweeper_DefaultInterval(t *testing.T) {
	sweeper := NewSweeper(NewMemoryStore(), -1, nil)
	assert.Equal(t, DefaultSweepInterval, sweeper.interval)
}
