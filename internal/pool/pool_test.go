package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitAll(t *testing.T, futures ...*Future) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range futures {
		_ = f.Wait(ctx)
		require.True(t, f.Done())
	}
}

func TestSubPool_RunsTasksAndReturnsValues(t *testing.T) {
	p := New(4)
	sub := p.NewSubPool(context.Background(), 3, strategy.New(strategy.Linked))
	node := flow.NewNode("n")

	f1, err := sub.SubmitAsync(node, func() (any, error) { return 42, nil })
	require.NoError(t, err)
	f2, err := sub.SubmitAsync(node, func() (any, error) { return nil, errors.New("boom") })
	require.NoError(t, err)

	waitAll(t, f1, f2)
	assert.Equal(t, 42, f1.Value())
	assert.NoError(t, f1.Err())
	assert.EqualError(t, f2.Err(), "boom")
	assert.Same(t, node, f1.Node())
	assert.Less(t, f1.Seq(), f2.Seq())
}

func TestSubPool_RecoversPanics(t *testing.T) {
	sub := New(1).NewSubPool(context.Background(), 2, nil)
	f, err := sub.SubmitAsync(nil, func() (any, error) { panic("kaboom") })
	require.NoError(t, err)

	waitAll(t, f)
	assert.ErrorContains(t, f.Err(), "kaboom")
}

func TestSubPool_SubmitDoesNotBlock(t *testing.T) {
	sub := New(1).NewSubPool(context.Background(), 2, nil)
	release := make(chan struct{})

	start := time.Now()
	var futures []*Future
	for i := 0; i < 50; i++ {
		f, err := sub.SubmitAsync(nil, func() (any, error) {
			<-release
			return nil, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	waitAll(t, futures...)
}

func TestSubPool_RespectsLimits(t *testing.T) {
	testCases := []struct {
		name      string
		total     int
		subSize   int
		wantLimit int64
	}{
		{name: "sub-pool bound", total: 10, subSize: 3, wantLimit: 2},
		{name: "global bound", total: 2, subSize: 8, wantLimit: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sub := New(tc.total).NewSubPool(context.Background(), tc.subSize, nil)
			var current, peak atomic.Int64

			var futures []*Future
			for i := 0; i < 30; i++ {
				f, err := sub.SubmitAsync(nil, func() (any, error) {
					n := current.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					current.Add(-1)
					return nil, nil
				})
				require.NoError(t, err)
				futures = append(futures, f)
			}
			waitAll(t, futures...)
			assert.LessOrEqual(t, peak.Load(), tc.wantLimit)
			assert.Positive(t, peak.Load())
		})
	}
}

func TestSubPools_ShareGlobalBudget(t *testing.T) {
	p := New(3)
	var current, peak atomic.Int64
	var mu sync.Mutex
	var futures []*Future

	for r := 0; r < 4; r++ {
		sub := p.NewSubPool(context.Background(), 5, nil)
		for i := 0; i < 10; i++ {
			f, err := sub.SubmitAsync(nil, func() (any, error) {
				n := current.Add(1)
				mu.Lock()
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				current.Add(-1)
				return nil, nil
			})
			require.NoError(t, err)
			futures = append(futures, f)
		}
	}
	waitAll(t, futures...)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestSubPool_CloseAndAwait(t *testing.T) {
	sub := New(2).NewSubPool(context.Background(), 3, nil)
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := sub.SubmitAsync(nil, func() (any, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
	}
	sub.Close()

	_, err := sub.SubmitAsync(nil, func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = sub.Coordinate(func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sub.AwaitTermination(ctx))
	assert.Equal(t, int32(5), ran.Load(), "queued tasks still run after close")
}

func TestSubPool_CancelledContextSettlesQueuedTasks(t *testing.T) {
	p := New(1)
	blocker := p.NewSubPool(context.Background(), 2, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	held, err := blocker.SubmitAsync(nil, func() (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	sub := p.NewSubPool(ctx, 2, nil)
	f, err := sub.SubmitAsync(nil, func() (any, error) { return "never", nil })
	require.NoError(t, err)
	cancel()

	waitAll(t, f)
	assert.ErrorIs(t, f.Err(), context.Canceled)
	assert.Nil(t, f.Value())

	close(release)
	waitAll(t, held)
}

func TestCoordinateAndCompleted(t *testing.T) {
	sub := New(1).NewSubPool(context.Background(), 2, nil)
	var ran atomic.Bool
	f, err := sub.Coordinate(func() { ran.Store(true) })
	require.NoError(t, err)
	waitAll(t, f)
	assert.True(t, ran.Load())

	_, err = sub.Coordinate(func() {})
	assert.Error(t, err, "only one coordinator per sub-pool")

	node := flow.NewNode("sync")
	c := sub.Completed(node, "v")
	assert.True(t, c.Done())
	assert.Equal(t, "v", c.Value())
	assert.Same(t, node, c.Node())
}

func TestFuture_NotDone(t *testing.T) {
	f := newFuture(nil, 1)
	assert.False(t, f.Done())
	assert.Nil(t, f.Value())
	assert.NoError(t, f.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	f.settle(1, nil)
	f.settle(2, nil)
	assert.Equal(t, 1, f.Value(), "first settle wins")
}
