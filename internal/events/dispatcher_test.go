package events_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/events"
	"github.com/oggyb/muzz-social/internal/logger"
)

func newDispatcher(t *testing.T, retries int) *events.Dispatcher {
	t.Helper()
	d := events.NewDispatcher(4, retries, time.Millisecond, logger.Discard())
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcher_PerKeyOrdering(t *testing.T) {
	d := newDispatcher(t, 0)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		d.Enqueue("user-1", "order", func(ctx context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, d.Flush(context.Background()))

	require.Len(t, got, 50)
	for i := range got {
		assert.Equal(t, i, got[i])
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	d := newDispatcher(t, 3)

	var calls int32
	d.Enqueue("k", "flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	d := newDispatcher(t, 2)

	var calls int32
	d.Enqueue("k", "broken", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	})
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatcher_FlushWaitsForChildJobs(t *testing.T) {
	d := newDispatcher(t, 0)

	var child atomic.Bool
	d.Enqueue("parent", "parent", func(ctx context.Context) error {
		d.Enqueue("child", "child", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			child.Store(true)
			return nil
		})
		return nil
	})
	require.NoError(t, d.Flush(context.Background()))
	assert.True(t, child.Load())
}

func TestDispatcher_FlushHonoursContext(t *testing.T) {
	d := newDispatcher(t, 0)

	release := make(chan struct{})
	d.Enqueue("k", "slow", func(ctx context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Flush(ctx), context.DeadlineExceeded)
	close(release)
}

func TestDispatcher_StopWithoutStartRunsQueuedJobs(t *testing.T) {
	d := events.NewDispatcher(2, 0, time.Millisecond, logger.Discard())

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		d.Enqueue("k", "queued", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	d.Stop()
	assert.Equal(t, int32(10), ran.Load())

	// late jobs are dropped, not sent on a dead queue
	d.Enqueue("k", "late", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	d.Stop()
}
