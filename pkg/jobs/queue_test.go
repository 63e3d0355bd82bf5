package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	done := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		done <- job
		return nil
	}, Options{Workers: 1, MaxRetries: 3, Backoff: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Kind: "notify"}))

	select {
	case job := <-done:
		require.Equal(t, 2, job.Attempt)
		require.NotEmpty(t, job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job not processed")
	}
	require.Eventually(t, func() bool { return q.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	q := NewQueue("test", func(context.Context, Job) error {
		calls.Add(1)
		return errors.New("permanent")
	}, Options{Workers: 1, MaxRetries: 1, Backoff: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Kind: "notify"}))
	require.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 2, calls.Load())
}

func TestQueueRejectsWhenStopped(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, Options{})
	require.ErrorIs(t, q.Enqueue(Job{}), ErrQueueClosed)

	q.Start(context.Background())
	q.Stop()
	require.ErrorIs(t, q.Enqueue(Job{}), ErrQueueClosed)
}

func TestQueueStopDrainsQueuedJobs(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	q := NewQueue("test", func(ctx context.Context, _ Job) error {
		<-release
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handled.Add(1)
		return nil
	}, Options{Workers: 1, Buffer: 4})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{Kind: "notify"}))
	}
	// Shutdown signals cancel the parent first; queued work must survive it.
	cancel()
	close(release)
	q.Stop()

	require.EqualValues(t, 3, handled.Load())
	require.Equal(t, Stats{Processed: 3}, q.Stats())
}

func TestQueueStopCancelsAfterDrainTimeout(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Workers: 1, Buffer: 4, DrainTimeout: 20 * time.Millisecond})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{Kind: "notify"}))
	require.NoError(t, q.Enqueue(Job{Kind: "notify"}))

	q.Stop()

	stats := q.Stats()
	require.EqualValues(t, 0, stats.Processed)
	require.EqualValues(t, 2, stats.Failed+stats.Dropped)
}

func TestQueueRestartsAfterStop(t *testing.T) {
	done := make(chan struct{}, 1)
	q := NewQueue("test", func(context.Context, Job) error {
		done <- struct{}{}
		return nil
	}, Options{})
	q.Start(context.Background())
	q.Stop()
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Kind: "notify"}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job not processed after restart")
	}
}
