package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "noop"}))
	select {
	case id := <-done:
		require.Equal(t, "job-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}
}

func TestQueueReportsExhaustedJobs(t *testing.T) {
	var attempts atomic.Int32
	handlerErr := errors.New("permanent failure")
	type exhaustion struct {
		job Job
		err error
	}
	exhausted := make(chan exhaustion, 1)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return handlerErr
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnExhausted: func(job Job, err error) {
			exhausted <- exhaustion{job: job, err: err}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "doomed"}))
	select {
	case got := <-exhausted:
		require.Equal(t, "job-1", got.job.ID)
		require.ErrorIs(t, got.err, handlerErr)
		// Initial run plus both retries.
		require.Equal(t, int32(3), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("exhaustion callback never fired")
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "job-1"}))
}
