package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/clock/system"
	"github.com/daechan-jo/auto-store-services-onch/internal/id/uuid"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

func newTestQueue(t *testing.T, cfg Config) (*Queue, context.Context, context.CancelFunc) {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "onch"
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Millisecond
	}
	q := New(cfg, system.New(), uuid.New(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		q.Stop()
	})
	return q, ctx, cancel
}

func TestEnqueue_UnknownTask(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t, Config{})
	_, err := q.Enqueue(context.Background(), "noSuchTask", onch.RequestPayload{})
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestEnqueue_GeneratesJobIDWhenMissing(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t, Config{})
	q.Register("noop", func(context.Context, onch.Job) (any, error) { return nil, nil })

	id, err := q.Enqueue(context.Background(), "noop", onch.RequestPayload{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, ok := q.Job(id)
	require.True(t, ok)
	require.Equal(t, id, job.Payload.JobID)
	require.Equal(t, onch.JobStateWaiting, job.State)
}

func TestEnqueue_RejectsDuplicateID(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t, Config{})
	q.Register("noop", func(context.Context, onch.Job) (any, error) { return nil, nil })

	_, err := q.Enqueue(context.Background(), "noop", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), "noop", onch.RequestPayload{JobID: "j1"})
	require.Error(t, err)
}

func TestQueue_CompletesJobWithResult(t *testing.T) {
	t.Parallel()

	q, ctx, _ := newTestQueue(t, Config{})
	q.Register("sum", func(_ context.Context, job onch.Job) (any, error) {
		return map[string]any{"store": job.Payload.Store}, nil
	})
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "sum", onch.RequestPayload{JobID: "j1", Store: "s1"})
	require.NoError(t, err)

	job, err := q.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, onch.JobStateCompleted, job.State)
	require.JSONEq(t, `{"store": "s1"}`, string(job.Result))
	require.Equal(t, 1, job.AttemptsMade)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	q, ctx, _ := newTestQueue(t, Config{MaxAttempts: 3})
	q.Register("flaky", func(context.Context, onch.Job) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "flaky", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)

	job, err := q.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, onch.JobStateCompleted, job.State)
	require.Equal(t, 3, job.AttemptsMade)
	require.EqualValues(t, 3, attempts.Load())
}

func TestQueue_FailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	q, ctx, _ := newTestQueue(t, Config{MaxAttempts: 2})
	q.Register("broken", func(context.Context, onch.Job) (any, error) {
		attempts.Add(1)
		return nil, errors.New("permanent")
	})
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "broken", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)

	job, err := q.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, onch.JobStateFailed, job.State)
	require.Equal(t, "permanent", job.ErrorText)
	require.EqualValues(t, 2, attempts.Load())
}

func TestQueue_HandlerPanicFailsJob(t *testing.T) {
	t.Parallel()

	q, ctx, _ := newTestQueue(t, Config{MaxAttempts: 1})
	q.Register("panicky", func(context.Context, onch.Job) (any, error) {
		panic("boom")
	})
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "panicky", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)

	job, err := q.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, onch.JobStateFailed, job.State)
	require.Contains(t, job.ErrorText, "handler panic")
}

func TestQueue_CountsAndListByState(t *testing.T) {
	t.Parallel()

	q, ctx, _ := newTestQueue(t, Config{MaxAttempts: 1})
	q.Register("ok", func(context.Context, onch.Job) (any, error) { return nil, nil })
	q.Register("bad", func(context.Context, onch.Job) (any, error) { return nil, errors.New("nope") })
	q.Start(ctx)

	okID, err := q.Enqueue(context.Background(), "ok", onch.RequestPayload{JobID: "j-ok"})
	require.NoError(t, err)
	_, err = q.Await(context.Background(), okID)
	require.NoError(t, err)

	badID, err := q.Enqueue(context.Background(), "bad", onch.RequestPayload{JobID: "j-bad"})
	require.NoError(t, err)
	_, err = q.Await(context.Background(), badID)
	require.NoError(t, err)

	counts := q.Counts()
	require.Equal(t, 1, counts[onch.JobStateCompleted])
	require.Equal(t, 1, counts[onch.JobStateFailed])
	require.Zero(t, counts[onch.JobStateWaiting])

	failed := q.ListByState(onch.JobStateFailed, 0)
	require.Len(t, failed, 1)
	require.Equal(t, "j-bad", failed[0].ID)
}

func TestQueue_RemoveWaitingJob(t *testing.T) {
	t.Parallel()

	// Not started, so the job stays waiting.
	q, _, _ := newTestQueue(t, Config{})
	q.Register("noop", func(context.Context, onch.Job) (any, error) { return nil, nil })

	id, err := q.Enqueue(context.Background(), "noop", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)

	require.True(t, q.Remove(id))
	_, ok := q.Job(id)
	require.False(t, ok)
	require.False(t, q.Remove(id))
}

func TestQueue_RemoveActiveJobDiscardsResult(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	q, ctx, _ := newTestQueue(t, Config{})
	q.Register("slow", func(context.Context, onch.Job) (any, error) {
		close(started)
		<-release
		return "result", nil
	})
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "slow", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)
	<-started

	require.True(t, q.Remove(id))
	close(release)

	_, err = q.Await(context.Background(), id)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_RetryResetsAttempts(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	q, ctx, _ := newTestQueue(t, Config{MaxAttempts: 1})
	q.Register("flaky", func(context.Context, onch.Job) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("first run fails")
		}
		return "ok", nil
	})
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "flaky", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)
	job, err := q.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, onch.JobStateFailed, job.State)

	require.NoError(t, q.Retry(context.Background(), id))
	job, err = q.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, onch.JobStateCompleted, job.State)
	require.Equal(t, 1, job.AttemptsMade)
	require.Empty(t, job.ErrorText)
}

func TestQueue_RetryRejectsNonFailedJobs(t *testing.T) {
	t.Parallel()

	q, ctx, _ := newTestQueue(t, Config{})
	q.Register("ok", func(context.Context, onch.Job) (any, error) { return nil, nil })
	q.Start(ctx)

	id, err := q.Enqueue(context.Background(), "ok", onch.RequestPayload{JobID: "j1"})
	require.NoError(t, err)
	_, err = q.Await(context.Background(), id)
	require.NoError(t, err)

	require.ErrorIs(t, q.Retry(context.Background(), id), ErrNotRetryable)
	require.ErrorIs(t, q.Retry(context.Background(), "missing"), ErrJobNotFound)
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	t.Parallel()

	q, _, cancel := newTestQueue(t, Config{})
	q.Register("noop", func(context.Context, onch.Job) (any, error) { return nil, nil })
	cancel()
	q.Stop()

	_, err := q.Enqueue(context.Background(), "noop", onch.RequestPayload{JobID: "j1"})
	require.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueue_RetentionPrunesOldTerminalJobs(t *testing.T) {
	t.Parallel()

	q, ctx, _ := newTestQueue(t, Config{RetentionCount: 2})
	q.Register("noop", func(context.Context, onch.Job) (any, error) { return nil, nil })
	q.Start(ctx)

	ids := []string{"j1", "j2", "j3", "j4"}
	for _, id := range ids {
		jid, err := q.Enqueue(context.Background(), "noop", onch.RequestPayload{JobID: id})
		require.NoError(t, err)
		_, err = q.Await(context.Background(), jid)
		require.NoError(t, err)
	}

	counts := q.Counts()
	require.Equal(t, 2, counts[onch.JobStateCompleted])
	_, ok := q.Job("j4")
	require.True(t, ok)
	_, ok = q.Job("j1")
	require.False(t, ok)
}
