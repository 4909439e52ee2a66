package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/clock/system"
	"github.com/daechan-jo/auto-store-services-onch/internal/id/uuid"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
	"github.com/daechan-jo/auto-store-services-onch/internal/queue"
)

func TestScheduler_EnqueuesSoldoutCrawl(t *testing.T) {
	t.Parallel()

	q := queue.New(queue.Config{Name: "onch", Backoff: time.Millisecond}, system.New(), uuid.New(), zap.NewNop())
	crawled := make(chan onch.Job, 1)
	q.Register(onch.PatternCrawlSoldout, func(_ context.Context, job onch.Job) (any, error) {
		select {
		case crawled <- job:
		default:
		}
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	t.Cleanup(q.Stop)

	s := New(q, 10*time.Millisecond, "store-1", zap.NewNop())
	go s.Run(ctx)

	select {
	case job := <-crawled:
		require.Equal(t, "store-1", job.Payload.Store)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled crawl never ran")
	}
	cancel()
}

func TestScheduler_ZeroIntervalDisables(t *testing.T) {
	t.Parallel()

	q := queue.New(queue.Config{Name: "onch", Backoff: time.Millisecond}, system.New(), uuid.New(), zap.NewNop())
	s := New(q, 0, "store-1", zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately with a zero interval")
	}
}
