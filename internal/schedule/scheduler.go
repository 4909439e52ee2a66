// Package schedule enqueues periodic crawl jobs.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
	"github.com/daechan-jo/auto-store-services-onch/internal/queue"
)

// Scheduler submits the sold-out crawl on a fixed interval.
type Scheduler struct {
	queue    *queue.Queue
	interval time.Duration
	store    string
	logger   *zap.Logger
}

// New creates a Scheduler. A zero interval disables scheduling.
func New(q *queue.Queue, interval time.Duration, store string, logger *zap.Logger) *Scheduler {
	return &Scheduler{queue: q, interval: interval, store: store, logger: logger}
}

// Run blocks, enqueueing until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, err := s.queue.Enqueue(ctx, onch.PatternCrawlSoldout, onch.RequestPayload{Store: s.store})
			if err != nil {
				s.logger.Warn("scheduled sold-out crawl not enqueued", zap.Error(err))
				continue
			}
			s.logger.Info("scheduled sold-out crawl enqueued", zap.String("job_id", id))
		}
	}
}
