// Package dispatcher routes inbound request patterns to direct handlers or
// queue submissions.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
	"github.com/daechan-jo/auto-store-services-onch/internal/queue"
)

// ErrUnrecognizedPattern marks requests with no mapped handler. It is
// reported through the response envelope, never thrown across the bus.
var ErrUnrecognizedPattern = errors.New("unrecognized pattern")

// taskLabels give each pattern a human-readable name for dispatch logs.
var taskLabels = map[string]string{
	onch.PatternClearCatalog:      "clear catalog",
	onch.PatternDeleteProducts:    "delete sold-out products",
	onch.PatternCrawlSoldout:      "crawl sold-out board",
	onch.PatternCrawlRegistered:   "crawl registered catalog",
	onch.PatternPlaceOrders:       "place orders",
	onch.PatternExtractDeliveries: "extract deliveries",
	onch.PatternRegisterProducts:  "bulk register products",
	onch.PatternQueueStatus:       "queue status counts",
	onch.PatternQueueJobs:         "list queue jobs",
	onch.PatternRemoveJob:         "remove queue job",
	onch.PatternRetryJob:          "retry queue job",
}

// queuedPatterns fire long-running work through the queue.
var queuedPatterns = map[string]struct{}{
	onch.PatternDeleteProducts:    {},
	onch.PatternCrawlSoldout:      {},
	onch.PatternCrawlRegistered:   {},
	onch.PatternPlaceOrders:       {},
	onch.PatternExtractDeliveries: {},
	onch.PatternRegisterProducts:  {},
}

// Dispatcher maps (pattern, payload) onto queue submissions or direct calls.
type Dispatcher struct {
	queue    *queue.Queue
	products onch.ProductStore
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(q *queue.Queue, products onch.ProductStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{queue: q, products: products, logger: logger}
}

// Dispatch handles one request and always returns a response envelope.
// Internal errors never propagate as panics across the bus boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, req onch.Request) onch.Response {
	label, known := taskLabels[req.Pattern]
	if !known {
		label = "unknown"
	}
	d.logger.Info("dispatch",
		zap.String("pattern", req.Pattern),
		zap.String("task", label),
		zap.String("job_id", req.Payload.JobID),
		zap.String("store", req.Payload.Store),
	)

	if _, queued := queuedPatterns[req.Pattern]; queued {
		return d.dispatchQueued(ctx, req)
	}

	switch req.Pattern {
	case onch.PatternClearCatalog:
		return d.clearCatalog(ctx)
	case onch.PatternQueueStatus:
		return success(d.queue.Counts())
	case onch.PatternQueueJobs:
		return d.listJobs(req)
	case onch.PatternRemoveJob:
		return d.removeJob(req)
	case onch.PatternRetryJob:
		return d.retryJob(ctx, req)
	default:
		return failure(fmt.Errorf("%w: %s", ErrUnrecognizedPattern, req.Pattern))
	}
}

func (d *Dispatcher) dispatchQueued(ctx context.Context, req onch.Request) onch.Response {
	id, err := d.queue.Enqueue(ctx, req.Pattern, req.Payload)
	if err != nil {
		return failure(fmt.Errorf("enqueue %s: %w", req.Pattern, err))
	}
	job, err := d.queue.Await(ctx, id)
	if err != nil {
		return failure(fmt.Errorf("await job %s: %w", id, err))
	}
	if job.State != onch.JobStateCompleted {
		return onch.Response{
			Status:  onch.StatusError,
			Message: job.ErrorText,
		}
	}
	return onch.Response{
		Status: onch.StatusSuccess,
		Data:   json.RawMessage(job.Result),
	}
}

func (d *Dispatcher) clearCatalog(ctx context.Context) onch.Response {
	if err := d.products.ClearAll(ctx); err != nil {
		return failure(fmt.Errorf("clear catalog: %w", err))
	}
	return success(map[string]string{"cleared": "ok"})
}

type listJobsPayload struct {
	State string `json:"state"`
	Limit int    `json:"limit"`
}

func (d *Dispatcher) listJobs(req onch.Request) onch.Response {
	var payload listJobsPayload
	if len(req.Payload.Data) > 0 {
		if err := json.Unmarshal(req.Payload.Data, &payload); err != nil {
			return failure(fmt.Errorf("decode list payload: %w", err))
		}
	}
	state := onch.JobState(payload.State)
	if state == "" {
		state = onch.JobStateWaiting
	}
	return success(d.queue.ListByState(state, payload.Limit))
}

func (d *Dispatcher) removeJob(req onch.Request) onch.Response {
	if req.Payload.JobID == "" {
		return failure(fmt.Errorf("jobId is required"))
	}
	if !d.queue.Remove(req.Payload.JobID) {
		return failure(fmt.Errorf("remove job %s: %w", req.Payload.JobID, queue.ErrJobNotFound))
	}
	return success(map[string]string{"removed": req.Payload.JobID})
}

func (d *Dispatcher) retryJob(ctx context.Context, req onch.Request) onch.Response {
	if req.Payload.JobID == "" {
		return failure(fmt.Errorf("jobId is required"))
	}
	if err := d.queue.Retry(ctx, req.Payload.JobID); err != nil {
		return failure(fmt.Errorf("retry job %s: %w", req.Payload.JobID, err))
	}
	return success(map[string]string{"retried": req.Payload.JobID})
}

func success(data any) onch.Response {
	return onch.Response{Status: onch.StatusSuccess, Data: data}
}

func failure(err error) onch.Response {
	return onch.Response{Status: onch.StatusError, Message: err.Error()}
}
