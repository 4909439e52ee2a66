// Package queue implements the named-job work queue with retry and retention.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/metrics"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Handler executes one task attempt and returns its result.
type Handler func(ctx context.Context, job onch.Job) (any, error)

// Config controls queue behavior.
type Config struct {
	Name           string
	Concurrency    int
	MaxAttempts    int
	Backoff        time.Duration
	RetentionCount int
	RetentionAge   time.Duration
	Depth          int
}

// Errors returned by queue operations.
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrUnknownTask  = errors.New("no handler registered for task")
	ErrQueueFull    = errors.New("queue is full")
	ErrNotRetryable = errors.New("only failed jobs can be retried")
	ErrQueueStopped = errors.New("queue is stopped")
)

type jobEntry struct {
	job     onch.Job
	done    chan struct{}
	removed bool
}

// Queue runs named jobs at bounded concurrency with fixed-backoff retries.
// Concurrency defaults to 1 so browser automation for one account never
// overlaps.
type Queue struct {
	cfg      Config
	logger   *zap.Logger
	clock    onch.Clock
	idGen    onch.IDGenerator
	handlers map[string]Handler

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	pending chan string
	stopped bool
	wg      sync.WaitGroup
}

// New constructs a Queue. Handlers are registered before Start.
func New(cfg Config, clock onch.Clock, idGen onch.IDGenerator, logger *zap.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 128
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = 200
	}
	if cfg.RetentionAge <= 0 {
		cfg.RetentionAge = 24 * time.Hour
	}
	return &Queue{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		idGen:    idGen,
		handlers: make(map[string]Handler),
		jobs:     make(map[string]*jobEntry),
		pending:  make(chan string, cfg.Depth),
	}
}

// Register binds a handler to a task name.
func (q *Queue) Register(task string, h Handler) {
	q.handlers[task] = h
}

// Start launches the worker slots and blocks them on ctx.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.runSlot(ctx)
		}()
	}
}

// Stop marks the queue stopped and waits for active jobs to finish. The
// caller cancels the Start context first.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue submits a task and returns the job id. If the payload carries a
// job id it is used for correlation, otherwise one is generated.
func (q *Queue) Enqueue(ctx context.Context, task string, payload onch.RequestPayload) (string, error) {
	if _, ok := q.handlers[task]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	id := payload.JobID
	if id == "" {
		generated, err := q.idGen.NewID()
		if err != nil {
			return "", fmt.Errorf("generate job id: %w", err)
		}
		id = generated
		payload.JobID = id
	}

	job := onch.Job{
		ID:          id,
		Queue:       q.cfg.Name,
		Task:        task,
		Payload:     payload,
		State:       onch.JobStateWaiting,
		MaxAttempts: q.cfg.MaxAttempts,
		Backoff:     q.cfg.Backoff,
		CreatedAt:   q.clock.Now(),
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueStopped
	}
	if _, exists := q.jobs[id]; exists {
		q.mu.Unlock()
		return "", fmt.Errorf("job %s already exists", id)
	}
	q.jobs[id] = &jobEntry{job: job, done: make(chan struct{})}
	q.mu.Unlock()

	select {
	case q.pending <- id:
	case <-ctx.Done():
		q.discard(id)
		return "", fmt.Errorf("enqueue canceled: %w", ctx.Err())
	default:
		q.discard(id)
		return "", ErrQueueFull
	}

	q.logger.Info("job enqueued",
		zap.String("queue", q.cfg.Name),
		zap.String("job_id", id),
		zap.String("task", task),
	)
	return id, nil
}

func (q *Queue) discard(id string) {
	q.mu.Lock()
	delete(q.jobs, id)
	q.mu.Unlock()
}

func (q *Queue) runSlot(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.pending:
			q.execute(ctx, id)
		}
	}
}

func (q *Queue) execute(ctx context.Context, id string) {
	q.mu.Lock()
	entry, ok := q.jobs[id]
	if !ok || entry.removed || entry.job.State.Terminal() {
		q.mu.Unlock()
		return
	}
	entry.job.State = onch.JobStateActive
	entry.job.AttemptsMade++
	now := q.clock.Now()
	if entry.job.StartedAt == nil {
		entry.job.StartedAt = &now
	}
	job := entry.job
	handler := q.handlers[job.Task]
	q.mu.Unlock()

	metrics.JobStarted()
	result, err := q.runHandler(ctx, handler, job)
	metrics.JobDone()

	if err == nil {
		q.complete(id, result)
		return
	}
	q.fail(ctx, id, err)
}

func (q *Queue) runHandler(ctx context.Context, h Handler, job onch.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) complete(id string, result any) {
	var raw json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			q.fail(context.Background(), id, fmt.Errorf("marshal result: %w", err))
			return
		}
		raw = data
	}

	q.mu.Lock()
	entry, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	now := q.clock.Now()
	entry.job.State = onch.JobStateCompleted
	entry.job.Result = raw
	entry.job.FinishedAt = &now
	task := entry.job.Task
	removed := entry.removed
	close(entry.done)
	if removed {
		delete(q.jobs, id)
	}
	q.pruneLocked(now)
	q.mu.Unlock()

	metrics.JobFinished(task, "completed")
	q.logger.Info("job completed", zap.String("queue", q.cfg.Name), zap.String("job_id", id), zap.String("task", task))
}

func (q *Queue) fail(ctx context.Context, id string, cause error) {
	q.mu.Lock()
	entry, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	entry.job.ErrorText = cause.Error()
	task := entry.job.Task

	if !entry.removed && entry.job.AttemptsMade < entry.job.MaxAttempts {
		entry.job.State = onch.JobStateDelayed
		backoff := entry.job.Backoff
		q.mu.Unlock()

		metrics.JobRetried()
		q.logger.Warn("job attempt failed, rescheduling",
			zap.String("queue", q.cfg.Name),
			zap.String("job_id", id),
			zap.String("task", task),
			zap.Duration("backoff", backoff),
			zap.Error(cause),
		)
		time.AfterFunc(backoff, func() {
			q.requeue(ctx, id)
		})
		return
	}

	now := q.clock.Now()
	entry.job.State = onch.JobStateFailed
	entry.job.FinishedAt = &now
	removed := entry.removed
	close(entry.done)
	if removed {
		delete(q.jobs, id)
	}
	q.pruneLocked(now)
	q.mu.Unlock()

	metrics.JobFinished(task, "failed")
	q.logger.Error("job failed",
		zap.String("queue", q.cfg.Name),
		zap.String("job_id", id),
		zap.String("task", task),
		zap.Error(cause),
	)
}

func (q *Queue) requeue(ctx context.Context, id string) {
	q.mu.Lock()
	entry, ok := q.jobs[id]
	if !ok || entry.removed || q.stopped {
		if ok && entry.removed {
			delete(q.jobs, id)
		}
		q.mu.Unlock()
		return
	}
	entry.job.State = onch.JobStateWaiting
	q.mu.Unlock()

	select {
	case q.pending <- id:
	case <-ctx.Done():
	}
}

// Await blocks until the job reaches a terminal state or ctx ends.
func (q *Queue) Await(ctx context.Context, id string) (onch.Job, error) {
	q.mu.Lock()
	entry, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return onch.Job{}, ErrJobNotFound
	}
	select {
	case <-entry.done:
	case <-ctx.Done():
		return onch.Job{}, fmt.Errorf("await canceled: %w", ctx.Err())
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.jobs[id]
	if !ok {
		return onch.Job{}, ErrJobNotFound
	}
	return current.job, nil
}

// Job returns a snapshot of one job.
func (q *Queue) Job(id string) (onch.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.jobs[id]
	if !ok {
		return onch.Job{}, false
	}
	return entry.job, true
}

// Counts returns the number of jobs per state.
func (q *Queue) Counts() map[onch.JobState]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := map[onch.JobState]int{
		onch.JobStateWaiting:   0,
		onch.JobStateActive:    0,
		onch.JobStateDelayed:   0,
		onch.JobStateCompleted: 0,
		onch.JobStateFailed:    0,
	}
	for _, entry := range q.jobs {
		counts[entry.job.State]++
	}
	return counts
}

// ListByState returns up to limit jobs in the given state, newest first.
func (q *Queue) ListByState(state onch.JobState, limit int) []onch.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []onch.Job
	for _, entry := range q.jobs {
		if entry.job.State == state {
			out = append(out, entry.job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Remove deletes a job. A waiting or delayed job is dropped outright; an
// active job is marked discarded so its result is thrown away when the
// in-flight attempt finishes.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.jobs[id]
	if !ok {
		return false
	}
	if entry.job.State == onch.JobStateActive {
		entry.removed = true
		return true
	}
	if !entry.job.State.Terminal() {
		close(entry.done)
	}
	delete(q.jobs, id)
	return true
}

// Retry moves a failed job back to waiting with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	entry, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrJobNotFound
	}
	if entry.job.State != onch.JobStateFailed {
		q.mu.Unlock()
		return ErrNotRetryable
	}
	entry.job.State = onch.JobStateWaiting
	entry.job.AttemptsMade = 0
	entry.job.ErrorText = ""
	entry.job.FinishedAt = nil
	entry.done = make(chan struct{})
	q.mu.Unlock()

	select {
	case q.pending <- id:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry canceled: %w", ctx.Err())
	default:
		return ErrQueueFull
	}
}

// pruneLocked drops terminal jobs beyond the retention count or older than
// the retention age. Callers hold q.mu.
func (q *Queue) pruneLocked(now time.Time) {
	var terminal []*jobEntry
	for _, entry := range q.jobs {
		if entry.job.State.Terminal() {
			terminal = append(terminal, entry)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].finishedAt().Before(terminal[j].finishedAt())
	})
	excess := len(terminal) - q.cfg.RetentionCount
	for i, entry := range terminal {
		tooOld := now.Sub(entry.finishedAt()) > q.cfg.RetentionAge
		if i < excess || tooOld {
			delete(q.jobs, entry.job.ID)
		}
	}
}

func (e *jobEntry) finishedAt() time.Time {
	if e.job.FinishedAt != nil {
		return *e.job.FinishedAt
	}
	return e.job.CreatedAt
}
