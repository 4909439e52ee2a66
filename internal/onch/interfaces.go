package onch

import (
	"context"
	"time"
)

// ProductStore persists extracted catalog rows and crawl bookkeeping.
type ProductStore interface {
	SaveRecords(ctx context.Context, batch []ProductRecord) error
	ClearAll(ctx context.Context) error
	GetByCode(ctx context.Context, code string) (ProductRecord, error)
	LastRun(ctx context.Context, task string) (time.Time, error)
	SetLastRun(ctx context.Context, task string, at time.Time) error
}

// Notifier pushes fire-and-forget events to the notification sink. Errors are
// logged by callers, never treated as job failures.
type Notifier interface {
	Emit(ctx context.Context, topic string, event string, payload any) error
}

// Page is a handle to one browser tab inside an authenticated session.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector string, value string) error
	Text(ctx context.Context, selector string) (string, error)
	Evaluate(ctx context.Context, expr string, out any) error
	Exists(ctx context.Context, selector string) (bool, error)
	// AcceptNextDialog arms a one-shot acceptor for the next JavaScript
	// dialog. The channel delivers the dialog message exactly once.
	AcceptNextDialog(ctx context.Context) <-chan string
	// WatchResponses streams bodies of network responses whose URL contains
	// urlSubstr, until ctx is done.
	WatchResponses(ctx context.Context, urlSubstr string) <-chan string
	Close() error
}

// Session is an authenticated browser context owned by exactly one job.
type Session interface {
	Store() string
	JobID() string
	// Page returns the session's primary tab.
	Page() Page
	// ParallelPages opens n sibling tabs sharing the logged-in context.
	// All siblings must be closed before the session is released.
	ParallelPages(ctx context.Context, n int) ([]Page, error)
}

// SessionPool creates, reuses, and releases browser sessions keyed by
// (store, jobID). Release must run on every exit path or the session leaks.
type SessionPool interface {
	Acquire(ctx context.Context, store string, jobID string) (Session, error)
	Release(store string, jobID string)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
