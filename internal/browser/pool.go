// Package browser owns chromedp browser sessions and pages used to drive the
// supplier admin site.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Config controls the browser pool.
type Config struct {
	BaseURL    string
	LoginID    string
	Password   string
	Headless   bool
	UserAgent  string
	NavTimeout time.Duration
	LoginWait  time.Duration
}

// Login form selectors. Kept as data so site changes stay out of the flow.
var loginSelectors = struct {
	ID       string
	Password string
	Submit   string
	LoggedIn string
}{
	ID:       `input[name="id"]`,
	Password: `input[name="passwd"]`,
	Submit:   `form[name="login_f"] .login_btn`,
	LoggedIn: `a[href*="logout"]`,
}

// Pool creates, reuses, and releases authenticated sessions keyed by
// (store, jobID). Concurrent jobs for the same store never share a session.
type Pool struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPool builds the exec allocator shared by all sessions.
func NewPool(cfg Config, logger *zap.Logger) *Pool {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.LoginWait <= 0 {
		cfg.LoginWait = 15 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Pool{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}
}

func sessionKey(store, jobID string) string {
	return store + "|" + jobID
}

// Acquire returns the session for (store, jobID), logging in on first use.
// Login failure is fatal for the whole job.
func (p *Pool) Acquire(ctx context.Context, store, jobID string) (onch.Session, error) {
	key := sessionKey(store, jobID)

	p.mu.Lock()
	if s, ok := p.sessions[key]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	browserCtx, browserCancel := chromedp.NewContext(p.allocator)
	primary := newPage(browserCtx, browserCancel, p.cfg.NavTimeout)

	s := &Session{
		store:   store,
		jobID:   jobID,
		ctx:     browserCtx,
		cancel:  browserCancel,
		primary: primary,
		timeout: p.cfg.NavTimeout,
	}

	if err := p.login(ctx, primary); err != nil {
		s.release()
		return nil, fmt.Errorf("login for store %s: %w", store, err)
	}

	p.mu.Lock()
	p.sessions[key] = s
	p.mu.Unlock()

	p.logger.Info("browser session created",
		zap.String("store", store),
		zap.String("job_id", jobID),
	)
	return s, nil
}

// Release tears down the session for (store, jobID), closing all its pages.
func (p *Pool) Release(store, jobID string) {
	key := sessionKey(store, jobID)

	p.mu.Lock()
	s, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if !ok {
		return
	}
	s.release()
	p.logger.Info("browser session released",
		zap.String("store", store),
		zap.String("job_id", jobID),
	)
}

// Close releases every live session and the allocator.
func (p *Pool) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.release()
	}
	p.allocCancel()
}

func (p *Pool) login(ctx context.Context, pg *Page) error {
	if err := pg.Navigate(ctx, p.cfg.BaseURL+"/login/login_check.php"); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := pg.SetValue(ctx, loginSelectors.ID, p.cfg.LoginID); err != nil {
		return fmt.Errorf("fill login id: %w", err)
	}
	if err := pg.SetValue(ctx, loginSelectors.Password, p.cfg.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := pg.Click(ctx, loginSelectors.Submit); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := pg.WaitVisible(ctx, loginSelectors.LoggedIn, p.cfg.LoginWait); err != nil {
		return fmt.Errorf("wait for logged-in marker: %w", err)
	}
	return nil
}

// Session is one authenticated browser context and its tabs.
type Session struct {
	store   string
	jobID   string
	ctx     context.Context
	cancel  context.CancelFunc
	primary *Page
	timeout time.Duration

	mu       sync.Mutex
	siblings []*Page
}

// Store returns the owning store key.
func (s *Session) Store() string { return s.store }

// JobID returns the owning job id.
func (s *Session) JobID() string { return s.jobID }

// Page returns the session's primary tab.
func (s *Session) Page() onch.Page { return s.primary }

// ParallelPages opens n sibling tabs sharing this logged-in context.
func (s *Session) ParallelPages(ctx context.Context, n int) ([]onch.Page, error) {
	if n <= 0 {
		return nil, fmt.Errorf("parallel page count must be > 0")
	}
	pages := make([]onch.Page, 0, n)
	for i := 0; i < n; i++ {
		tabCtx, tabCancel := chromedp.NewContext(s.ctx)
		// Force tab creation now so login cookies are live before fan-out.
		if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
			tabCancel()
			for _, pg := range pages {
				_ = pg.Close()
			}
			return nil, fmt.Errorf("open sibling tab %d: %w", i, err)
		}
		pg := newPage(tabCtx, tabCancel, s.timeout)
		s.mu.Lock()
		s.siblings = append(s.siblings, pg)
		s.mu.Unlock()
		pages = append(pages, pg)
	}
	return pages, nil
}

func (s *Session) release() {
	s.mu.Lock()
	siblings := s.siblings
	s.siblings = nil
	s.mu.Unlock()
	for _, pg := range siblings {
		_ = pg.Close()
	}
	_ = s.primary.Close()
	s.cancel()
}
