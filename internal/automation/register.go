package automation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/metrics"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Bulk registration selectors and response matching data.
var registerSite = struct {
	Path        string
	RemainingJS string
	SelectAll   string
	PushButton  string
	Submit      string
	WatchURL    string
}{
	Path: "/dbcenter_renew/db_list.html?page=%d",
	RemainingJS: `(() => {
		return document.querySelectorAll('table.db_list tbody tr input[type="checkbox"]').length;
	})()`,
	SelectAll:  `input[name="check_all"]`,
	PushButton: `.btn_send_channel`,
	Submit:     `.btn_send_submit`,
	WatchURL:   "/dbcenter_renew/",
}

// rateLimitPhrases mark the site's daily registration cap in response bodies.
var rateLimitPhrases = []string{
	"일일 등록 가능 상품수를 초과",
	"하루 전송 가능 횟수를 초과",
}

// Fixed-format confirmation message fields.
var (
	registeredRe = regexp.MustCompile(`성공\s*[:：]?\s*(\d+)`)
	failedRe     = regexp.MustCompile(`실패\s*[:：]?\s*(\d+)`)
	duplicateRe  = regexp.MustCompile(`중복\s*[:：]?\s*(\d+)`)
	alreadyRe    = regexp.MustCompile(`기등록\s*[:：]?\s*(\d+)`)
)

// RegistrarConfig controls the bulk registration engine.
type RegistrarConfig struct {
	BaseURL       string
	RepeatCount   int
	MaxRetry      int
	RetryDelay    time.Duration
	DialogTimeout time.Duration
	NotifyTopic   string
}

// Registrar pushes catalog pages to the downstream sales channel. Each page
// attempt races the native confirmation dialog against a network-response
// watch for rate-limit phrases, under one bounded timeout.
type Registrar struct {
	cfg      RegistrarConfig
	notifier onch.Notifier
	logger   *zap.Logger
}

// NewRegistrar constructs a Registrar.
func NewRegistrar(cfg RegistrarConfig, notifier onch.Notifier, logger *zap.Logger) *Registrar {
	if cfg.RepeatCount <= 0 {
		cfg.RepeatCount = 10
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.DialogTimeout <= 0 {
		cfg.DialogTimeout = 30 * time.Second
	}
	return &Registrar{cfg: cfg, notifier: notifier, logger: logger}
}

type pageOutcome struct {
	remaining   int
	alert       string
	rateLimited bool
}

// Register runs up to RepeatCount page attempts. Once a rate-limit phrase is
// observed no further page is navigated; a page with zero remaining items
// ends the whole loop.
func (r *Registrar) Register(ctx context.Context, pg onch.Page, store string) (onch.RegistrationSummary, []onch.RegistrationPageResult) {
	summary := onch.RegistrationSummary{}
	var results []onch.RegistrationPageResult

	for pageNum := 1; pageNum <= r.cfg.RepeatCount; pageNum++ {
		outcome, err := r.registerPageWithRetry(ctx, pg, pageNum)
		if err != nil {
			results = append(results, onch.RegistrationPageResult{
				Page:         pageNum,
				ErrorMessage: err.Error(),
			})
			summary.Pages++
			metrics.RegistrationPage("failed")
			continue
		}
		if outcome.remaining == 0 {
			break
		}
		summary.Pages++

		if outcome.rateLimited {
			summary.DailyLimitReached = true
			results = append(results, onch.RegistrationPageResult{
				Page:         pageNum,
				ErrorMessage: "daily registration limit reached",
			})
			metrics.RegistrationPage("rate_limited")
			r.notifyDailyLimit(ctx, store, pageNum)
			break
		}

		results = append(results, onch.RegistrationPageResult{
			Page:         pageNum,
			Success:      true,
			AlertMessage: outcome.alert,
		})
		metrics.RegistrationPage("success")
		addCounts(&summary, outcome.alert)
	}
	return summary, results
}

// registerPageWithRetry retries a page attempt up to MaxRetry times with a
// fixed delay, then surfaces the last error.
func (r *Registrar) registerPageWithRetry(ctx context.Context, pg onch.Page, pageNum int) (pageOutcome, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetry; attempt++ {
		outcome, err := r.attemptPage(ctx, pg, pageNum)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		r.logger.Warn("registration page attempt failed",
			zap.Int("page", pageNum),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < r.cfg.MaxRetry {
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-ctx.Done():
				return pageOutcome{}, fmt.Errorf("registration canceled: %w", ctx.Err())
			}
		}
	}
	return pageOutcome{}, lastErr
}

func (r *Registrar) attemptPage(ctx context.Context, pg onch.Page, pageNum int) (pageOutcome, error) {
	url := r.cfg.BaseURL + fmt.Sprintf(registerSite.Path, pageNum)
	if err := pg.Navigate(ctx, url); err != nil {
		return pageOutcome{}, fmt.Errorf("open registration page %d: %w", pageNum, err)
	}

	var remaining int
	if err := pg.Evaluate(ctx, registerSite.RemainingJS, &remaining); err != nil {
		return pageOutcome{}, fmt.Errorf("count remaining items: %w", err)
	}
	if remaining == 0 {
		return pageOutcome{remaining: 0}, nil
	}

	if err := pg.Click(ctx, registerSite.SelectAll); err != nil {
		return pageOutcome{}, fmt.Errorf("select all: %w", err)
	}
	if err := pg.Click(ctx, registerSite.PushButton); err != nil {
		return pageOutcome{}, fmt.Errorf("trigger channel push: %w", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	responses := pg.WatchResponses(watchCtx, registerSite.WatchURL)
	confirmed := pg.AcceptNextDialog(watchCtx)

	if err := pg.Click(ctx, registerSite.Submit); err != nil {
		return pageOutcome{}, fmt.Errorf("submit registration: %w", err)
	}

	timeout := time.NewTimer(r.cfg.DialogTimeout)
	defer timeout.Stop()
	for {
		select {
		case msg := <-confirmed:
			return pageOutcome{remaining: remaining, alert: msg}, nil
		case body := <-responses:
			if isRateLimited(body) {
				return pageOutcome{remaining: remaining, rateLimited: true}, nil
			}
		case <-timeout.C:
			return pageOutcome{}, fmt.Errorf("no confirmation within %s", r.cfg.DialogTimeout)
		case <-ctx.Done():
			return pageOutcome{}, fmt.Errorf("registration canceled: %w", ctx.Err())
		}
	}
}

func (r *Registrar) notifyDailyLimit(ctx context.Context, store string, pageNum int) {
	if r.notifier == nil {
		return
	}
	err := r.notifier.Emit(ctx, r.cfg.NotifyTopic, "dailyLimitReached", map[string]any{
		"store": store,
		"page":  pageNum,
	})
	if err != nil {
		r.logger.Warn("daily-limit notification failed", zap.Error(err))
	}
}

func isRateLimited(body string) bool {
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

// addCounts parses the fixed-format confirmation text into summary counts.
func addCounts(summary *onch.RegistrationSummary, alert string) {
	summary.Registered += firstInt(registeredRe, alert)
	summary.Failed += firstInt(failedRe, alert)
	summary.Duplicates += firstInt(duplicateRe, alert)
	summary.AlreadyRegistered += firstInt(alreadyRe, alert)
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
