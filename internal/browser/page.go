package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Page wraps one chromedp tab context behind the onch.Page interface.
type Page struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration

	closeOnce sync.Once
}

func newPage(ctx context.Context, cancel context.CancelFunc, navTimeout time.Duration) *Page {
	return &Page{
		ctx:        ctx,
		cancel:     cancel,
		navTimeout: navTimeout,
	}
}

func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("browser action canceled: %w", ctx.Err())
	}
}

// Navigate loads url and waits for the document body.
func (p *Page) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, p.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until selector is visible or timeout elapses.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

// Click clicks the first visible node matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// SetValue writes value into the form element matching selector.
func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	if err := p.run(ctx, p.navTimeout, chromedp.SetValue(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("set value %s: %w", selector, err)
	}
	return nil
}

// Text returns the visible text of the first node matching selector.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := p.run(ctx, p.navTimeout, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("text %s: %w", selector, err)
	}
	return out, nil
}

// Evaluate runs expr in the page and unmarshals the result into out.
func (p *Page) Evaluate(ctx context.Context, expr string, out any) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Exists reports whether any node matches selector in the current DOM.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := p.Evaluate(ctx, expr, &found); err != nil {
		return false, err
	}
	return found, nil
}

// AcceptNextDialog arms a one-shot acceptor for the next JavaScript dialog on
// this tab. The native prompt is auto-accepted exactly once and its message
// is delivered on the returned channel.
func (p *Page) AcceptNextDialog(ctx context.Context) <-chan string {
	ch := make(chan string, 1)
	var once sync.Once
	listenCtx, stop := context.WithCancel(p.ctx)

	chromedp.ListenTarget(listenCtx, func(ev any) {
		dlg, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		once.Do(func() {
			// HandleJavaScriptDialog must not run on the listener goroutine.
			go func() {
				_ = chromedp.Run(p.ctx, page.HandleJavaScriptDialog(true))
				ch <- dlg.Message
				stop()
			}()
		})
	})

	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch
}

// WatchResponses streams bodies of network responses whose URL contains
// urlSubstr until ctx is done.
func (p *Page) WatchResponses(ctx context.Context, urlSubstr string) <-chan string {
	ch := make(chan string, 8)
	listenCtx, stop := context.WithCancel(p.ctx)

	chromedp.ListenTarget(listenCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil {
			return
		}
		if urlSubstr != "" && !strings.Contains(resp.Response.URL, urlSubstr) {
			return
		}
		requestID := resp.RequestID
		go func() {
			body, err := p.responseBody(requestID)
			if err != nil {
				return
			}
			select {
			case ch <- body:
			case <-listenCtx.Done():
			}
		}()
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-listenCtx.Done():
		}
		stop()
	}()
	return ch
}

func (p *Page) responseBody(id network.RequestID) (string, error) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return "", fmt.Errorf("page target not ready")
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(p.ctx, c.Target))
	if err != nil {
		return "", fmt.Errorf("get response body: %w", err)
	}
	return string(body), nil
}

// Close cancels the tab context. Safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}
