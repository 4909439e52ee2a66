package automation

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// stubPage is a scriptable page double for the automation state machines.
type stubPage struct {
	mu sync.Mutex

	optionsJSON string
	remaining   map[int]int     // registration page -> checkbox count
	absentCodes map[string]bool // product codes with no listing
	clickErrOn  map[string]bool // product codes whose delete click fails
	navErr      error
	noDialog    bool
	dialogMsg   string
	responses   []string // bodies streamed after WatchResponses

	curPage   int
	curCode   string
	navigated []string
	setValues map[string][]string
	clicks    []string
}

func newStubPage() *stubPage {
	return &stubPage{
		remaining:   make(map[int]int),
		absentCodes: make(map[string]bool),
		clickErrOn:  make(map[string]bool),
		dialogMsg:   "확인",
		setValues:   make(map[string][]string),
	}
}

func (p *stubPage) Navigate(_ context.Context, raw string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, raw)
	if p.navErr != nil {
		return p.navErr
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(u.Query().Get("page")); err == nil {
		p.curPage = n
	}
	if code := u.Query().Get("search_code"); code != "" {
		p.curCode = code
	}
	if code := u.Query().Get("keyword"); code != "" {
		p.curCode = code
	}
	return nil
}

func (p *stubPage) Evaluate(_ context.Context, _ string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch v := out.(type) {
	case *int:
		*v = p.remaining[p.curPage]
	case *string:
		*v = p.optionsJSON
	}
	return nil
}

func (p *stubPage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.absentCodes[p.curCode] {
		return errors.New("selector not visible: " + selector)
	}
	return nil
}

func (p *stubPage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	if p.clickErrOn[p.curCode] {
		return errors.New("click failed: " + selector)
	}
	return nil
}

func (p *stubPage) SetValue(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setValues[selector] = append(p.setValues[selector], value)
	return nil
}

func (p *stubPage) Text(context.Context, string) (string, error) { return "", nil }

func (p *stubPage) Exists(_ context.Context, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.absentCodes[p.curCode], nil
}

func (p *stubPage) AcceptNextDialog(context.Context) <-chan string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan string, 1)
	if !p.noDialog {
		ch <- p.dialogMsg
	}
	return ch
}

func (p *stubPage) WatchResponses(ctx context.Context, _ string) <-chan string {
	p.mu.Lock()
	bodies := make([]string, len(p.responses))
	copy(bodies, p.responses)
	p.mu.Unlock()

	ch := make(chan string)
	go func() {
		for _, body := range bodies {
			select {
			case ch <- body:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (p *stubPage) Close() error { return nil }

func (p *stubPage) navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.navigated))
	copy(out, p.navigated)
	return out
}
