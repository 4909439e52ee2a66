package extract

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakePage serves canned extraction results keyed by the navigated URL.
type fakePage struct {
	mu        sync.Mutex
	rows      map[int]string    // list page -> rows JSON
	detail    map[string]string // product code -> detail JSON
	navErrOn  int               // fail navigation to this list page (0 = never)
	navigated []string
	curPage   int
	curDetail string
	closed    bool
}

func newFakePage() *fakePage {
	return &fakePage{
		rows:   make(map[int]string),
		detail: make(map[string]string),
	}
}

func (p *fakePage) Navigate(_ context.Context, raw string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, raw)
	p.curDetail = ""
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if code := u.Query().Get("product_code"); code != "" {
		p.curDetail = code
		return nil
	}
	pageNum, _ := strconv.Atoi(u.Query().Get("page"))
	if p.navErrOn != 0 && pageNum == p.navErrOn {
		return context.DeadlineExceeded
	}
	p.curPage = pageNum
	return nil
}

func (p *fakePage) Evaluate(_ context.Context, expr string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch v := out.(type) {
	case *bool:
		_, hasNext := p.rows[p.curPage+1]
		*v = hasNext
	case *string:
		if p.curDetail != "" {
			*v = p.detail[p.curDetail]
			return nil
		}
		if rows, ok := p.rows[p.curPage]; ok {
			*v = rows
			return nil
		}
		*v = "[]"
	}
	_ = expr
	return nil
}

func (p *fakePage) WaitVisible(context.Context, string, time.Duration) error { return nil }
func (p *fakePage) Click(context.Context, string) error                      { return nil }
func (p *fakePage) SetValue(context.Context, string, string) error           { return nil }
func (p *fakePage) Text(context.Context, string) (string, error)             { return "", nil }

func (p *fakePage) Exists(context.Context, string) (bool, error) { return true, nil }

func (p *fakePage) AcceptNextDialog(context.Context) <-chan string {
	ch := make(chan string, 1)
	ch <- "확인"
	return ch
}

func (p *fakePage) WatchResponses(context.Context, string) <-chan string {
	return make(chan string)
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) listNavigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, raw := range p.navigated {
		if !strings.Contains(raw, "product_code=") {
			n++
		}
	}
	return n
}
