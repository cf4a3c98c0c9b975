package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/testmaster-ai/testmaster/internal/browser"
	"github.com/testmaster-ai/testmaster/internal/healing"
)

// fakeDriver serves a static site out of a url-to-HTML map. Navigating to an
// unmapped URL fails, which stands in for an unreachable page.
type fakeDriver struct {
	mu       sync.Mutex
	pages    map[string]string
	html     string
	elements map[string]*browser.Element // keyed by "type:value"
	current  string
	fills    map[string]string
	clicks   []string
	blockNav bool // Navigate waits for ctx cancellation
	closed   bool
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if d.blockNav {
		<-ctx.Done()
		return ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pages != nil {
		if _, ok := d.pages[url]; !ok {
			return fmt.Errorf("no route to %s", url)
		}
	}
	d.current = url
	return nil
}

func (d *fakeDriver) FindElement(ctx context.Context, locatorType, value string) (*browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elements[locatorType+":"+value], nil
}

func (d *fakeDriver) PageHTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pages == nil {
		return d.html, nil
	}
	return d.pages[d.current], nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, selector)
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fills == nil {
		d.fills = make(map[string]string)
	}
	d.fills[selector] = value
	return nil
}

func (d *fakeDriver) Select(ctx context.Context, selector, value string) error { return nil }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// siteFactory returns a DriverFactory serving the given static site. Every
// call opens a fresh driver over the shared page and element maps.
func siteFactory(pages map[string]string, elements map[string]*browser.Element) DriverFactory {
	return func(ctx context.Context) (browser.Driver, error) {
		return &fakeDriver{pages: pages, elements: elements}, nil
	}
}

// fakeHealer returns a fixed healing result and counts invocations.
type fakeHealer struct {
	mu    sync.Mutex
	res   *healing.Result
	err   error
	calls int
}

func (h *fakeHealer) Heal(ctx context.Context, hctx *healing.Context) (*healing.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.res, h.err
}

func (h *fakeHealer) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// progressRecorder captures every progress update in order.
type progressRecorder struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (r *progressRecorder) record(u ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *progressRecorder) all() []ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProgressUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *progressRecorder) phases() []Phase {
	var phases []Phase
	var last Phase
	for _, u := range r.all() {
		if u.Phase != last {
			phases = append(phases, u.Phase)
			last = u.Phase
		}
	}
	return phases
}
