package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeDriver drives a headless Chrome instance through the DevTools
// protocol.
type ChromeDriver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	actionTimeout time.Duration
}

// Options controls browser launch.
type Options struct {
	Headless      bool
	WindowWidth   int
	WindowHeight  int
	ActionTimeout time.Duration
}

// DefaultOptions is a headless 1280x800 browser with a 30s per-action
// timeout.
func DefaultOptions() Options {
	return Options{Headless: true, WindowWidth: 1280, WindowHeight: 800, ActionTimeout: 30 * time.Second}
}

// NewChromeDriver launches a browser. The caller owns the returned driver and
// must Close it on every path.
func NewChromeDriver(ctx context.Context, opts Options) (*ChromeDriver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force browser start so a missing Chrome binary surfaces here, not in
	// the middle of a phase.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	timeout := opts.ActionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeDriver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		actionTimeout: timeout,
	}, nil
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.browserCtx, d.actionTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// findElementJS resolves a selector in the page and reports the first match
// plus the total match count, so callers can enforce the zero-or-one
// contract.
const findElementJS = `(() => {
	const sel = %s;
	const isXPath = %t;
	let nodes = [];
	if (isXPath) {
		const it = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
	} else {
		nodes = Array.from(document.querySelectorAll(sel));
	}
	if (nodes.length === 0) return {count: 0};
	const el = nodes[0];
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const attrs = {};
	for (const a of el.attributes) attrs[a.name] = a.value;
	return {
		count: nodes.length,
		tag: el.tagName.toLowerCase(),
		text: (el.textContent || '').trim().slice(0, 200),
		attrs: attrs,
		visible: style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0,
	};
})()`

type findElementResult struct {
	Count   int               `json:"count"`
	Tag     string            `json:"tag"`
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs"`
	Visible bool              `json:"visible"`
}

func (d *ChromeDriver) FindElement(ctx context.Context, locatorType, value string) (*Element, error) {
	selector, isXPath, err := CSSSelector(locatorType, value)
	if err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode selector: %w", err)
	}

	var res findElementResult
	js := fmt.Sprintf(findElementJS, quoted, isXPath)
	if err := d.run(ctx, chromedp.Evaluate(js, &res)); err != nil {
		return nil, fmt.Errorf("failed to evaluate locator %q: %w", selector, err)
	}
	if res.Count == 0 {
		return nil, nil
	}
	if res.Count > 1 {
		return nil, fmt.Errorf("locator %q matched %d elements, want exactly one", selector, res.Count)
	}
	return &Element{
		Selector:   selector,
		Tag:        res.Tag,
		Text:       res.Text,
		Attributes: res.Attrs,
		Visible:    res.Visible,
	}, nil
}

func (d *ChromeDriver) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return html, nil
}

func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	if err := d.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string) error {
	if err := d.run(ctx, chromedp.Clear(selector, chromedp.ByQuery), chromedp.SendKeys(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to fill %q: %w", selector, err)
	}
	return nil
}

func (d *ChromeDriver) Select(ctx context.Context, selector, value string) error {
	if err := d.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to select %q on %q: %w", value, selector, err)
	}
	return nil
}

// Close tears down the browser context and the allocator. Safe to call more
// than once.
func (d *ChromeDriver) Close() error {
	if d.browserCancel != nil {
		d.browserCancel()
		d.browserCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	return nil
}

var _ Driver = (*ChromeDriver)(nil)
