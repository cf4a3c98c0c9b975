package healing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

// stubDriver serves canned elements and page HTML.
type stubDriver struct {
	html     string
	elements map[string]*browser.Element // keyed by "type:value"
	findErr  error
}

func (d *stubDriver) Navigate(ctx context.Context, url string) error { return nil }

func (d *stubDriver) FindElement(ctx context.Context, locatorType, value string) (*browser.Element, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.elements[locatorType+":"+value], nil
}

func (d *stubDriver) PageHTML(ctx context.Context) (string, error)   { return d.html, nil }
func (d *stubDriver) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
func (d *stubDriver) CurrentURL(ctx context.Context) (string, error) { return "http://stub.local", nil }
func (d *stubDriver) Click(ctx context.Context, selector string) error { return nil }
func (d *stubDriver) Fill(ctx context.Context, selector, value string) error { return nil }
func (d *stubDriver) Select(ctx context.Context, selector, value string) error { return nil }
func (d *stubDriver) Close() error { return nil }

// stubStrategy returns a fixed result after an optional delay and counts its
// invocations.
type stubStrategy struct {
	name   StrategyName
	result *Result
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubStrategy) Name() StrategyName { return s.name }

func (s *stubStrategy) AttemptHeal(ctx context.Context, hctx *Context, cfg *Config) (*Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}
