// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
)

// screenshotQuality is passed to FullScreenshot. 100 selects PNG; anything lower is JPEG.
const screenshotQuality = 100

// Page is a single chromedp tab implementing browser.Page.
type Page struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

var _ browser.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, id string, navTimeout time.Duration, logger *zap.Logger) *Page {
	return &Page{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		navTimeout: navTimeout,
		logger:     logger,
	}
}

// ID returns the session identifier used in logs.
func (p *Page) ID() string { return p.id }

// opContext joins the tab context (which carries the CDP target) with the caller's
// context (which carries cancellation).
func (p *Page) opContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, nil, browser.ErrSessionClosed
	}
	opCtx, cancel := browser.CombineContext(p.ctx, ctx)
	return opCtx, cancel, nil
}

// Open navigates and waits for the load event, bounded by the navigation timeout.
func (p *Page) Open(ctx context.Context, url string) error {
	opCtx, cancel, err := p.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	navCtx, navCancel := context.WithTimeout(opCtx, p.navTimeout)
	defer navCancel()

	p.logger.Info("Navigating", zap.String("url", url))
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to '%s' timed out after %v: %w", url, p.navTimeout, err)
		}
		return fmt.Errorf("navigation to '%s' failed: %w", url, err)
	}
	return nil
}

// FindElement returns the first element matching loc without waiting.
func (p *Page) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	elements, err := p.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	return elements[0], nil
}

// FindElements returns every element matching loc without waiting.
func (p *Page) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	opCtx, cancel, err := p.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	sel, by := selectorFor(loc)
	var nodes []*cdpproto.Node
	if err := chromedp.Run(opCtx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("query for %s failed: %w", loc, err)
	}
	return p.wrap(nodes), nil
}

// WaitUntil polls the DOM until an element matching loc satisfies cond.
func (p *Page) WaitUntil(ctx context.Context, loc browser.Locator, cond browser.Condition, timeout time.Duration) (browser.Element, error) {
	opCtx, cancel, err := p.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	waitCtx, waitCancel := context.WithTimeout(opCtx, timeout)
	defer waitCancel()

	sel, by := selectorFor(loc)
	var nodes []*cdpproto.Node
	var actions chromedp.Tasks
	switch cond {
	case browser.Clickable:
		actions = chromedp.Tasks{
			chromedp.WaitVisible(sel, by),
			chromedp.Nodes(sel, &nodes, by, chromedp.NodeEnabled),
		}
	default:
		actions = chromedp.Tasks{chromedp.Nodes(sel, &nodes, by, chromedp.NodeReady)}
	}

	if err := chromedp.Run(waitCtx, actions); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s not %s after %v: %w", loc, cond, timeout, browser.ErrWaitTimeout)
		}
		return nil, fmt.Errorf("waiting for %s failed: %w", loc, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	return p.wrap(nodes)[0], nil
}

// CurrentLocation returns the URL of the top-level document.
func (p *Page) CurrentLocation(ctx context.Context) (string, error) {
	opCtx, cancel, err := p.opContext(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	var location string
	if err := chromedp.Run(opCtx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

// CaptureEvidence writes a full-page PNG screenshot to path.
func (p *Page) CaptureEvidence(ctx context.Context, path string) error {
	opCtx, cancel, err := p.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create evidence directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	p.logger.Info("Screenshot saved", zap.String("path", path), zap.Int("bytes", len(buf)))
	return nil
}

// Release closes the tab and, in local mode, the browser process. Only the first call
// does anything.
func (p *Page) Release(ctx context.Context) error {
	var releaseErr error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.logger.Info("Releasing browser session.")
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.ctx) }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				releaseErr = fmt.Errorf("failed to close browser session: %w", err)
			}
		case <-ctx.Done():
			releaseErr = fmt.Errorf("gave up waiting for browser to close: %w", ctx.Err())
		}
		// Always tear down the allocator, even if the graceful close did not finish.
		p.cancel()
	})
	return releaseErr
}

func (p *Page) wrap(nodes []*cdpproto.Node) []browser.Element {
	elements := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &Element{page: p, node: n})
	}
	return elements
}

// selectorFor maps a locator onto a chromedp selector and query option. Ids are turned
// into attribute selectors so ids that are not valid CSS identifiers still work.
func selectorFor(loc browser.Locator) (string, chromedp.QueryOption) {
	switch loc.Kind {
	case browser.KindID:
		return "[id=" + strconv.Quote(loc.Value) + "]", chromedp.ByQueryAll
	case browser.KindXPath:
		return loc.Value, chromedp.BySearch
	default:
		return loc.Value, chromedp.ByQueryAll
	}
}
