package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// DefaultOpTimeout bounds a page operation whose context has no deadline.
const DefaultOpTimeout = 30 * time.Second

// locatorAttr marks the element a text locator resolved to, so that the
// regular query actions can address it.
const locatorAttr = "data-wms-locator"

// findByTextJS tags the first element matching query whose text contains
// text. It is polled until it returns true.
const findByTextJS = `(query, text, tag) => {
	for (const el of document.querySelectorAll(query)) {
		const content = el.innerText || el.textContent || el.value || '';
		if (content.includes(text)) {
			el.setAttribute('` + locatorAttr + `', tag);
			return true;
		}
	}
	return false;
}`

const bodyHasTextJS = `(text) => !!document.body && document.body.innerText.includes(text)`

// ChromeOptions configures a ChromePage.
type ChromeOptions struct {
	Headless  bool
	OpTimeout time.Duration // default for operations without a deadline
	Logger    *slog.Logger
}

// ChromePage drives a Chrome tab through ChromeDP.
//
// The allocator and browser contexts live for the whole page. Each operation
// runs on a child of the browser context that inherits the caller's deadline.
type ChromePage struct {
	ctx         context.Context // browser context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opTimeout   time.Duration
	closeOnce   sync.Once
	tags        atomic.Int64
}

// NewChromePage starts a browser and opens a blank tab.
//
// Flow:
//  1. Create an exec allocator (headful unless opts.Headless)
//  2. Create the browser context with ChromeDP logging routed to slog
//  3. Run an empty action list so the browser process is bound to the
//     browser context rather than to the first operation's timeout
func NewChromePage(opts ChromeOptions) (*ChromePage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}

	logger.Info("  → Creating browser context...", "headless", opts.Headless)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(1366, 900),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	logf := func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...), "source", "chromedp")
	}
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logf),
		chromedp.WithErrorf(logf),
	)

	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("  ✓ Browser context created")
	return &ChromePage{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		opTimeout:   opts.OpTimeout,
	}, nil
}

// scope derives an operation context from the browser context. It ends at
// the caller's deadline (or after the default timeout) and when the caller's
// context is cancelled.
func (p *ChromePage) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.opTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.scope(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// query returns a CSS selector for loc. Text locators are resolved in the
// page first and addressed through a unique attribute.
func (p *ChromePage) query(ctx context.Context, loc Locator) (string, error) {
	if loc.Text == "" {
		return loc.Query, nil
	}

	tag := fmt.Sprintf("l%d", p.tags.Add(1))
	var found bool
	err := p.run(ctx, chromedp.PollFunction(findByTextJS, &found,
		chromedp.WithPollingArgs(loc.Query, loc.Text, tag),
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`[%s=%q]`, locatorAttr, tag), nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromePage) WaitVisible(ctx context.Context, loc Locator) error {
	sel, err := p.query(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (p *ChromePage) Fill(ctx context.Context, loc Locator, value string) error {
	sel, err := p.query(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (p *ChromePage) Click(ctx context.Context, loc Locator) error {
	sel, err := p.query(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *ChromePage) PressEnter(ctx context.Context, loc Locator) error {
	sel, err := p.query(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery))
}

func (p *ChromePage) WaitText(ctx context.Context, text string) error {
	var found bool
	return p.run(ctx, chromedp.PollFunction(bodyHasTextJS, &found,
		chromedp.WithPollingArgs(text),
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *ChromePage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

// Screenshot writes a PNG of the viewport, or of the whole page when
// fullPage is set.
func (p *ChromePage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100) // quality 100 encodes PNG
	} else {
		action = chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
			return err
		})
	}
	if err := p.run(ctx, action); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// Close shuts down the tab and the browser process. It is safe to call more
// than once.
func (p *ChromePage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.allocCancel()
	})
	return nil
}
