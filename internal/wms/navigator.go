// Package wms drives the WMS admin portal: login, receipt search and the
// jump to a receipt's detail page.
//
// The portal's markup is not under our control, so every form element is
// located through an ordered list of candidate selectors. Each candidate gets
// a short timeout and the first one that works is used.
package wms

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"wmsreceipt/internal/browser"
	"wmsreceipt/internal/config"
	apperrors "wmsreceipt/internal/errors"
	"wmsreceipt/internal/events"

	"github.com/PuerkitoBio/goquery"
)

// Diagnostic capture names.
const (
	LoginDebugScreenshot = "wms-debug.png"
	DetailScreenshot     = "receipt-detail.png"
)

// Navigator walks one browser page through the portal.
type Navigator struct {
	page       browser.Page
	cfg        *config.Config
	candidates Candidates
	sink       events.Sink
	logger     *slog.Logger
}

// NewNavigator creates a navigator for page.
//
// Parameters:
//   - page: Browser page, owned and closed by the caller
//   - cfg: Credentials, portal URL and timeouts
//   - candidates: Compiled selector profile
//   - sink: Receives selector attempts, navigations and screenshots
//   - logger: Step log, slog.Default when nil
func NewNavigator(page browser.Page, cfg *config.Config, candidates Candidates, sink events.Sink, logger *slog.Logger) *Navigator {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{page: page, cfg: cfg, candidates: candidates, sink: sink, logger: logger}
}

// Login opens the receipt list, which redirects to the login form, and
// submits the credentials.
//
// Flow:
//  1. Navigate to the receipts URL and let the page settle
//  2. Resolve and fill the username field
//  3. Resolve and fill the password field
//  4. Resolve and click the submit control
//  5. Wait for the post-login redirect to settle
//
// A role without any matching candidate captures wms-debug.png and fails
// with LoginElementNotFoundError.
func (n *Navigator) Login(ctx context.Context) error {
	n.logger.InfoContext(ctx, "  → Opening login page...", "url", n.cfg.ReceiptsURL)
	if err := n.navigate(ctx, n.cfg.ReceiptsURL); err != nil {
		return err
	}
	if err := settle(ctx, n.cfg.SettleDelay); err != nil {
		return err
	}

	if title, err := n.page.Title(ctx); err == nil {
		n.logger.InfoContext(ctx, "  ✓ Login page loaded", "title", title)
	}

	steps := []struct {
		role       string
		candidates []browser.Locator
		probe      browser.Probe
	}{
		{apperrors.RoleUsername, n.candidates.Username, n.fillProbe(n.cfg.Username)},
		{apperrors.RolePassword, n.candidates.Password, n.fillProbe(n.cfg.Password)},
		{apperrors.RoleSubmit, n.candidates.Submit, n.clickProbe()},
	}

	for _, step := range steps {
		m, err := n.resolve(ctx, step.role, step.candidates, n.cfg.ProbeTimeout, step.probe)
		if err != nil {
			n.logger.ErrorContext(ctx, "  ✗ Login element not found", "role", step.role)
			loginErr := apperrors.NewLoginElementNotFoundError(step.role, browser.Strings(step.candidates), err)
			loginErr.Screenshot = n.capture(ctx, LoginDebugScreenshot, false)
			return loginErr
		}
		n.logger.InfoContext(ctx, "  ✓ Login element found", "role", step.role, "selector", m.Locator.String())
	}

	if err := settle(ctx, n.cfg.LoginSettleDelay); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "  ✓ Login submitted")
	return nil
}

// Search opens the receipt list, types receiptNo into the first usable search
// box, submits with Enter and waits for the receipt number to show up.
func (n *Navigator) Search(ctx context.Context, receiptNo string) error {
	n.logger.InfoContext(ctx, "  → Opening receipt list...")
	if err := n.navigate(ctx, n.cfg.ReceiptsURL); err != nil {
		return err
	}
	if err := settle(ctx, n.cfg.SettleDelay); err != nil {
		return err
	}

	probe := func(ctx context.Context, loc browser.Locator) error {
		if err := n.page.WaitVisible(ctx, loc); err != nil {
			return err
		}
		if err := n.page.Fill(ctx, loc, receiptNo); err != nil {
			return err
		}
		return n.page.PressEnter(ctx, loc)
	}
	if _, err := n.resolve(ctx, "search", n.candidates.Search, n.cfg.SearchProbeTimeout, probe); err != nil {
		n.logger.ErrorContext(ctx, "  ✗ Search input not found")
		return apperrors.NewSearchInputNotFoundError(browser.Strings(n.candidates.Search), err)
	}
	n.logger.InfoContext(ctx, "  ✓ Search submitted", "receipt", receiptNo)

	if err := settle(ctx, n.cfg.SettleDelay); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, n.cfg.ResultTimeout)
	err := n.page.WaitText(waitCtx, receiptNo)
	cancel()
	if err != nil {
		n.logger.ErrorContext(ctx, "  ✗ Receipt not in search results", "receipt", receiptNo, "waited", n.cfg.ResultTimeout)
		return apperrors.NewSearchTimeoutError(receiptNo, err)
	}
	n.logger.InfoContext(ctx, "  ✓ Receipt found in results", "receipt", receiptNo)
	return nil
}

// OpenDetail follows the receipt's link from the current results page and
// returns the absolute detail URL.
func (n *Navigator) OpenDetail(ctx context.Context, receiptNo string) (string, error) {
	html, err := n.page.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read results page: %w", err)
	}
	href, ok := FindDetailLink(html, receiptNo)
	if !ok {
		n.logger.ErrorContext(ctx, "  ✗ Detail link not found", "receipt", receiptNo)
		return "", apperrors.NewDetailLinkNotFoundError(receiptNo)
	}

	current, err := n.page.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read current location: %w", err)
	}
	target, err := ResolveHref(current, href)
	if err != nil {
		return "", err
	}

	n.logger.InfoContext(ctx, "  → Opening receipt detail...", "url", target)
	if err := n.navigate(ctx, target); err != nil {
		return "", err
	}
	if err := settle(ctx, n.cfg.SettleDelay); err != nil {
		return "", err
	}
	return target, nil
}

// CaptureDetail takes the full-page screenshot of the detail page.
func (n *Navigator) CaptureDetail(ctx context.Context) string {
	return n.capture(ctx, DetailScreenshot, true)
}

// FindDetailLink returns the href of the first link inside a table row whose
// text contains receiptNo. When no row qualifies it falls back to the first
// link whose own text contains receiptNo.
func FindDetailLink(html, receiptNo string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	var href string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !strings.Contains(row.Text(), receiptNo) {
			return true
		}
		if h, ok := row.Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(h) != "" {
			href = strings.TrimSpace(h)
			return false
		}
		return true
	})
	if href != "" {
		return href, true
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.Contains(a.Text(), receiptNo) {
			href = strings.TrimSpace(a.AttrOr("href", ""))
			return href == ""
		}
		return true
	})
	return href, href != ""
}

// ResolveHref resolves href against the page URL base.
func ResolveHref(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid detail link %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

func (n *Navigator) fillProbe(value string) browser.Probe {
	return func(ctx context.Context, loc browser.Locator) error {
		if err := n.page.WaitVisible(ctx, loc); err != nil {
			return err
		}
		return n.page.Fill(ctx, loc, value)
	}
}

func (n *Navigator) clickProbe() browser.Probe {
	return func(ctx context.Context, loc browser.Locator) error {
		if err := n.page.WaitVisible(ctx, loc); err != nil {
			return err
		}
		return n.page.Click(ctx, loc)
	}
}

// resolve runs the candidate list and reports every attempt to the sink.
func (n *Navigator) resolve(ctx context.Context, role string, candidates []browser.Locator, each time.Duration, probe browser.Probe) (browser.Match, error) {
	m, err := browser.ResolveFirstMatch(ctx, candidates, each, probe)
	for _, a := range m.Attempts {
		n.sink.Emit(ctx, events.Event{Kind: events.KindProbe, Role: role, Selector: a.Locator.String(), Err: a.Err})
	}
	if err != nil {
		return m, err
	}
	n.sink.Emit(ctx, events.Event{Kind: events.KindMatch, Role: role, Selector: m.Locator.String(), Count: m.Index})
	return m, nil
}

func (n *Navigator) navigate(ctx context.Context, target string) error {
	navCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	err := n.page.Navigate(navCtx, target)
	cancel()
	if err != nil {
		n.logger.ErrorContext(ctx, "  ✗ Navigation failed", "url", target, "timeout", n.cfg.NavigationTimeout, "error", err)
		return apperrors.NewNavigationError(target, err)
	}
	n.sink.Emit(ctx, events.Event{Kind: events.KindNavigate, URL: target})
	return nil
}

// capture writes a screenshot into the diagnostics directory and returns its
// path, or "" when the capture failed. A failed capture never fails the run.
func (n *Navigator) capture(ctx context.Context, name string, fullPage bool) string {
	path := filepath.Join(n.cfg.DiagnosticsDir, name)
	shotCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()
	if err := n.page.Screenshot(shotCtx, path, fullPage); err != nil {
		n.logger.WarnContext(ctx, "  ⚠️  Screenshot failed", "path", path, "error", err)
		n.sink.Emit(ctx, events.Event{Kind: events.KindScreenshot, Path: path, Err: err})
		return ""
	}
	n.sink.Emit(ctx, events.Event{Kind: events.KindScreenshot, Path: path})
	n.logger.InfoContext(ctx, "  📸 Screenshot saved", "path", path)
	return path
}

// settle pauses for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
