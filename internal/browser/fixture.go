package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotOnPage is returned by FixturePage when a locator matches nothing.
var ErrNotOnPage = errors.New("element not on page")

// FixturePage serves recorded HTML instead of driving a browser.
//
// Pages maps absolute URLs to documents. Clicks and Enter presses move to
// another page through OnClick and OnSubmit. Elements with a hidden attribute
// or an inline display:none style count as not visible.
type FixturePage struct {
	Pages map[string]string

	// OnClick maps Locator.String() of a clicked element to the URL loaded next.
	OnClick map[string]string

	// OnClickFunc is consulted for clicks OnClick has no entry for. A
	// non-empty return value is loaded as the next page.
	OnClickFunc func(loc Locator) string

	// Resolve maps a requested URL to the key of the recorded page to serve,
	// for pages whose content depends on earlier interaction. Location still
	// reports the requested URL.
	Resolve func(url string) string

	// OnSubmit is called when Enter is pressed in a field. A non-empty return
	// value is loaded as the next page.
	OnSubmit func(field Locator, value string) string

	mu          sync.Mutex
	current     string
	html        string
	doc         *goquery.Document
	values      map[string]string
	navigations []string
	screenshots []string
	closed      bool
}

// NewFixturePage creates a fixture serving pages.
func NewFixturePage(pages map[string]string) *FixturePage {
	return &FixturePage{
		Pages:   pages,
		OnClick: map[string]string{},
		values:  map[string]string{},
	}
}

func (f *FixturePage) load(url string) error {
	key := url
	if f.Resolve != nil {
		key = f.Resolve(url)
	}
	html, ok := f.Pages[key]
	if !ok {
		return fmt.Errorf("fixture: no page recorded for %s", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("fixture: parse %s: %w", url, err)
	}
	f.current = url
	f.html = html
	f.doc = doc
	f.navigations = append(f.navigations, url)
	return nil
}

// find returns the first visible element for loc on the current page.
func (f *FixturePage) find(loc Locator) (*goquery.Selection, error) {
	if f.doc == nil {
		return nil, fmt.Errorf("fixture: no page loaded")
	}
	sel := f.doc.Find(loc.Query).FilterFunction(func(_ int, s *goquery.Selection) bool {
		if !visible(s) {
			return false
		}
		return loc.Text == "" || strings.Contains(s.Text(), loc.Text) || strings.Contains(s.AttrOr("value", ""), loc.Text)
	})
	if sel.Length() == 0 {
		return nil, fmt.Errorf("fixture: %s: %w", loc, ErrNotOnPage)
	}
	return sel.First(), nil
}

func visible(s *goquery.Selection) bool {
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") {
			return false
		}
		if n.Is("input[type=hidden]") {
			return false
		}
	}
	return true
}

func (f *FixturePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(url)
}

func (f *FixturePage) WaitVisible(ctx context.Context, loc Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.find(loc)
	return err
}

func (f *FixturePage) Fill(ctx context.Context, loc Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.find(loc); err != nil {
		return err
	}
	f.values[loc.String()] = value
	return nil
}

func (f *FixturePage) Click(ctx context.Context, loc Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.find(loc); err != nil {
		return err
	}
	if next, ok := f.OnClick[loc.String()]; ok {
		return f.load(next)
	}
	if f.OnClickFunc != nil {
		if next := f.OnClickFunc(loc); next != "" {
			return f.load(next)
		}
	}
	return nil
}

func (f *FixturePage) PressEnter(ctx context.Context, loc Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.find(loc); err != nil {
		return err
	}
	if f.OnSubmit == nil {
		return nil
	}
	if next := f.OnSubmit(loc, f.values[loc.String()]); next != "" {
		return f.load(next)
	}
	return nil
}

func (f *FixturePage) WaitText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc == nil || !strings.Contains(f.doc.Find("body").Text(), text) {
		return fmt.Errorf("fixture: text %q: %w", text, ErrNotOnPage)
	}
	return nil
}

func (f *FixturePage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc == nil {
		return "", fmt.Errorf("fixture: no page loaded")
	}
	return f.html, nil
}

func (f *FixturePage) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, ctx.Err()
}

func (f *FixturePage) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc == nil {
		return "", ctx.Err()
	}
	return strings.TrimSpace(f.doc.Find("title").First().Text()), ctx.Err()
}

// Screenshot writes a small text placeholder naming the captured URL.
func (f *FixturePage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	content := fmt.Sprintf("fixture screenshot of %s (full page: %v)\n", f.current, fullPage)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	f.screenshots = append(f.screenshots, path)
	return nil
}

func (f *FixturePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Value returns what was typed into the field located by loc.
func (f *FixturePage) Value(loc Locator) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[loc.String()]
}

// Navigations returns every URL loaded, in order.
func (f *FixturePage) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Screenshots returns the paths written by Screenshot.
func (f *FixturePage) Screenshots() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.screenshots...)
}

// Closed reports whether Close was called.
func (f *FixturePage) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
