// Package extract reads the line-item table of a receipt detail page.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wmsreceipt/internal/browser"
	apperrors "wmsreceipt/internal/errors"
	"wmsreceipt/internal/events"
	"wmsreceipt/internal/receipt"

	"github.com/PuerkitoBio/goquery"
)

// Extractor locates the first present table candidate and parses its rows.
type Extractor struct {
	page       browser.Page
	candidates []browser.Locator
	probe      time.Duration
	sink       events.Sink
	logger     *slog.Logger
}

// New creates an extractor trying candidates in order, each for up to probe.
func New(page browser.Page, candidates []browser.Locator, probe time.Duration, sink events.Sink, logger *slog.Logger) *Extractor {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{page: page, candidates: candidates, probe: probe, sink: sink, logger: logger}
}

// Extract returns every row of the matched table, header rows included.
//
// Errors:
//   - NoTableFoundError: no candidate is present on the page
//   - EmptyResultError: the table has no row with more than one cell
func (x *Extractor) Extract(ctx context.Context) ([]receipt.TableRow, error) {
	x.logger.InfoContext(ctx, "  → Reading receipt table...")

	probe := func(ctx context.Context, loc browser.Locator) error {
		return x.page.WaitVisible(ctx, loc)
	}
	m, err := browser.ResolveFirstMatch(ctx, x.candidates, x.probe, probe)
	for _, a := range m.Attempts {
		x.sink.Emit(ctx, events.Event{Kind: events.KindProbe, Role: "table", Selector: a.Locator.String(), Err: a.Err})
	}
	if err != nil {
		if html, htmlErr := x.page.HTML(ctx); htmlErr == nil {
			x.emitInventory(ctx, html)
		}
		x.logger.ErrorContext(ctx, "  ✗ No table found")
		return nil, apperrors.NewNoTableFoundError(browser.Strings(x.candidates), err)
	}
	x.sink.Emit(ctx, events.Event{Kind: events.KindMatch, Role: "table", Selector: m.Locator.String(), Count: m.Index})

	// Read after the wait so late-rendered tables are included
	html, err := x.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read detail page: %w", err)
	}
	x.emitInventory(ctx, html)

	rows, err := ParseTable(html, m.Locator)
	if err != nil {
		return nil, err
	}

	multi := 0
	for _, r := range rows {
		if len(r.Cells) > 1 {
			multi++
		}
	}
	if multi == 0 {
		x.logger.ErrorContext(ctx, "  ✗ Table has no data", "selector", m.Locator.String(), "rows", len(rows))
		return nil, apperrors.NewEmptyResultError(m.Locator.String(), len(rows))
	}

	x.sink.Emit(ctx, events.Event{Kind: events.KindRows, Role: "table", Selector: m.Locator.String(), Count: len(rows)})
	x.logger.InfoContext(ctx, "  ✓ Table read", "selector", m.Locator.String(), "rows", len(rows))
	return rows, nil
}

func (x *Extractor) emitInventory(ctx context.Context, html string) {
	for _, t := range Inventory(html) {
		x.sink.Emit(ctx, events.Event{
			Kind:     events.KindTable,
			Role:     "table",
			Selector: t.Selector(),
			Count:    t.Rows,
			Detail:   fmt.Sprintf("index=%d header=%v", t.Index, t.HasHeader),
		})
	}
}

// ParseTable collects the rows of every table matched by loc. Cell text is
// trimmed and line breaks become single spaces. Rows of <thead>, and rows made only of
// <th> cells, are flagged as header rows.
func ParseTable(html string, loc browser.Locator) ([]receipt.TableRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}

	tables := doc.Find(loc.Query)
	if loc.Text != "" {
		tables = tables.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), loc.Text)
		})
	}

	var rows []receipt.TableRow
	tables.Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			// Rows of nested tables belong to the inner table
			if tr.ParentsFiltered("table").First().Get(0) != table.Get(0) {
				return
			}
			cells := tr.ChildrenFiltered("td, th")
			row := receipt.TableRow{
				Cells:  make([]string, 0, cells.Length()),
				Header: tr.ParentsFiltered("thead").Length() > 0,
			}
			allTH := cells.Length() > 0
			cells.Each(func(_ int, cell *goquery.Selection) {
				if !cell.Is("th") {
					allTH = false
				}
				row.Cells = append(row.Cells, cleanText(cell.Text()))
			})
			if allTH {
				row.Header = true
			}
			rows = append(rows, row)
		})
	})
	return rows, nil
}

// TableInfo describes one table of a page.
type TableInfo struct {
	Index     int
	Class     string
	ID        string
	Rows      int
	HasHeader bool
}

// Selector returns a CSS selector naming the table by id or classes.
func (t TableInfo) Selector() string {
	if t.ID != "" {
		return "#" + t.ID
	}
	if classes := strings.Fields(t.Class); len(classes) > 0 {
		return "table." + strings.Join(classes, ".")
	}
	return "table"
}

// Inventory lists every table on the page.
func Inventory(html string) []TableInfo {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []TableInfo
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		out = append(out, TableInfo{
			Index:     i,
			Class:     table.AttrOr("class", ""),
			ID:        table.AttrOr("id", ""),
			Rows:      table.Find("tr").Length(),
			HasHeader: table.Find("thead").Length() > 0,
		})
	})
	return out
}

// cleanText trims the cell and joins its non-blank lines with a single
// space. Spacing inside a line is kept as rendered.
func cleanText(s string) string {
	var parts []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
