package extract

import (
	"context"
	"testing"
	"time"

	"wmsreceipt/internal/browser"
	apperrors "wmsreceipt/internal/errors"
	"wmsreceipt/internal/events"
	"wmsreceipt/internal/receipt"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailURL = "https://wms.test/admin/receipts/8"

const detailPage = `<html><body>
<table class="meta"><tr><td>單號</td><td>RC-1001</td></tr></table>
<table class="table table-striped" id="items">
  <thead><tr><th>品號</th><th>數量</th></tr></thead>
  <tbody>
    <tr><td> SKU123 </td><td>
      4
    </td></tr>
    <tr><td>SKU456</td><td>2</td><td>pcs</td></tr>
    <tr><td colspan="2">合計</td></tr>
    <tr><td></td><td>9</td></tr>
  </tbody>
</table>
</body></html>`

var tableCandidates = []browser.Locator{browser.CSS(".table.table-striped"), browser.CSS(".table"), browser.CSS("table")}

func newExtractor(t *testing.T, html string, sink events.Sink) *Extractor {
	t.Helper()
	page := browser.NewFixturePage(map[string]string{detailURL: html})
	require.NoError(t, page.Navigate(context.Background(), detailURL))
	return New(page, tableCandidates, 50*time.Millisecond, sink, nil)
}

func TestExtractReturnsAllRows(t *testing.T) {
	rec := events.NewRecorder()
	x := newExtractor(t, detailPage, rec)

	rows, err := x.Extract(context.Background())
	require.NoError(t, err)

	want := []receipt.TableRow{
		{Cells: []string{"品號", "數量"}, Header: true},
		{Cells: []string{"SKU123", "4"}},
		{Cells: []string{"SKU456", "2", "pcs"}},
		{Cells: []string{"合計"}},
		{Cells: []string{"", "9"}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("unexpected rows (-want +got):\n%s", diff)
	}

	// Filtering is left to the csv builder
	assert.Len(t, receipt.DataRows(rows), 2)

	tables := rec.OfKind(events.KindTable)
	require.Len(t, tables, 2)
	assert.Equal(t, "table.meta", tables[0].Selector)
	assert.Equal(t, "#items", tables[1].Selector)
	assert.Equal(t, 5, tables[1].Count)

	matches := rec.OfKind(events.KindMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, ".table.table-striped", matches[0].Selector)
}

func TestExtractFallsBackToGenericTable(t *testing.T) {
	rec := events.NewRecorder()
	x := newExtractor(t, `<html><body><table><tr><td>A1</td><td>3</td></tr></table></body></html>`, rec)

	rows, err := x.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []receipt.TableRow{{Cells: []string{"A1", "3"}}}, rows)

	assert.Len(t, rec.OfKind(events.KindProbe), 2)
	assert.Equal(t, "table", rec.OfKind(events.KindMatch)[0].Selector)
}

func TestExtractNoTable(t *testing.T) {
	x := newExtractor(t, `<html><body><p>Not found</p></body></html>`, nil)

	_, err := x.Extract(context.Background())

	var noTable *apperrors.NoTableFoundError
	require.ErrorAs(t, err, &noTable)
	assert.Equal(t, []string{".table.table-striped", ".table", "table"}, noTable.Tried)
}

func TestExtractEmptyResult(t *testing.T) {
	x := newExtractor(t, `<html><body><table class="table"><tr><th>品號</th></tr><tr><td>無資料</td></tr></table></body></html>`, nil)

	_, err := x.Extract(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsEmptyResult(err))
}

func TestParseTableSkipsNestedRows(t *testing.T) {
	html := `<table class="outer">
<tr><td>SKU1</td><td><table><tr><td>inner</td><td>x</td></tr></table></td></tr>
</table>`

	rows, err := ParseTable(html, browser.CSS("table.outer"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SKU1", rows[0].Cells[0])
	assert.Equal(t, "innerx", rows[0].Cells[1])
}

func TestParseTableWithTextLocator(t *testing.T) {
	html := `<table><tr><td>A</td><td>1</td></tr></table><table><caption>明細</caption><tr><td>B</td><td>2</td></tr></table>`

	rows, err := ParseTable(html, browser.HasText("table", "明細"))
	require.NoError(t, err)
	assert.Equal(t, []receipt.TableRow{{Cells: []string{"B", "2"}}}, rows)
}

func TestTableInfoSelector(t *testing.T) {
	assert.Equal(t, "#items", TableInfo{ID: "items", Class: "table"}.Selector())
	assert.Equal(t, "table.table.table-striped", TableInfo{Class: " table  table-striped "}.Selector())
	assert.Equal(t, "table", TableInfo{}.Selector())
}

// renderingPage swaps in the rendered document the first time the extractor
// waits for a table, like a detail page that fills its table after load.
type renderingPage struct {
	*browser.FixturePage
	renderedURL string
	rendered    bool
}

func (p *renderingPage) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if !p.rendered {
		p.rendered = true
		if err := p.Navigate(ctx, p.renderedURL); err != nil {
			return err
		}
	}
	return p.FixturePage.WaitVisible(ctx, loc)
}

func TestExtractInventoryIncludesLateTable(t *testing.T) {
	const renderedURL = detailURL + "#rendered"
	fixture := browser.NewFixturePage(map[string]string{
		detailURL:   `<html><body><table class="meta"><tr><td>狀態</td></tr></table></body></html>`,
		renderedURL: `<html><body><table class="meta"><tr><td>狀態</td></tr></table><table class="table table-striped"><tr><td>SKU1</td><td>2</td></tr></table></body></html>`,
	})
	require.NoError(t, fixture.Navigate(context.Background(), detailURL))
	page := &renderingPage{FixturePage: fixture, renderedURL: renderedURL}

	rec := events.NewRecorder()
	rows, err := New(page, tableCandidates, 50*time.Millisecond, rec, nil).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []receipt.TableRow{{Cells: []string{"SKU1", "2"}}}, rows)

	var selectors []string
	for _, e := range rec.OfKind(events.KindTable) {
		selectors = append(selectors, e.Selector)
	}
	assert.Equal(t, []string{"table.meta", "table.table.table-striped"}, selectors)
}

func TestExtractNoTableReportsInventory(t *testing.T) {
	rec := events.NewRecorder()
	x := newExtractor(t, `<html><body><div class="grid"></div></body></html>`, rec)

	_, err := x.Extract(context.Background())
	assert.True(t, apperrors.IsNoTableFound(err))
	assert.Empty(t, rec.OfKind(events.KindTable))
	assert.Len(t, rec.OfKind(events.KindProbe), 3)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  SKU123 ", "SKU123"},
		{"A  B", "A  B"},
		{"\n      4\n    ", "4"},
		{"line one\r\n   line two", "line one line two"},
		{"\t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}
