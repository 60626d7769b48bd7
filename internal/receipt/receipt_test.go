package receipt

import (
	"strings"
	"testing"

	apperrors "wmsreceipt/internal/errors"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headerLine = "通路/平台*,是否入庫*,入庫倉庫*,退貨單號/黑貓訂單*,退件人*,退貨單備註,sku(品號)*,數量*,退貨原因*,系統訂單編號,退件人電話,郵遞區號,退件人地址,逆物流編號"

func row(cells ...string) TableRow {
	return TableRow{Cells: cells}
}

func TestIsDataRow(t *testing.T) {
	tests := []struct {
		name string
		row  TableRow
		want bool
	}{
		{"empty row", row(), false},
		{"single cell", row("SKU123"), false},
		{"empty first cell", row("", "4"), false},
		{"two cells", row("SKU123", "4"), true},
		{"extra cells", row("SKU123", "4", "pcs", "note"), true},
		{"header row", TableRow{Cells: []string{"品號", "數量"}, Header: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDataRow(tt.row); got != tt.want {
				t.Errorf("expected %v but got %v", tt.want, got)
			}
		})
	}
}

func TestDataRowsIsIdempotent(t *testing.T) {
	rows := []TableRow{
		{Cells: []string{"header1", "header2"}, Header: true},
		row("SKU1", "1"),
		row("only"),
		row("", "2"),
		row("SKU2", "5", "extra"),
	}

	once := DataRows(rows)
	twice := DataRows(once)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("filtering twice changed the rows (-once +twice):\n%s", diff)
	}
	assert.Len(t, once, 2)
}

func TestBuildCSVScenario(t *testing.T) {
	rows := []TableRow{
		{Cells: []string{"header1", "header2"}, Header: true},
		row("SKU123", "4"),
		row("SKU456", "2"),
	}

	doc, records, err := BuildCSV("R1", rows)
	require.NoError(t, err)
	require.Len(t, records, 2)

	want := strings.Join([]string{
		headerLine,
		"實體-寶雅,是,藍田,R1,實體-寶雅,R1,SKU123,4,客人個人因素,,,,,",
		"實體-寶雅,是,藍田,R1,實體-寶雅,R1,SKU456,2,客人個人因素,,,,,",
	}, "\n") + "\n"

	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestBuildCSVIsDeterministic(t *testing.T) {
	rows := []TableRow{row("A-1", "3", "ignored"), row("B-2", "7")}

	first, _, err := BuildCSV("RCV-9", rows)
	require.NoError(t, err)
	second, _, err := BuildCSV("RCV-9", rows)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecordFieldsRoundTrip(t *testing.T) {
	rows := []TableRow{row("SKU-77", "12", "x", "y")}

	records, err := Builder{}.Records("R42", rows)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Len(t, got.Strings(), ColumnCount)
	assert.Equal(t, "SKU-77", got.SKU())
	assert.Equal(t, "12", got.Quantity())

	want := Record{Channel, WarehouseIn, Warehouse, "R42", Channel, "R42", "SKU-77", "12", ReturnReason, "", "", "", "", ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected record (-want +got):\n%s", diff)
	}
}

func TestBuildCSVBoundaries(t *testing.T) {
	t.Run("single cell row is excluded", func(t *testing.T) {
		_, records, err := BuildCSV("R1", []TableRow{row("SKU1")})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("empty first cell is excluded", func(t *testing.T) {
		_, records, err := BuildCSV("R1", []TableRow{row("", "4")})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("two cell row is accepted", func(t *testing.T) {
		_, records, err := BuildCSV("R1", []TableRow{row("SKU1", "4")})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("alternate rule letting a single cell through is rejected", func(t *testing.T) {
		b := Builder{Keep: func(r TableRow) bool { return len(r.Cells) > 0 && r.Cells[0] != "" }}
		_, _, err := b.Build("R1", []TableRow{row("SKU1", "4"), row("SKU2")})
		require.Error(t, err)
		assert.True(t, apperrors.IsMalformedRow(err))
	})
}

func TestEncodeQuotesFieldsWithCommas(t *testing.T) {
	doc, err := Encode([]Record{NewRecord("R,1", "SKU\"1", "2")})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(doc, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `實體-寶雅,是,藍田,"R,1",實體-寶雅,"R,1","SKU""1",2,客人個人因素,,,,,`, lines[1])
}

func TestEncodeWithoutRecords(t *testing.T) {
	doc, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, headerLine+"\n", doc)
}
