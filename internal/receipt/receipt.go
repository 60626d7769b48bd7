// Package receipt turns scraped receipt rows into the fixed return-import CSV.
package receipt

// Constant column values of every record.
const (
	Channel      = "實體-寶雅"
	WarehouseIn  = "是"
	Warehouse    = "藍田"
	ReturnReason = "客人個人因素"
)

// ColumnCount is the width of the import schema.
const ColumnCount = 14

// Column positions of the values taken from the scraped row.
const (
	SKUColumn      = 6
	QuantityColumn = 7
)

// Header is the fixed header line of the import file.
var Header = [ColumnCount]string{
	"通路/平台*",
	"是否入庫*",
	"入庫倉庫*",
	"退貨單號/黑貓訂單*",
	"退件人*",
	"退貨單備註",
	"sku(品號)*",
	"數量*",
	"退貨原因*",
	"系統訂單編號",
	"退件人電話",
	"郵遞區號",
	"退件人地址",
	"逆物流編號",
}

// TableRow is one rendered row of the receipt detail table.
//
// Header is set by the extractor when the row is a column header row
// (inside <thead> or made only of <th> cells).
type TableRow struct {
	Cells  []string
	Header bool
}

// Record is one line of the import file, in Header order.
type Record [ColumnCount]string

// Strings returns the record as a slice for csv and spreadsheet writers.
func (r Record) Strings() []string {
	out := make([]string, ColumnCount)
	copy(out, r[:])
	return out
}

// SKU returns the item code column.
func (r Record) SKU() string { return r[SKUColumn] }

// Quantity returns the quantity column.
func (r Record) Quantity() string { return r[QuantityColumn] }

// NewRecord fills the schema for one line item.
func NewRecord(receiptNo, sku, quantity string) Record {
	return Record{
		Channel,
		WarehouseIn,
		Warehouse,
		receiptNo,
		Channel,
		receiptNo,
		sku,
		quantity,
		ReturnReason,
		"",
		"",
		"",
		"",
		"",
	}
}

// IsDataRow reports whether row is a line item: not a header row, more than
// one cell, and a non-empty first cell.
func IsDataRow(row TableRow) bool {
	return !row.Header && len(row.Cells) > 1 && row.Cells[0] != ""
}

// DataRows filters rows with IsDataRow.
func DataRows(rows []TableRow) []TableRow {
	out := make([]TableRow, 0, len(rows))
	for _, row := range rows {
		if IsDataRow(row) {
			out = append(out, row)
		}
	}
	return out
}
