package receipt

import (
	"bytes"
	"encoding/csv"
	"fmt"

	apperrors "wmsreceipt/internal/errors"
)

// Builder maps scraped rows to records.
//
// Keep selects the rows that become records. A nil Keep means IsDataRow,
// which is the only place the data-row rule is applied.
type Builder struct {
	Keep func(TableRow) bool
}

// Records converts the kept rows into records for receiptNo.
//
// A kept row with fewer than two cells fails with MalformedRowError.
func (b Builder) Records(receiptNo string, rows []TableRow) ([]Record, error) {
	keep := b.Keep
	if keep == nil {
		keep = IsDataRow
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if !keep(row) {
			continue
		}
		if len(row.Cells) < 2 {
			return nil, apperrors.NewMalformedRowError(i, row.Cells)
		}
		records = append(records, NewRecord(receiptNo, row.Cells[0], row.Cells[1]))
	}
	return records, nil
}

// Build renders the CSV document: the fixed header, then one line per record.
func (b Builder) Build(receiptNo string, rows []TableRow) (string, []Record, error) {
	records, err := b.Records(receiptNo, rows)
	if err != nil {
		return "", nil, err
	}
	doc, err := Encode(records)
	if err != nil {
		return "", nil, err
	}
	return doc, records, nil
}

// BuildCSV builds the document with the default data-row rule.
func BuildCSV(receiptNo string, rows []TableRow) (string, []Record, error) {
	return Builder{}.Build(receiptNo, rows)
}

// Encode writes the header and records as comma separated lines ending in \n.
// Fields holding commas, quotes or line breaks are quoted.
func Encode(records []Record) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header[:]); err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.Strings()); err != nil {
			return "", fmt.Errorf("failed to encode record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
