// Package report persists the export of one receipt.
//
// The CSV document is the primary artifact. A spreadsheet copy and a console
// summary of the same records are optional companions.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "wmsreceipt/internal/errors"
	"wmsreceipt/internal/receipt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

// bufferSize for buffered file writes (64KB)
const bufferSize = 64 * 1024

// sheetName is the worksheet holding the records in the spreadsheet copy.
const sheetName = "退貨匯入"

// Writer writes report files into one directory.
type Writer struct {
	Dir string
}

// NewWriter creates a writer for dir, "." when empty.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{Dir: dir}
}

// FileName returns wms_<receiptNo><ext>. Path separators in the receipt
// number are replaced so the file always lands in the report directory.
func FileName(receiptNo, ext string) string {
	safe := strings.NewReplacer("/", "_", `\`, "_").Replace(receiptNo)
	if safe == "" || safe == "." || safe == ".." {
		safe = "_"
	}
	return "wms_" + safe + ext
}

// Path returns the full path of the receipt's file with extension ext.
func (w *Writer) Path(receiptNo, ext string) string {
	return filepath.Join(w.Dir, FileName(receiptNo, ext))
}

// Persist writes the CSV document, replacing any earlier export of the same
// receipt.
//
// Returns:
//   - string: Path of the written file
//   - error: WriteError on any I/O failure
func (w *Writer) Persist(receiptNo, content string) (string, error) {
	path := w.Path(receiptNo, ".csv")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", apperrors.NewWriteError(path, err)
	}

	bufferedWriter := bufio.NewWriterSize(file, bufferSize)
	if _, err := bufferedWriter.WriteString(content); err != nil {
		file.Close()
		return "", apperrors.NewWriteError(path, err)
	}
	if err := bufferedWriter.Flush(); err != nil {
		file.Close()
		return "", apperrors.NewWriteError(path, err)
	}
	if err := file.Close(); err != nil {
		return "", apperrors.NewWriteError(path, err)
	}
	return path, nil
}

// WriteXLSX writes the header and records to wms_<receiptNo>.xlsx using the
// streaming writer.
func (w *Writer) WriteXLSX(receiptNo string, records []receipt.Record) (string, error) {
	path := w.Path(receiptNo, ".xlsx")

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", apperrors.NewWriteError(path, err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return "", apperrors.NewWriteError(path, err)
	}

	if err := sw.SetRow("A1", toRow(receipt.Header[:])); err != nil {
		return "", apperrors.NewWriteError(path, err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", apperrors.NewWriteError(path, err)
		}
		if err := sw.SetRow(cell, toRow(r.Strings())); err != nil {
			return "", apperrors.NewWriteError(path, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return "", apperrors.NewWriteError(path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return "", apperrors.NewWriteError(path, err)
	}
	return path, nil
}

func toRow(values []string) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

// PrintSummary renders the SKU and quantity of every record as a table.
func PrintSummary(out io.Writer, receiptNo string, records []receipt.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("Receipt %s", receiptNo))
	t.AppendHeader(table.Row{"#", receipt.Header[receipt.SKUColumn], receipt.Header[receipt.QuantityColumn]})
	for i, r := range records {
		t.AppendRow(table.Row{i + 1, r.SKU(), r.Quantity()})
	}
	t.AppendFooter(table.Row{"", "Total lines", len(records)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
