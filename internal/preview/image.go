// Package preview renders the exported records as a PNG table that can be
// attached to the delivery mail.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"wmsreceipt/internal/receipt"

	"github.com/fogleman/gg"
)

// ErrNoFont is returned when no usable TrueType font is installed.
var ErrNoFont = errors.New("no TrueType font found")

// Table styling, rendered at 2x scale
const (
	cellPaddingX  = 20
	cellPaddingY  = 16
	minRowHeight  = 64
	headerHeight  = 80
	fontSize      = 24
	titleFontSz   = 34
	titlePadding  = 100
	footerPadding = 70
	minColWidth   = 100
	maxTextWidth  = 420.0
)

var (
	bgColor         = color.RGBA{R: 245, G: 247, B: 250, A: 255}
	titleColor      = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	headerBgColor   = color.RGBA{R: 15, G: 118, B: 110, A: 255} // Teal
	headerTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	rowEvenColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	rowOddColor     = color.RGBA{R: 240, G: 253, B: 250, A: 255}
	textColor       = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	borderColor     = color.RGBA{R: 203, G: 213, B: 225, A: 255}
	footerColor     = color.RGBA{R: 100, G: 116, B: 139, A: 255}
)

type column struct {
	header   string
	field    func(i int, r receipt.Record) string
	maxWidth float64 // 0 means auto
}

var columns = []column{
	{"#", func(i int, _ receipt.Record) string { return strconv.Itoa(i + 1) }, 0},
	{receipt.Header[receipt.SKUColumn], func(_ int, r receipt.Record) string { return r.SKU() }, maxTextWidth},
	{receipt.Header[receipt.QuantityColumn], func(_ int, r receipt.Record) string { return r.Quantity() }, 0},
	{receipt.Header[2], func(_ int, r receipt.Record) string { return r[2] }, 0},
	{receipt.Header[8], func(_ int, r receipt.Record) string { return r[8] }, maxTextWidth},
}

// Options controls a rendering.
type Options struct {
	ReceiptNo   string
	FontPath    string // TrueType (.ttf) font with CJK glyphs
	GeneratedAt time.Time
}

// FindFont returns explicit when it exists, otherwise the first installed
// candidate able to draw CJK text, falling back to DejaVu Sans.
func FindFont(explicit string) (string, error) {
	var candidates []string
	if explicit != "" {
		candidates = append(candidates, explicit)
	}
	switch runtime.GOOS {
	case "windows":
		winRoot := os.Getenv("WINDIR")
		if winRoot == "" {
			winRoot = `C:\Windows`
		}
		candidates = append(candidates,
			winRoot+`\Fonts\kaiu.ttf`,
			winRoot+`\Fonts\simhei.ttf`,
			winRoot+`\Fonts\arial.ttf`,
		)
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/Library/Fonts/Arial Unicode.ttf",
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
			"/usr/share/fonts/truetype/arphic-gkai00mp/gkai00mp.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/TTF/DejaVuSans.ttf",
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNoFont
}

// wrapText splits text into lines no wider than maxWidth. Text without
// spaces, such as Chinese, is broken between characters.
func wrapText(dc *gg.Context, text string, maxWidth float64) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	if maxWidth <= 0 {
		return []string{text}
	}
	if w, _ := dc.MeasureString(text); w <= maxWidth {
		return []string{text}
	}

	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if w, _ := dc.MeasureString(candidate); w <= maxWidth {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		// The word alone is too wide: break it by runes
		for _, r := range word {
			next := current + string(r)
			if w, _ := dc.MeasureString(next); w > maxWidth && current != "" {
				lines = append(lines, current)
				next = string(r)
			}
			current = next
		}
	}
	if current != "" || len(lines) == 0 {
		lines = append(lines, current)
	}
	return lines
}

// RenderTable draws the records as a table and returns PNG bytes.
func RenderTable(records []receipt.Record, opts Options) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to render")
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}

	// ---- Step 1: Measure ----
	tmpDC := gg.NewContext(1, 1)
	if err := tmpDC.LoadFontFace(opts.FontPath, fontSize); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	colWidths := make([]float64, len(columns))
	for i, col := range columns {
		w, _ := tmpDC.MeasureString(col.header)
		colWidths[i] = max(w+cellPaddingX*2+4, minColWidth)
	}
	for ri, r := range records {
		for i, col := range columns {
			w, _ := tmpDC.MeasureString(col.field(ri, r))
			colWidths[i] = max(colWidths[i], w+cellPaddingX*2+4)
		}
	}
	for i, col := range columns {
		if col.maxWidth > 0 && colWidths[i] > col.maxWidth {
			colWidths[i] = col.maxWidth
		}
	}

	_, lineH := tmpDC.MeasureString("Ay品")
	lineSpacing := lineH + 4

	rowHeights := make([]float64, len(records))
	for ri, r := range records {
		maxLines := 1
		for i, col := range columns {
			maxLines = max(maxLines, len(wrapText(tmpDC, col.field(ri, r), colWidths[i]-cellPaddingX*2)))
		}
		rowHeights[ri] = max(float64(maxLines)*lineSpacing+cellPaddingY*2, minRowHeight)
	}

	// ---- Step 2: Canvas size ----
	var totalWidth, totalRowHeight float64
	for _, w := range colWidths {
		totalWidth += w
	}
	for _, h := range rowHeights {
		totalRowHeight += h
	}

	title := fmt.Sprintf("WMS 退貨匯入 %s  ·  %s", opts.ReceiptNo, opts.GeneratedAt.Format("2006-01-02 15:04"))
	titleDC := gg.NewContext(1, 1)
	if err := titleDC.LoadFontFace(opts.FontPath, titleFontSz); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	titleW, _ := titleDC.MeasureString(title)

	canvasWidth := max(totalWidth, titleW) + 80
	canvasHeight := titlePadding + headerHeight + totalRowHeight + footerPadding

	// ---- Step 3: Draw ----
	dc := gg.NewContext(int(canvasWidth), int(canvasHeight))
	dc.SetColor(bgColor)
	dc.Clear()

	if err := dc.LoadFontFace(opts.FontPath, titleFontSz); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	dc.SetColor(titleColor)
	dc.DrawStringAnchored(title, canvasWidth/2, titlePadding/2, 0.5, 0.5)

	tableX := (canvasWidth - totalWidth) / 2
	tableY := float64(titlePadding)

	dc.SetColor(headerBgColor)
	dc.DrawRoundedRectangle(tableX, tableY, totalWidth, headerHeight, 14)
	dc.Fill()

	if err := dc.LoadFontFace(opts.FontPath, fontSize); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	dc.SetColor(headerTextColor)
	x := tableX
	for i, col := range columns {
		dc.DrawStringAnchored(col.header, x+colWidths[i]/2, tableY+headerHeight/2, 0.5, 0.5)
		x += colWidths[i]
	}

	curY := tableY + headerHeight
	for ri, r := range records {
		rh := rowHeights[ri]

		if ri%2 == 0 {
			dc.SetColor(rowEvenColor)
		} else {
			dc.SetColor(rowOddColor)
		}
		dc.DrawRectangle(tableX, curY, totalWidth, rh)
		dc.Fill()

		dc.SetColor(borderColor)
		dc.SetLineWidth(0.5)
		dc.DrawLine(tableX, curY+rh, tableX+totalWidth, curY+rh)
		dc.Stroke()

		dc.SetColor(textColor)
		x := tableX
		for i, col := range columns {
			wrapped := wrapText(dc, col.field(ri, r), colWidths[i]-cellPaddingX*2)
			startY := curY + (rh-float64(len(wrapped))*lineSpacing)/2 + lineH
			for li, line := range wrapped {
				dc.DrawString(line, x+cellPaddingX, startY+float64(li)*lineSpacing)
			}
			x += colWidths[i]
		}
		curY += rh
	}

	dc.SetColor(borderColor)
	dc.SetLineWidth(1)
	totalTableH := headerHeight + totalRowHeight
	dc.DrawRoundedRectangle(tableX, tableY, totalWidth, totalTableH, 14)
	dc.Stroke()

	dc.SetLineWidth(0.5)
	x = tableX
	for i := 0; i < len(columns)-1; i++ {
		x += colWidths[i]
		dc.DrawLine(x, tableY+headerHeight, x, tableY+totalTableH)
		dc.Stroke()
	}

	dc.SetColor(footerColor)
	dc.DrawStringAnchored(fmt.Sprintf("Total: %d lines", len(records)), canvasWidth/2, canvasHeight-footerPadding/2, 0.5, 0.5)

	// ---- Step 4: Encode ----
	return encodeImage(dc.Image())
}

// WritePNG renders the records into path.
func WritePNG(path string, records []receipt.Record, opts Options) error {
	data, err := RenderTable(records, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func encodeImage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
