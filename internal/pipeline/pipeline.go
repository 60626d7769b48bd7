// Package pipeline runs one receipt export from login to delivery.
//
// Flow:
//  1. Validate configuration and the receipt number (no browser yet)
//  2. Open the browser page, closed on every return path
//  3. Login, search, open the detail page, capture receipt-detail.png
//  4. Extract the table and build the CSV
//  5. Persist wms_<receipt>.csv plus the optional spreadsheet and preview
//  6. Deliver by mail, or log the skip when delivery is disabled
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"wmsreceipt/internal/browser"
	"wmsreceipt/internal/config"
	apperrors "wmsreceipt/internal/errors"
	"wmsreceipt/internal/events"
	"wmsreceipt/internal/extract"
	"wmsreceipt/internal/mail"
	"wmsreceipt/internal/preview"
	"wmsreceipt/internal/receipt"
	"wmsreceipt/internal/report"
	"wmsreceipt/internal/wms"

	"github.com/google/uuid"
)

// deliveryTimeout bounds the SMTP exchange.
const deliveryTimeout = 2 * time.Minute

// ErrNoReceipt is returned for an empty receipt number.
var ErrNoReceipt = errors.New("receipt number is required")

// Opener starts the browser page for a run.
type Opener func(ctx context.Context, cfg *config.Config) (browser.Page, error)

// ChromeOpener opens a real Chrome page configured from cfg.
func ChromeOpener(logger *slog.Logger) Opener {
	return func(_ context.Context, cfg *config.Config) (browser.Page, error) {
		return browser.NewChromePage(browser.ChromeOptions{
			Headless:  cfg.Headless,
			OpTimeout: cfg.NavigationTimeout,
			Logger:    logger,
		})
	}
}

// Deps are the collaborators of a run. Open is required; the rest default.
type Deps struct {
	Open   Opener
	Mailer mail.Sender // defaults to an SMTP sender built from the config
	Sink   events.Sink
	Logger *slog.Logger
	Out    io.Writer // console summary, skipped when nil
}

// Result describes a finished run.
type Result struct {
	RunID       string
	ReceiptNo   string
	DetailURL   string
	Screenshot  string
	CSVPath     string
	XLSXPath    string
	PreviewPath string
	Rows        int
	Records     []receipt.Record
	Delivered   bool
}

// Run exports receiptNo. Every failure is returned as one of the typed
// errors of the errors package, wrapped with the failing step.
func Run(ctx context.Context, cfg *config.Config, receiptNo string, deps Deps) (*Result, error) {
	receiptNo = strings.TrimSpace(receiptNo)
	if receiptNo == "" {
		return nil, ErrNoReceipt
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	selectors, err := wms.LoadSelectors(cfg.SelectorsFile)
	if err != nil {
		return nil, err
	}
	candidates, err := selectors.Compile()
	if err != nil {
		return nil, err
	}
	if deps.Open == nil {
		return nil, fmt.Errorf("pipeline: no browser opener")
	}

	res := &Result{RunID: uuid.NewString(), ReceiptNo: receiptNo}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", res.RunID, "receipt", receiptNo)

	sink := deps.Sink
	if sink == nil {
		sink = events.NewLogSink(logger)
	}

	logger.InfoContext(ctx, "🚀 Starting receipt export")
	if cfg.SelectorsFile != "" {
		logger.InfoContext(ctx, "  ✓ Selector profile merged over defaults", "profile", cfg.SelectorsFile)
	}

	page, err := deps.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.WarnContext(ctx, "  ⚠️  Browser close failed", "error", err)
		}
	}()

	nav := wms.NewNavigator(page, cfg, candidates, sink, logger)

	logger.InfoContext(ctx, "🔐 Logging in...")
	if err := nav.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	logger.InfoContext(ctx, "🔎 Searching receipt...")
	if err := nav.Search(ctx, receiptNo); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	res.DetailURL, err = nav.OpenDetail(ctx, receiptNo)
	if err != nil {
		return nil, fmt.Errorf("open detail: %w", err)
	}
	res.Screenshot = nav.CaptureDetail(ctx)

	logger.InfoContext(ctx, "📋 Extracting line items...")
	rows, err := extract.New(page, candidates.Table, cfg.TableProbeTimeout, sink, logger).Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	res.Rows = len(rows)

	doc, records, err := receipt.BuildCSV(receiptNo, rows)
	if err != nil {
		return nil, fmt.Errorf("build csv: %w", err)
	}
	res.Records = records
	sink.Emit(ctx, events.Event{Kind: events.KindRows, Role: "records", Count: len(records)})
	if len(records) == 0 {
		logger.WarnContext(ctx, "  ⚠️  No data rows in table, writing header only", "rows", len(rows))
	}

	if err := persist(ctx, cfg, res, doc, sink, logger); err != nil {
		return nil, err
	}

	if err := deliver(ctx, cfg, res, deps.Mailer, sink, logger); err != nil {
		return res, err
	}

	if deps.Out != nil {
		report.PrintSummary(deps.Out, receiptNo, records)
	}
	logger.InfoContext(ctx, "✅ Receipt export completed", "csv", res.CSVPath, "records", len(records), "delivered", res.Delivered)
	return res, nil
}

func persist(ctx context.Context, cfg *config.Config, res *Result, doc string, sink events.Sink, logger *slog.Logger) error {
	w := report.NewWriter(cfg.OutputDir)

	path, err := w.Persist(res.ReceiptNo, doc)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	res.CSVPath = path
	sink.Emit(ctx, events.Event{Kind: events.KindArtifact, Path: path, Count: len(res.Records)})
	logger.InfoContext(ctx, "  💾 CSV saved", "path", path)

	if cfg.WriteXLSX {
		path, err := w.WriteXLSX(res.ReceiptNo, res.Records)
		if err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		res.XLSXPath = path
		sink.Emit(ctx, events.Event{Kind: events.KindArtifact, Path: path, Count: len(res.Records)})
	}

	if cfg.WritePreview && len(res.Records) > 0 {
		font, err := preview.FindFont(cfg.PreviewFont)
		if err != nil {
			logger.WarnContext(ctx, "  ⚠️  Preview skipped", "error", err)
			return nil
		}
		path := w.Path(res.ReceiptNo, ".png")
		if err := preview.WritePNG(path, res.Records, preview.Options{ReceiptNo: res.ReceiptNo, FontPath: font}); err != nil {
			return fmt.Errorf("persist: %w", apperrors.NewWriteError(path, err))
		}
		res.PreviewPath = path
		sink.Emit(ctx, events.Event{Kind: events.KindArtifact, Path: path, Count: len(res.Records)})
	}
	return nil
}

func deliver(ctx context.Context, cfg *config.Config, res *Result, mailer mail.Sender, sink events.Sink, logger *slog.Logger) error {
	if !cfg.DeliveryEnabled {
		sink.Emit(ctx, events.Event{Kind: events.KindDelivery, Path: res.CSVPath, Detail: "skipped: delivery disabled"})
		logger.InfoContext(ctx, "  ⏭  Email delivery disabled, skipping", "recipient", cfg.EmailTo)
		return nil
	}

	if mailer == nil {
		mailer = &mail.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.EmailUser,
			Password: cfg.EmailPass,
			Name:     "WMS Export",
		}
	}

	attachments := []string{res.CSVPath}
	for _, p := range []string{res.XLSXPath, res.PreviewPath} {
		if p != "" {
			attachments = append(attachments, p)
		}
	}
	msg := mail.Message{
		To:          cfg.EmailTo,
		Subject:     fmt.Sprintf("WMS 退貨匯入 %s", res.ReceiptNo),
		Body:        fmt.Sprintf("Receipt %s: %d line(s) exported.\nDetail page: %s\n", res.ReceiptNo, len(res.Records), res.DetailURL),
		Attachments: attachments,
	}

	logger.InfoContext(ctx, "  ✉ Sending report...", "recipient", cfg.EmailTo)
	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	err := mailer.Send(sendCtx, msg)
	cancel()
	if err != nil {
		sink.Emit(ctx, events.Event{Kind: events.KindDelivery, Path: res.CSVPath, Err: err})
		return fmt.Errorf("deliver: %w", apperrors.NewDeliveryError(cfg.EmailTo, err))
	}

	res.Delivered = true
	sink.Emit(ctx, events.Event{Kind: events.KindDelivery, Path: res.CSVPath, Detail: "sent"})
	logger.InfoContext(ctx, "  ✓ Report sent", "recipient", cfg.EmailTo)
	return nil
}
