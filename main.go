package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"wmsreceipt/internal/config"
	"wmsreceipt/internal/pipeline"

	"github.com/spf13/cobra"
)

// errUsage marks a missing receipt argument; the usage text is already printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wmsreceipt <receipt-no>",
		Short:         "Export a WMS receipt as the return-import CSV",
		Long:          "wmsreceipt logs into the WMS admin portal, opens the given receipt and writes its line items to wms_<receipt-no>.csv, optionally mailing the file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				_ = cmd.Usage()
				return errUsage
			}
			return run(cmd, args[0])
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.Flags().Bool("headless", false, "run Chrome without a window (HEADLESS)")
	cmd.Flags().Bool("send", false, "mail the CSV to EMAIL_TO (EMAIL_ENABLED)")
	cmd.Flags().Bool("xlsx", false, "also write a spreadsheet copy (REPORT_XLSX)")
	cmd.Flags().Bool("preview", false, "also render a PNG preview (REPORT_PREVIEW)")
	cmd.Flags().String("selectors", "", "YAML selector profile merged over the defaults (SELECTORS_FILE)")
	cmd.Flags().StringP("output", "o", "", "directory for report files (OUTPUT_DIR)")
	cmd.Flags().BoolP("verbose", "v", false, "log every selector probe")
	return cmd
}

func run(cmd *cobra.Command, receiptNo string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	_, err = pipeline.Run(cmd.Context(), cfg, receiptNo, pipeline.Deps{
		Open:   pipeline.ChromeOpener(logger),
		Logger: logger,
		Out:    cmd.OutOrStdout(),
	})
	return err
}

// applyFlags overrides the environment only for flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	for name, dst := range map[string]*bool{
		"headless": &cfg.Headless,
		"send":     &cfg.DeliveryEnabled,
		"xlsx":     &cfg.WriteXLSX,
		"preview":  &cfg.WritePreview,
	} {
		if fs.Changed(name) {
			*dst, _ = fs.GetBool(name)
		}
	}
	for name, dst := range map[string]*string{
		"selectors": &cfg.SelectorsFile,
		"output":    &cfg.OutputDir,
	} {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	if verbose, _ := fs.GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
