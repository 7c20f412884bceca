// Package cli implements the todochain command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/todochain/internal/control"
	"github.com/vietddude/todochain/internal/core/config"
	"github.com/vietddude/todochain/internal/core/worker"
	"github.com/vietddude/todochain/internal/infra/storage"
	"github.com/vietddude/todochain/internal/infra/telemetry"
)

var (
	cfgPath     string
	isDebug     bool
	metricsAddr string
)

// app is the state shared by subcommands, set up in PersistentPreRunE.
var app struct {
	cfg      *config.AppConfig
	factory  *control.Factory
	server   *control.Server
	shutdown func(context.Context) error
	cancel   context.CancelFunc
}

var rootCmd = &cobra.Command{
	Use:   "todochain",
	Short: "Manage on-chain to-do lists",
	Long: `todochain reads and writes to-do records on EVM rollups (Arbitrum, Optimism, Base),
Solana and Polkadot, and follows the resulting transactions to a final receipt.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
}

func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return err
	}
	app.cfg = cfg

	initLogging(cfg.Logging)

	ctx, cancel := context.WithCancel(cmd.Context())
	app.cancel = cancel
	shutdown, err := telemetry.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		slog.Warn("Tracing disabled", "error", err)
	}
	app.shutdown = shutdown

	store, err := control.OpenReceiptStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("Failed to open receipt store", "error", err)
		return err
	}

	app.factory, err = control.NewFactory(cfg, control.WithReceiptStore(store))
	if err != nil {
		_ = store.Close()
		return err
	}

	if p, ok := store.(storage.ReceiptPruner); ok && cfg.Storage.Retention > 0 {
		go worker.NewPruner(p, cfg.Storage.Retention).Start(ctx)
	}

	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		app.server = control.NewServer(app.factory, addr)
		go func() {
			if err := app.server.Start(); err != nil {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
		slog.Debug("Metrics server listening", "addr", addr)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if app.cancel != nil {
		app.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if app.server != nil {
		if err := app.server.Stop(ctx); err != nil {
			slog.Error("Error stopping metrics server", "error", err)
		}
	}
	if app.factory != nil {
		if err := app.factory.Close(); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}
	if app.shutdown != nil {
		if err := app.shutdown(ctx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}
	return nil
}

func initLogging(cfg config.LoggingConfig) {
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
