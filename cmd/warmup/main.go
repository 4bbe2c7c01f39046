package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketdata_backend/internal/app/config"
	"marketdata_backend/internal/app/di"
	"marketdata_backend/internal/platform/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall warmup timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	md, err := di.NewMarketData(ctx, cfg)
	if err != nil {
		slog.Error("failed to build market data service", "error", err)
		os.Exit(1)
	}
	defer func() { _ = md.Close() }()

	if err := md.Orchestrator.Initialize(ctx); err != nil {
		slog.Error("failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	// 引数で銘柄が渡された場合は設定より優先
	codes := cfg.Warmup.Codes
	if flag.NArg() > 0 {
		codes = flag.Args()
	}

	report, err := di.NewWarmup(md, cfg).Run(ctx, codes)
	if err != nil {
		slog.Error("warmup aborted", "error", err, "succeeded", report.Succeeded, "failed", report.Failed)
		os.Exit(1)
	}
	slog.Info("warmup ok", "stockList", report.StockList, "succeeded", report.Succeeded, "failed", report.Failed)
}
