package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "simulate strategies over historical bars")
	paperMode := flag.Bool("paper", false, "trade strategies against live prices with a simulated exchange")
	planMode := flag.Bool("plan", false, "print each ladder priced at the current (or -reference) price")
	report := flag.Bool("report", false, "list saved backtests, or show one with -run")
	strategies := flag.String("strategy", "all", "comma-separated strategy names, or all")
	reference := flag.Float64("reference", 0, "reference price override for -plan and -backtest (0 = market / first close)")
	runID := flag.String("run", "", "backtest run id for -report")
	export := flag.Bool("export", false, "write JSON reports to backtest.report_dir")
	once := flag.Bool("once", false, "paper: run a single cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics and /health on this address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	setupLogger(cfg.Log)

	registry, err := strategy.Load(cfg.Strategies)
	if err != nil {
		slog.Error("invalid strategy configuration", "err", err)
		os.Exit(1)
	}
	selected, err := registry.Select(splitNames(*strategies)...)
	if err != nil {
		slog.Error("strategy selection failed", "err", err, "available", registry.Names())
		os.Exit(1)
	}

	slog.Info("gridbot starting",
		"config", *configPath,
		"strategies", len(selected),
		"backtest", *backtest,
		"paper", *paperMode,
		"plan", *planMode,
		"report", *report,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		stop := startMetricsServer(cfg.Metrics.Addr)
		defer stop()
	}

	console := notify.NewConsole()

	switch {
	case *planMode:
		err = runPlan(ctx, cfg, selected, console, *reference)
	case *backtest:
		err = runBacktest(ctx, cfg, selected, console, backtestOptions{reference: *reference, export: *export})
	case *paperMode:
		err = runPaper(ctx, cfg, selected, console, *once)
	case *report:
		err = runReport(ctx, cfg, console, *runID, *strategies)
	default:
		slog.Error("no mode selected: use -plan, -backtest, -paper or -report")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("gridbot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("gridbot stopped cleanly")
}

func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
