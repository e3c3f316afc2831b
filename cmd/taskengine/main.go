package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	taskengine "github.com/Swind/go-task-engine"
	"github.com/Swind/go-task-engine/core"
	"github.com/Swind/go-task-engine/internal/config"
	promexporter "github.com/Swind/go-task-engine/observability/prometheus"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	flags := flag.NewFlagSet("taskengine", flag.ExitOnError)
	configPath := flags.String("config", "", "Config file path (YAML)")
	workers := flags.Int("workers", 0, "Worker count (overrides config file)")
	backend := flags.String("backend", "", "Pool backend: goroutine or ants (overrides config file)")
	only := flags.String("scenario", "", "Comma-separated scenarios to run (default: all)")
	serve := flags.Bool("serve", false, "Keep serving /metrics after the scenarios until interrupted (requires metrics enabled)")
	showVersion := flags.Bool("version", false, "Print version and exit")
	flags.Usage = func() { printUsage(flags) }

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("taskengine version %s\n", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *workers > 0 {
		cfg.Pool.Workers = *workers
	}
	if *backend != "" {
		cfg.Pool.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := checkServe(*serve, cfg); err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	selected, err := selectScenarios(*only)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prom.NewRegistry()
	schedCfg := &core.TaskSchedulerConfig{
		Logger:          core.NewSlogLogger(logger),
		HistoryCapacity: cfg.Pool.HistoryCapacity,
	}
	var exporter *promexporter.MetricsExporter
	if cfg.Metrics.Enabled {
		exporter, err = promexporter.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexporter.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		schedCfg.Metrics = exporter
	}

	pool, err := newPool(cfg, schedCfg)
	if err != nil {
		return err
	}
	pool.Start(ctx)
	restore := taskengine.SetDefault(pool)
	defer restore()

	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	if cfg.Metrics.Enabled {
		poller, err := promexporter.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
		if err != nil {
			return fmt.Errorf("failed to create snapshot poller: %w", err)
		}
		poller.AddPool(pool.ID(), pool)
		poller.Start(gctx)
		defer poller.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.ListenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	scenarios := g
	if server != nil {
		// Scenarios get their own group so the server keeps running after they finish.
		scenarios = new(errgroup.Group)
	}
	for _, sc := range selected {
		scenarios.Go(func() error {
			if err := sc.run(gctx, pool, logger.With("scenario", sc.name)); err != nil {
				return fmt.Errorf("scenario %s: %w", sc.name, err)
			}
			return nil
		})
	}

	var runErr error
	if server != nil {
		runErr = scenarios.Wait()
		if runErr == nil && *serve {
			logger.Info("scenarios finished, serving metrics until interrupted")
			<-gctx.Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pool.ShutdownTimeout)
		_ = server.Shutdown(shutdownCtx)
		cancel()
		runErr = multierr.Append(runErr, g.Wait())
	} else {
		runErr = g.Wait()
	}

	stats := pool.Stats()
	logger.Info("pool stats",
		"pool", stats.ID,
		"backend", stats.Backend,
		"completed", stats.Completed,
		"faulted", stats.Faulted,
		"canceled", stats.Canceled,
	)
	if err := pool.StopGraceful(cfg.Pool.ShutdownTimeout); err != nil {
		logger.Warn("graceful stop timed out", "error", err)
	}
	return runErr
}

// gracefulPool is the subset of both pool backends the CLI relies on.
type gracefulPool interface {
	core.ThreadPool
	StopGraceful(timeout time.Duration) error
}

func newPool(cfg *config.Config, schedCfg *core.TaskSchedulerConfig) (gracefulPool, error) {
	switch cfg.Pool.Backend {
	case config.BackendAnts:
		pool, err := taskengine.NewAntsThreadPoolWithConfig(cfg.Pool.ID, cfg.Pool.Workers, schedCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create ants pool: %w", err)
		}
		return pool, nil
	default:
		return taskengine.NewGoroutineThreadPoolWithConfig(cfg.Pool.ID, cfg.Pool.Workers, schedCfg), nil
	}
}

func checkServe(serve bool, cfg *config.Config) error {
	if serve && !cfg.Metrics.Enabled {
		return errors.New("-serve requires metrics to be enabled")
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel().SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func selectScenarios(list string) ([]scenario, error) {
	if strings.TrimSpace(list) == "" {
		return allScenarios, nil
	}
	var out []scenario
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		sc, ok := findScenario(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, sc)
	}
	return out, nil
}

func printUsage(flags *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `taskengine - run task engine scenarios on a configured pool

Usage:
  taskengine [flags]

Scenarios:
`)
	for _, sc := range allScenarios {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", sc.name, sc.description)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flags.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment variables prefixed with %s override the config file.\n", config.EnvPrefix)
}
