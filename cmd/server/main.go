package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/campusquest/companion/internal/backend"
	"github.com/campusquest/companion/internal/config"
	"github.com/campusquest/companion/internal/database"
	"github.com/campusquest/companion/internal/flow"
	"github.com/campusquest/companion/internal/handler/health"
	"github.com/campusquest/companion/internal/metrics"
	"github.com/campusquest/companion/internal/migrations"
	"github.com/campusquest/companion/internal/server"
	"github.com/campusquest/companion/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Challenge cache ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening challenge cache: %w", err)
	}
	defer db.Close()

	version, err := migrations.Run(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	cache := store.NewChallenges(db)
	logger.Info("challenge cache ready", "path", cfg.DBPath, "schema_version", version)

	// --- Campus backend ---
	api, err := backend.New(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		return fmt.Errorf("configuring backend client: %w", err)
	}
	logger.Info("campus backend", "url", api.BaseURL())

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Flows ---
	broker := server.NewBroker()
	flows := server.NewRegistry(server.FlowConfig{
		Submitter: api,
		Statuses:  cache,
		Timeouts: flow.Timeouts{
			Geo:        cfg.GeoTimeout,
			Scan:       cfg.ScanTimeout,
			PhotoReady: cfg.PhotoReadyTimeout,
		},
		FrameRate: cfg.FrameRate,
	}, broker, m, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, server.Deps{
		Logger:  logger,
		Cache:   cache,
		Backend: api,
		Flows:   flows,
		Broker:  broker,
		Metrics: m,
		Health: map[string]health.Checker{
			"cache":   health.CheckFunc(cache.Ping),
			"backend": health.CheckFunc(api.Ping),
		},
		OAuthClient: cfg.OAuthClient,
		UIDir:       cfg.UIDir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
