// Command analytics aggregates detection events from Kafka and serves the
// totals: outcomes, confidence, latency percentiles, cache hit rate and the
// most diagnosed diseases. When PostgreSQL is reachable the totals are
// snapshotted periodically and restored on start-up.
//
// Usage:
//
//	analytics [-config configs/development.yaml]
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
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("analytics", cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	aggregator := analytics.NewAggregator()
	checker := health.NewChecker()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		checker.Register("postgres", health.PingCheck(nil, true))
	} else {
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		if err := restore(ctx, db, aggregator, cfg.Analytics); err != nil {
			return err
		}
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "", analytics.HandleEvent(aggregator))
	defer consumer.Close()
	checker.Register("kafka", health.PingCheck(consumer.Ping, false))

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(ctx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr, "topic", cfg.Kafka.Topics.AnalyticsEvents)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving analytics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// restore loads the newest snapshot into agg and keeps saving new ones
// until ctx ends. A missing or unreadable snapshot starts from zero.
func restore(ctx context.Context, db *postgres.Client, agg *analytics.Aggregator, cfg config.AnalyticsConfig) error {
	snapshots := analytics.NewSnapshotStore(db)
	if err := snapshots.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating analytics snapshots: %w", err)
	}
	latest, err := snapshots.LatestSnapshot(ctx)
	switch {
	case err != nil:
		slog.Warn("could not load last snapshot, starting from zero", "error", err)
	case latest != nil:
		agg.Restore(*latest)
		slog.Info("analytics restored from snapshot", "detections", latest.TotalDetections)
	}
	snapshots.StartPeriodicSave(ctx, agg, cfg.SnapshotInterval)
	return nil
}
