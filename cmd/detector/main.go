// Command detector serves the plant disease detection API.
//
// It matches free-text symptom descriptions against the disease catalogue,
// resolves image classifier predictions to catalogue records, keeps a
// detection history and publishes one analytics event per detection.
//
// Usage:
//
//	go run ./cmd/detector [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/access"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/catalogue"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/detection"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/history"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("detector", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting detector service",
		"port", cfg.Server.Port,
		"catalogue_driver", cfg.Catalogue.Driver,
		"severity_weighting", cfg.Matcher.EnableSeverityWeighting,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vocab, err := vocabulary.Load(cfg.Matcher.VocabularyPath)
	if err != nil {
		slog.Error("failed to load vocabulary", "error", err)
		os.Exit(1)
	}
	slog.Info("vocabulary loaded",
		"synonyms", vocab.Synonyms.Len(),
		"stop_words", vocab.StopWords.Len(),
		"severity_terms", vocab.Severity.Len(),
	)

	m := metrics.New()
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	var db *postgres.Client
	if cfg.Catalogue.Driver == "postgres" {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	store, err := openCatalogue(ctx, cfg, db)
	if err != nil {
		slog.Error("failed to open catalogue", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var hist detection.History
	if db != nil {
		pgHistory := history.NewPostgres(db)
		if err := pgHistory.Migrate(ctx); err != nil {
			slog.Error("failed to migrate detection history", "error", err)
			os.Exit(1)
		}
		hist = pgHistory
	} else {
		hist = history.NewMemory(cfg.Detection.HistoryLimit * 10)
		slog.Info("detection history kept in memory")
	}

	var resultCache *detection.Cache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, detection caching disabled", "error", err)
	} else {
		defer func() {
			stats := redisClient.PoolStats()
			slog.Info("redis pool", "hits", stats.Hits, "misses", stats.Misses, "timeouts", stats.Timeouts)
			redisClient.Close()
		}()
		variant := detection.Variant(cfg.Matcher.EnableSeverityWeighting, cfg.Matcher.ConfidenceThreshold)
		resultCache = detection.NewCache(redisClient, cfg.Redis.CacheTTL, variant, m)
		slog.Info("detection cache enabled", "addr", cfg.Redis.Addr, "namespace", cfg.Redis.Namespace, "ttl", cfg.Redis.CacheTTL)
	}

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer func() {
			collector.Close()
			if n := collector.Dropped(); n > 0 {
				slog.Warn("analytics events dropped", "count", n)
			}
		}()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	engine := matcher.New(
		keywords.NewExtractor(vocab, cfg.Matcher.MinKeywordLength),
		scoring.New(vocab, scoring.Config{EnableSeverityWeighting: cfg.Matcher.EnableSeverityWeighting}),
		matcher.Config{
			ConfidenceThreshold:   cfg.Matcher.ConfidenceThreshold,
			AlternativeScoreFloor: cfg.Matcher.AlternativeScoreFloor,
			MaxAlternatives:       cfg.Matcher.MaxAlternatives,
		},
	)

	deps := detection.Deps{
		Catalogue: store,
		Matcher:   engine,
		Cache:     resultCache,
		History:   hist,
		Metrics:   m,
	}
	if collector != nil {
		deps.Tracker = collector
	}
	svc := detection.NewService(deps, detection.Config{
		MaxDescriptionLength: cfg.Detection.MaxDescriptionLength,
		MaxBatchSize:         cfg.Detection.MaxBatchSize,
		MaxConcurrent:        cfg.Detection.MaxConcurrent,
		HistoryLimit:         cfg.Detection.HistoryLimit,
		FetchTimeout:         cfg.Catalogue.FetchTimeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   50 * time.Millisecond,
			MaxDelay:       500 * time.Millisecond,
			Multiplier:     2,
			JitterFraction: 0.1,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		LogSpans:       cfg.Tracing.Enabled,
		SpanSampleRate: cfg.Tracing.SampleRate,
	})

	// Each replica reads catalogue updates in its own group so every local
	// view of the cache is invalidated.
	updatesProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer updatesProducer.Close()
	if resultCache != nil {
		group := fmt.Sprintf("%s-detector-%s", cfg.Kafka.ConsumerGroup, replicaID())
		updates := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, group, svc.HandleCatalogueEvent())
		defer updates.Close()
		go func() {
			if err := updates.Start(ctx); err != nil {
				slog.Error("catalogue update consumer error", "error", err)
			}
		}()
		slog.Info("listening for catalogue updates", "topic", cfg.Kafka.Topics.CacheInvalidate, "group", group)
	}

	notify := func(ctx context.Context, e catalogue.Entry) {
		if resultCache != nil {
			if _, err := svc.InvalidateCache(ctx); err != nil {
				logger.FromContext(ctx).Warn("local cache invalidation failed", "error", err)
			}
		}
		event := analytics.CatalogueEvent{Disease: e.Name, Source: "api", Count: 1, Timestamp: time.Now().UTC()}
		if err := updatesProducer.Publish(ctx, kafka.Event{
			Key:   e.Name,
			Type:  string(analytics.EventCatalogueUpdated),
			Value: event,
		}); err != nil {
			logger.FromContext(ctx).Warn("failed to announce catalogue update", "disease", e.Name, "error", err)
		}
		if collector != nil {
			collector.TrackCatalogue(event)
		}
	}

	checker := health.NewChecker()
	checker.Register("catalogue", health.PingCheck(catalogueProbe(store), false))
	if db != nil {
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, true))
	} else {
		checker.Register("redis", health.PingCheck(nil, true))
	}
	checker.Register("kafka", health.PingCheck(updatesProducer.Ping, true))

	mux := http.NewServeMux()
	detection.NewHandler(svc, cfg.Detection.HistoryLimit/5).Register(mux)
	catalogue.NewHandler(store, notify).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Access.RateLimit > 0 {
		limiter := access.NewLimiter(ctx, cfg.Access.RateWindow)
		chain = access.RateLimit(limiter, cfg.Access.RateLimit)(chain)
	}
	if len(cfg.Access.CORSOrigins) > 0 {
		cors := access.DefaultCORSConfig()
		cors.AllowOrigins = cfg.Access.CORSOrigins
		chain = access.CORS(cors)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("detector service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("detector service stopped")
}

// openCatalogue opens the configured store and applies the seed file, if
// any. db is only used by the postgres driver.
func openCatalogue(ctx context.Context, cfg *config.Config, db *postgres.Client) (catalogue.Store, error) {
	var store catalogue.Store
	switch cfg.Catalogue.Driver {
	case "postgres":
		pg := catalogue.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		store = pg
	case "sqlite":
		s, err := catalogue.OpenSQLite(ctx, cfg.Catalogue.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		mem, err := catalogue.NewMemory()
		if err != nil {
			return nil, err
		}
		store = mem
	}

	if cfg.Catalogue.SeedPath == "" {
		return store, nil
	}
	entries, err := catalogue.LoadSeed(cfg.Catalogue.SeedPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := catalogue.Seed(ctx, store, entries); err != nil {
		store.Close()
		return nil, fmt.Errorf("seeding catalogue: %w", err)
	}
	slog.Info("catalogue seeded", "path", cfg.Catalogue.SeedPath, "diseases", len(entries))
	return store, nil
}

// catalogueProbe pings stores that hold a connection and otherwise checks
// that the catalogue can be read.
func catalogueProbe(store catalogue.Store) func(context.Context) error {
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping
	}
	return func(ctx context.Context) error {
		_, err := store.ActiveDiseases(ctx)
		return err
	}
}

func replicaID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return ulid.Make().String()
}
