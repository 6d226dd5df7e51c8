// Command timelined serves the reception timeline over HTTP.
//
// Snapshots arrive by POST /api/v1/snapshot, from a PostgreSQL table polled
// on an interval, or from Kafka change notifications. Series are cached per
// process and, when Redis is enabled, shared between processes. Bucket
// drill-downs are published to Kafka as row selections.
//
// Usage:
//
//	go run ./cmd/timelined [-config configs/development.yaml]
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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/seriescache"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting timeline service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("timeline service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("timeline service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	checker := health.NewChecker()

	var shared analytics.SharedCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared series cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			shared = seriescache.New(redisClient, cfg.Redis.CacheTTL)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			slog.Info("shared series cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var sink analytics.SelectionSink
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Selections)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 0, m)
		sink = collector
	}

	session := analytics.NewSession(analytics.SessionConfig{
		Schema: dataset.Schema{
			Category: cfg.Analytics.Columns.Category,
			Date:     cfg.Analytics.Columns.Date,
			RowID:    cfg.Analytics.Columns.RowID,
			Archive:  cfg.Analytics.Columns.Archive,
		},
		IndexChunk:  cfg.Analytics.IndexChunk,
		ScanChunk:   cfg.Analytics.ScanChunk,
		MaxBuckets:  cfg.Analytics.MaxBuckets,
		Granularity: calendar.Parse(cfg.Analytics.DefaultGranularity),
		Locale:      calendar.LocaleFor(cfg.Analytics.Locale),
		Scheduler:   coop.Gosched{},
		Metrics:     m,
		Shared:      shared,
		Sink:        sink,
	})
	checker.Register("session", session.HealthCheck)

	var poller *source.Poller
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshot polling disabled", "error", err)
		} else {
			defer db.Close()
			loader, err := source.NewPostgresLoader(db, cfg.Source.Table)
			if err != nil {
				return fmt.Errorf("snapshot source: %w", err)
			}
			poller = source.NewPoller(loader, session, cfg.Source.ReloadInterval)
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := db.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
	}

	var upload []func(http.Handler) http.Handler
	if n := cfg.Server.UploadsPerMin; n > 0 {
		limiter := middleware.NewLimiter(n, time.Minute)
		upload = append(upload, middleware.RateLimit(limiter))
		go sweep(ctx, limiter)
	}

	mux := http.NewServeMux()
	analytics.NewHandler(session, cfg.Server.MaxSnapshotSize).Register(mux, upload...)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if collector != nil {
		collector.Start(gctx)
		defer collector.Close()
	}
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}
	if poller != nil {
		g.Go(func() error {
			// Snapshots can still arrive over HTTP or Kafka, so a source
			// outage only degrades the service.
			if err := poller.Run(gctx); err != nil && gctx.Err() == nil {
				slog.Error("snapshot poller stopped", "error", err)
			}
			return nil
		})
	}
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Snapshots, source.HandleSnapshots(session, poller))
		g.Go(func() error {
			return consumer.Start(gctx)
		})
		slog.Info("snapshot consumer started", "topic", cfg.Kafka.Topics.Snapshots)
	}

	g.Go(func() error {
		slog.Info("timeline service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func sweep(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}
