package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pulse-analytics/pulse/internal/alert"
	"github.com/pulse-analytics/pulse/internal/core/botfilter"
	corecfg "github.com/pulse-analytics/pulse/internal/core/config"
	"github.com/pulse-analytics/pulse/internal/core/identity"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/pulse-analytics/pulse/internal/core/storage/memory"
	"github.com/pulse-analytics/pulse/internal/core/storage/postgres"
	"github.com/pulse-analytics/pulse/internal/funnel"
	"github.com/pulse-analytics/pulse/internal/ingestion"
	"github.com/pulse-analytics/pulse/internal/metrics"
	"github.com/pulse-analytics/pulse/internal/migrations"
	"github.com/pulse-analytics/pulse/internal/query"
	"github.com/pulse-analytics/pulse/internal/realtime"
	"github.com/pulse-analytics/pulse/internal/server"
	"github.com/pulse-analytics/pulse/internal/stream"
	"gopkg.in/natefinch/lumberjack.v2"
)

// stores bundles the persistence ports for the configured backend.
type stores struct {
	events storage.EventStore
	alerts storage.AlertStore
	goals  storage.GoalStore
	health server.HealthChecker
	close  func() error
}

func main() {
	configPath := flag.String("config", "pulse.yaml", "Path to configuration file")
	migrateOnly := flag.Bool("migrate", false, "Apply database migrations and exit")
	flag.Parse()

	// 0. Environment overrides from .env, if present
	_ = godotenv.Load()

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("Loaded config",
		"database", cfg.Database.Type,
		"alerts_enabled", cfg.Alerts.Enabled,
		"redis_stream", cfg.Stream.Redis.Enabled,
		"kafka_stream", cfg.Stream.Kafka.Enabled,
	)

	if *migrateOnly {
		if err := migrate(cfg.Database); err != nil {
			slog.Error("Migration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// 3. Initialize Storage
	st, err := openStores(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	m := metrics.New(true)

	// 4. Identity and bot filtering
	hasher, err := identity.NewHasher(cfg.Identity.Secret)
	if err != nil {
		slog.Error("Failed to initialize identity hasher", "error", err)
		os.Exit(1)
	}
	bots, err := botfilter.New(cfg.Ingestion.BotSignaturesFile)
	if err != nil {
		slog.Error("Failed to load bot signatures", "error", err)
		os.Exit(1)
	}

	// 5. Realtime tracker and the event stream it listens on
	tracker := realtime.NewTracker(
		realtime.NewShardedStore(cfg.Realtime.Shards),
		st.events,
		realtime.Options{SessionTimeout: cfg.Realtime.SessionTimeoutDuration(), Metrics: m},
	)
	fanout := stream.NewFanout(m, tracker)
	if cfg.Stream.Redis.Enabled {
		fanout.Add(stream.NewRedisPublisher(cfg.Stream.Redis.Addr, cfg.Stream.Redis.Stream, cfg.Stream.Redis.MaxLen))
	}
	if cfg.Stream.Kafka.Enabled {
		fanout.Add(stream.NewKafkaPublisher(cfg.Stream.Kafka.Brokers, cfg.Stream.Kafka.Topic))
	}
	defer func() {
		if err := fanout.Close(); err != nil {
			slog.Error("Failed to close event stream", "error", err)
		}
	}()
	slog.Info("Event stream initialized", "sinks", fanout.Names())

	// 6. Ingestion
	ingestionSvc := ingestion.NewService(st.events, hasher, bots, ingestion.Options{
		MaxBatchSize:       cfg.Ingestion.MaxBatchSize,
		ClockSkew:          cfg.Ingestion.ClockSkewDuration(),
		MaxBodySizeMB:      cfg.Server.MaxBodySizeMB,
		RateLimitPerSecond: cfg.Ingestion.RateLimitPerSecond,
		RateLimitBurst:     cfg.Ingestion.RateLimitBurst,
		Publisher:          fanout,
		Metrics:            m,
	})

	// 7. Read side: query engine, funnels, alerts
	querySvc := query.NewService(st.events, query.Options{
		MaxSpanDays:  cfg.Query.MaxSpanDays,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		Metrics:      m,
	})
	funnels := funnel.NewEvaluator(querySvc, st.goals)

	dispatcher := alert.NewDispatcher(alert.DispatcherOptions{
		Timeout:    cfg.Alerts.WebhookTimeoutDuration(),
		MaxRetries: maxRetries(cfg.Alerts.MaxRetries),
		Metrics:    m,
	})
	alertSvc := alert.NewService(alert.NewEvaluator(querySvc), st.alerts, dispatcher, m)
	scheduler := alert.NewScheduler(cfg.Alerts.IntervalDuration(), cfg.Alerts.WorkerCount, st.alerts, alertSvc)

	// 8. Initialize Server
	srvOpts := server.Options{Mode: cfg.Server.Mode}
	if cfg.Metrics.Enabled {
		srvOpts.MetricsPath = cfg.Metrics.Path
		srvOpts.MetricsHandler = m.Handler()
	}
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), st.health, srvOpts)
	ingestionSvc.RegisterRoutes(srv.Engine)
	querySvc.RegisterRoutes(srv.Engine)
	funnels.RegisterRoutes(srv.Engine)
	alertSvc.RegisterRoutes(srv.Engine)
	tracker.RegisterRoutes(srv.Engine)

	// 9. Start background work
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tracker.RunJanitor(ctx, cfg.Realtime.JanitorIntervalDuration()); err != nil {
			slog.Error("Session janitor stopped with error", "error", err)
		}
	}()

	if cfg.Alerts.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Alert scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Alert scheduler disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		cancel()
	}
	wg.Wait()

	slog.Info("Shutdown complete")
}

func openStores(cfg corecfg.DatabaseConfig) (*stores, error) {
	switch cfg.Type {
	case "memory":
		slog.Warn("Using in-memory storage; data is lost on restart")
		mem := memory.NewStore()
		return &stores{events: mem, alerts: mem, goals: mem, health: mem, close: func() error { return nil }}, nil
	case "postgres":
		adapter, err := postgres.NewAdapter(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunMigrations(adapter.DB(), cfg.AutoMigrate); err != nil {
			adapter.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return &stores{
			events: adapter,
			alerts: postgres.NewAlertAdapter(adapter.DB()),
			goals:  postgres.NewGoalAdapter(adapter.DB()),
			health: adapter,
			close:  adapter.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// migrate applies the schema regardless of database.auto_migrate.
func migrate(cfg corecfg.DatabaseConfig) error {
	if cfg.Type != "postgres" {
		return fmt.Errorf("-migrate needs database.type postgres, got %q", cfg.Type)
	}
	adapter, err := postgres.NewAdapter(cfg.DSN, 1, 1)
	if err != nil {
		return err
	}
	defer adapter.Close()

	if err := migrations.RunMigrations(adapter.DB(), true); err != nil {
		return err
	}
	st, err := migrations.Status(adapter.DB())
	if err != nil {
		return err
	}
	slog.Info("Schema ready", "version", st.Version, "dirty", st.Dirty)
	return nil
}

// newLogger builds the process logger. A configured file is rotated by size.
func newLogger(cfg corecfg.LogConfig) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// maxRetries maps the config value onto dispatcher options, where 0 means default.
func maxRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
