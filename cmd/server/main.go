package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablebook/internal/api"
	"tablebook/internal/availability"
	"tablebook/internal/calendar"
	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/engine"
	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/telemetry"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("TABLEBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("level", cfg.Logging.Level).Msg("unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SampleRatio:  1,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var (
		rdb   *redis.Client
		store availability.Store = availability.NewMemoryStore()
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		store = availability.NewFailoverStore(
			availability.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.CacheTTL()),
			availability.NewMemoryStore(),
			&logger,
		)
	}
	builder := availability.NewBuilder(db, db, store, &logger)

	bus := events.NewEventBus()
	bus.SubscribeAll(func(ev events.Event) error {
		logger.Debug().Str("event_type", ev.Type).Str("key", ev.Key).Str("event_id", ev.ID).Msg("event published")
		return nil
	})
	if len(cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, &logger)
		bus.SubscribeAll(sink.Handle)
		go sink.Run(ctx)
	}

	// Initial load + hot reload of the venue configuration.
	settings := config.NewSettingsHolder(nil)
	applyVenue := func(venue *config.VenueConfig) {
		next, err := venue.ToSettings()
		if err != nil {
			logger.Error().Err(err).Msg("failed to convert venue config")
			return
		}
		if err := db.SyncTables(ctx, next.Tables); err != nil {
			logger.Error().Err(err).Msg("failed to sync table catalog")
			return
		}
		settings.Store(next)
		now := time.Now().In(next.Location)
		rebuilt, err := builder.RebuildCached(ctx, next, now)
		if err != nil {
			logger.Error().Err(err).Msg("failed to refresh cached availability")
		}
		if _, err := builder.Cached(ctx, next, calendar.LocalDay(next, now)); err != nil {
			logger.Error().Err(err).Msg("failed to build today's availability")
		}
		logger.Info().Str("venue", next.Name).Int("tables", len(next.Tables)).Int("dates_rebuilt", rebuilt).Msg("venue config applied")
	}
	if err := config.WatchVenue(ctx, cfg.Venue.Path, cfg.WatchInterval(), applyVenue, func(err error) {
		logger.Error().Err(err).Msg("venue config reload rejected, keeping previous")
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to load venue config")
	}

	svc := engine.NewService(db, builder, settings, &logger, engine.WithPublisher(bus))

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	backup := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backup.Start(ctx)

	if cfg.Cache.WarmDays > 0 {
		go startWarmLoop(ctx, builder, settings, cfg.Cache.WarmDays, &logger)
	}

	server := api.NewHTTPServer(svc, api.Config{
		Address:            cfg.Server.Address,
		ReadTimeout:        time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:       time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		APIKey:             cfg.Server.APIKey,
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		CORSOrigins:        cfg.Server.CORSOrigins,
	}, &logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info().Msg("tablebook started")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown error")
	}
	logger.Info().Msg("tablebook stopped")
}

// startWarmLoop keeps today and the next days cached, rebuilding every hour.
func startWarmLoop(ctx context.Context, builder *availability.Builder, settings *config.SettingsHolder, days int, logger *zerolog.Logger) {
	warm := func() {
		current := settings.Current()
		if current == nil {
			return
		}
		today := calendar.LocalDay(current, time.Now().In(current.Location))
		for i := 0; i <= days; i++ {
			if ctx.Err() != nil {
				return
			}
			if _, err := builder.Rebuild(ctx, current, today.AddDate(0, 0, i)); err != nil {
				logger.Error().Err(err).Int("day", i).Msg("cache warm-up failed")
			}
		}
		logger.Debug().Int("days", days).Msg("availability cache warmed")
	}

	warm()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			warm()
		case <-ctx.Done():
			return
		}
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
