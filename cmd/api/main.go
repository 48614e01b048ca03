package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleethire/internal/api"
	"fleethire/internal/availability"
	"fleethire/internal/config"
	"fleethire/internal/database"
	"fleethire/internal/domain"
	"fleethire/internal/events"
	"fleethire/internal/geo"
	"fleethire/internal/logging"
	"fleethire/internal/metrics"
	"fleethire/internal/models"
	"fleethire/internal/pricing"
	"fleethire/internal/repository"
	"fleethire/internal/service"
	"fleethire/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	bus := events.NewEventBus()
	broker := initBroker(cfg, &logger)
	if c, ok := broker.(io.Closer); ok {
		defer (func() { _ = c.Close() })()
	}
	outboxWorker := worker.NewOutboxWorker(db, broker, redisClient, worker.RetryPolicyFromConfig(cfg.Events), &logger)
	bus.SubscribeAll(outboxWorker.HandleEvent)
	go outboxWorker.Start(ctx)

	catalog := service.NewCatalogService(db, models.CategoriesCacheTTL*time.Second, &logger)
	calculator := pricing.NewCalculator(catalog, pricing.RatesFromConfig(cfg.Pricing))
	checker := availability.NewChecker(db, availability.OptionsFromConfig(cfg.Availability), &logger)
	distance := initDistance(cfg, &logger)
	publisher := events.NewOutbox(db, bus, &logger)

	bookings := service.NewBookingService(db, calculator, checker, distance, publisher,
		service.BookingOptionsFromConfig(cfg.Booking), &logger)
	assignments := service.NewAssignmentService(db, initCooldownStore(cfg, redisClient, &logger), publisher,
		service.AssignmentOptionsFromConfig(cfg.Booking), &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings:    bookings,
		Assignments: assignments,
		Catalog:     catalog,
		Distance:    distance,
		Ready: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if redisClient != nil {
				if err := repository.Ping(ctx, redisClient); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	}, &logger)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncFleet(ctx, cfg.Fleet); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("sync fleet")
		return nil, err
	}
	logger.Info().
		Int("branches", len(cfg.Fleet.Branches)).
		Int("categories", len(cfg.Fleet.Categories)).
		Int("vehicles", len(cfg.Fleet.Vehicles)).
		Int("drivers", len(cfg.Fleet.Drivers)).
		Msg("fleet synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCooldownStore shares assignment cooldowns through redis when it is there.
func initCooldownStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.CooldownStore {
	ttl := time.Duration(models.DefaultCooldownKeyTTL) * time.Second
	if c := 2 * cfg.Booking.AssignmentCooldown; c > ttl {
		ttl = c
	}
	local := repository.NewMemoryCooldownStore(ttl)
	if redisClient == nil {
		return local
	}
	return repository.NewFailoverCooldownStore(repository.NewRedisCooldownStore(redisClient, ttl), local, logger)
}

func initDistance(cfg *config.Config, logger *zerolog.Logger) domain.DistanceEstimator {
	chain := geo.Chain{geo.NewManualEstimator(cfg.Distance.Routes)}
	if cfg.Distance.GoogleAPIKey == "" {
		return chain
	}

	google, err := geo.NewGoogleEstimator(cfg.Distance)
	if err != nil {
		logger.Warn().Err(err).Msg("google maps init failed, using known routes only")
		return chain
	}
	logger.Info().Msg("google maps distance enabled")
	return append(chain, google)
}

func initBroker(cfg *config.Config, logger *zerolog.Logger) worker.Broker {
	if cfg.Events.AMQPURL == "" {
		logger.Info().Msg("no amqp url configured, events are logged only")
		return events.NewLogBroker(logger)
	}
	return events.NewAMQPBroker(cfg.Events, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
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
