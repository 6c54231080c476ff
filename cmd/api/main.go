package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	"github.com/wolfman30/clinic-booking/internal/clock"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/store/dynamo"
	"github.com/wolfman30/clinic-booking/internal/store/memory"
	"github.com/wolfman30/clinic-booking/internal/store/postgres"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
	)

	ctx := context.Background()
	var awsCfg aws.Config
	if needsAWS(cfg) {
		var err error
		awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
	}

	bookings, holds, closeStores, err := setupStores(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to initialize stores", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	redisClient := connectRedis(ctx, cfg, logger)
	source, clinicStore, err := setupClinicSource(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to initialize clinic config", "error", err)
		os.Exit(1)
	}

	metricsHandler, reservationMetrics := setupMetrics()

	svc := reservation.New(reservation.Deps{
		Bookings: bookings,
		Holds:    holds,
		Policies: source,
		Prices:   source,
		Notifier: setupNotifier(cfg, awsCfg, logger),
		Clock:    clock.NewSystem(),
		Logger:   logger,
		Metrics:  reservationMetrics,
	})

	var clinicHandler *clinic.Handler
	if clinicStore != nil {
		clinicHandler = clinic.NewHandler(clinicStore, logger)
	}

	// Setup router
	r := router.New(&router.Config{
		Logger: logger,
		Reservations: handlers.NewReservationHandler(handlers.ReservationConfig{
			Service:           svc,
			Logger:            logger,
			HoldRateLimit:     holdRateLimit(cfg),
			CountdownInterval: cfg.CountdownInterval,
		}),
		ClinicHandler:       clinicHandler,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		RequesterAuthSecret: cfg.AuthJWTSecret,
		MetricsHandler:      metricsHandler,
		RequestMetrics:      reservationMetrics,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	// Create HTTP server. No write timeout: the countdown stream is long lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.StoreBackend == appconfig.BackendDynamoDB ||
		cfg.EmailProvider == "ses" ||
		cfg.NotifyQueueURL != ""
}

// setupStores builds the booking and hold stores for the selected backend.
func setupStores(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (reservation.BookingStore, reservation.HoldStore, func(), error) {
	switch cfg.StoreBackend {
	case appconfig.BackendMemory, "":
		logger.Warn("using in-memory stores; data is lost on restart")
		return memory.NewBookingStore(), memory.NewHoldStore(), func() {}, nil
	case appconfig.BackendPostgres:
		pool, err := connectPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.NewBookingRepository(pool), postgres.NewHoldRepository(pool), pool.Close, nil
	case appconfig.BackendDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg)
		return dynamo.NewBookingTable(client, cfg.DynamoAppointmentsTable, logger),
			dynamo.NewHoldTable(client, cfg.DynamoPendingTable, logger),
			func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func connectPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres backend")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable; using static clinic config", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// baseClinicConfig is the env-derived clinic config used directly without
// Redis and as the initial seed with it.
func baseClinicConfig(cfg *appconfig.Config) (*clinic.Config, error) {
	cc := clinic.DefaultConfig(cfg.ClinicID)
	cc.Timezone = cfg.ClinicTimezone
	if cfg.HoldTTL > 0 {
		cc.HoldTTLSeconds = int(cfg.HoldTTL / time.Second)
	}
	if raw := strings.TrimSpace(cfg.ClinicServicesJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cc.Services); err != nil {
			return nil, fmt.Errorf("parse CLINIC_SERVICES_JSON: %w", err)
		}
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

func setupClinicSource(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*clinic.Source, *clinic.Store, error) {
	base, err := baseClinicConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if redisClient == nil {
		return clinic.NewStaticSource(base), nil, nil
	}
	store := clinic.NewStore(redisClient)
	if seeded, err := store.Seed(ctx, base); err != nil {
		logger.Warn("failed to seed clinic config", "clinic_id", base.ClinicID, "error", err)
	} else if seeded {
		logger.Info("seeded clinic config", "clinic_id", base.ClinicID, "services", len(base.Services))
	}
	return clinic.NewSource(store, base.ClinicID), store, nil
}

func setupNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) reservation.Notifier {
	if cfg.NotifyQueueURL != "" {
		logger.Info("notifications are queued", "queue_url", cfg.NotifyQueueURL)
		return notify.NewQueueNotifier(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL)
	}
	sender := mainconfig.EmailSender(cfg, awsCfg, logger)
	return notify.NewEmailNotifier(sender, notify.NewRenderer(nil), logger)
}

func setupMetrics() (http.Handler, *metrics.ReservationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewReservationMetrics(reg)
}

func holdRateLimit(cfg *appconfig.Config) func(http.Handler) http.Handler {
	if cfg.HoldRateLimitPerMin <= 0 {
		return nil
	}
	burst := cfg.HoldRateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return httpmiddleware.RateLimit(httpmiddleware.PerMinute(cfg.HoldRateLimitPerMin), burst)
}
