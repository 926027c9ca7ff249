package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/snow-market/internal/accounts"
	"github.com/cuongbtq/snow-market/internal/admin"
	"github.com/cuongbtq/snow-market/internal/api/auth"
	"github.com/cuongbtq/snow-market/internal/api/handler"
	"github.com/cuongbtq/snow-market/internal/api/router"
	"github.com/cuongbtq/snow-market/internal/claim"
	"github.com/cuongbtq/snow-market/internal/config"
	"github.com/cuongbtq/snow-market/internal/geo"
	"github.com/cuongbtq/snow-market/internal/lifecycle"
	"github.com/cuongbtq/snow-market/internal/metrics"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/storage/postgres"
	"github.com/cuongbtq/snow-market/shared/logger"
	"github.com/cuongbtq/snow-market/shared/postgresql"
	"github.com/cuongbtq/snow-market/shared/rabbitmq"
	sharedredis "github.com/cuongbtq/snow-market/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	var redisClient *redis.Client
	if cfg.RateLimit.Enabled {
		redisClient, err = sharedredis.NewClient(context.Background(), &sharedredis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		}, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
	}

	r := initRouter(cfg, appLogger.Logger, dbClient, rabbitClient, redisClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      cfg.App.Name,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		User:             cfg.User,
		Password:         cfg.Password,
		Database:         cfg.Database,
		SSLMode:          cfg.SSLMode,
		ApplicationName:  cfg.ApplicationName,
		StatementTimeout: cfg.StatementTimeout,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  cfg.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRouter wires the services over the Postgres store and builds the Gin router
func initRouter(cfg *config.Config, logger *slog.Logger, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client, redisClient *redis.Client) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	store := postgres.NewStore(dbClient.GetDB(), cfg.Database.LockTimeout, logger)
	stripe := payments.NewStripe(payments.StripeConfig{
		SecretKey:  cfg.Payments.SecretKey,
		Currency:   cfg.Payments.Currency,
		Country:    cfg.Payments.Country,
		SuccessURL: cfg.Payments.SuccessURL,
		CancelURL:  cfg.Payments.CancelURL,
	}, logger)

	origin := geo.Point{Lat: cfg.Geo.OriginLat, Lon: cfg.Geo.OriginLon}
	area := geo.ServiceArea{
		City:           cfg.Geo.City,
		Province:       cfg.Geo.Province,
		PostalPrefixes: cfg.Geo.PostalPrefixes,
		Center:         origin,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := &handler.Dependencies{
		Logger: logger,
		Lifecycle: lifecycle.NewManager(&lifecycle.Config{
			Store:    store,
			Payments: stripe,
			Logger:   logger,
		}),
		Arbitrator: claim.NewArbitrator(store, logger, nil),
		Discovery:  geo.NewDiscovery(store),
		Accounts: accounts.NewService(&accounts.Config{
			Store:                store,
			Payouts:              stripe,
			Area:                 area,
			Logger:               logger,
			OnboardingReturnURL:  cfg.Payments.OnboardingReturnURL,
			OnboardingRefreshURL: cfg.Payments.OnboardingRefreshURL,
		}),
		Admin:         admin.NewService(store, logger),
		Resolver:      auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AdminEmail),
		Events:        rabbitClient,
		Metrics:       metrics.NewCollector(registry),
		WebhookSecret: cfg.Payments.WebhookSecret,
		Geo: handler.GeoDefaults{
			Origin:       origin,
			DefaultLimit: cfg.Geo.DefaultLimit,
		},
	}

	opts := router.Options{}
	if redisClient != nil {
		opts.Limiter = router.NewRateLimiter(redisClient, logger)
		opts.ClaimsPerMinute = cfg.RateLimit.ClaimsPerMinute
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
		if opts.MetricsPath == "" {
			opts.MetricsPath = "/metrics"
		}
	}

	return router.SetupRouter(deps, opts)
}
