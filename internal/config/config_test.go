package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "snow_market", cfg.Database.Database)
			assert.Equal(t, 3*time.Second, cfg.Database.LockTimeout)
			assert.Equal(t, "payments_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "payment_events", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "payments_dlx", cfg.RabbitMQ.Queue.DeadLetterExchange)
			assert.Equal(t, "snow-market-api", cfg.App.Name)
			assert.Equal(t, "admin@example.com", cfg.Auth.AdminEmail)
			assert.Equal(t, []string{"L9T", "L9E", "L0P"}, cfg.Geo.PostalPrefixes)
			assert.Equal(t, "ON", cfg.Geo.Province)
			assert.Equal(t, 10, cfg.RateLimit.ClaimsPerMinute)
			assert.Equal(t, time.Minute, cfg.Worker.PayoutInterval)
			assert.Equal(t, 25, cfg.Worker.PayoutBatchSize)
			assert.Equal(t, "http://localhost:3000/onboarding", cfg.Payments.OnboardingRefreshURL)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "env-password")
	t.Setenv("JWT_SECRET", "env-jwt")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("STRIPE_SECRET_KEY", "")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-password", cfg.Database.Password)
	assert.Equal(t, "env-jwt", cfg.Auth.JWTSecret)
	// empty values do not clear the file value
	assert.Equal(t, "whsec_123", cfg.Payments.WebhookSecret)
	assert.Equal(t, "sk_test_123", cfg.Payments.SecretKey)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "snow_market",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "payments_exchange"},
			Queue:    QueueConfig{Name: "payment_events"},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Payments: PaymentsConfig{
			SecretKey:            "sk_test",
			WebhookSecret:        "whsec",
			SuccessURL:           "http://localhost/success",
			CancelURL:            "http://localhost/cancel",
			OnboardingReturnURL:  "http://localhost/dashboard",
			OnboardingRefreshURL: "http://localhost/onboarding",
		},
		Geo:       GeoConfig{City: "Milton", PostalPrefixes: []string{"L9T"}},
		RateLimit: RateLimitConfig{Enabled: true, ClaimsPerMinute: 10},
		Worker: WorkerConfig{
			Concurrency:     2,
			PrefetchCount:   4,
			EventTimeout:    time.Second,
			PayoutInterval:  time.Minute,
			PayoutBatchSize: 10,
			ShutdownTimeout: time.Second,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "invalid server port - too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "invalid server port - too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = -1 }, errString: "invalid database port"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "empty rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "invalid rabbitmq port", mutate: func(c *Config) { c.RabbitMQ.Port = 0 }, errString: "invalid rabbitmq port"},
		{name: "empty exchange", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, errString: "rabbitmq exchange name is required"},
		{name: "empty queue", mutate: func(c *Config) { c.RabbitMQ.Queue.Name = "" }, errString: "rabbitmq queue name is required"},
		{name: "missing stripe key", mutate: func(c *Config) { c.Payments.SecretKey = "" }, errString: "payments secret_key is required"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, errString: "auth jwt_secret is required"},
		{name: "missing webhook secret", mutate: func(c *Config) { c.Payments.WebhookSecret = "" }, errString: "payments webhook_secret is required"},
		{name: "missing redirect urls", mutate: func(c *Config) { c.Payments.CancelURL = "" }, errString: "success_url and cancel_url"},
		{name: "missing onboarding urls", mutate: func(c *Config) { c.Payments.OnboardingRefreshURL = "" }, errString: "onboarding_return_url"},
		{name: "missing city", mutate: func(c *Config) { c.Geo.City = "" }, errString: "geo city is required"},
		{name: "missing postal prefixes", mutate: func(c *Config) { c.Geo.PostalPrefixes = nil }, errString: "postal_prefixes"},
		{name: "rate limit without redis", mutate: func(c *Config) { c.Redis.Addr = "" }, errString: "redis addr is required"},
		{name: "rate limit without budget", mutate: func(c *Config) { c.RateLimit.ClaimsPerMinute = 0 }, errString: "claims_per_minute"},
		{
			name: "rate limit disabled skips redis",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.Redis.Addr = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name: "api-only settings are not required",
			mutate: func(c *Config) {
				c.Server.Port = 0
				c.Auth.JWTSecret = ""
				c.Payments.WebhookSecret = ""
			},
		},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "negative prefetch", mutate: func(c *Config) { c.Worker.PrefetchCount = -1 }, errString: "prefetch_count"},
		{name: "zero event timeout", mutate: func(c *Config) { c.Worker.EventTimeout = 0 }, errString: "event_timeout"},
		{name: "zero payout interval", mutate: func(c *Config) { c.Worker.PayoutInterval = 0 }, errString: "payout_interval"},
		{name: "zero batch size", mutate: func(c *Config) { c.Worker.PayoutBatchSize = 0 }, errString: "payout_batch_size"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
