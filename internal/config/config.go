package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/config"
)

// Payment providers selectable with PAYMENT_PROVIDER.
const (
	ProviderMock        = "mock"
	ProviderMercadoPago = "mercadopago"
)

const environmentDevelopment = "development"

// Config holds all configuration for the order engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort      int    `env:"HTTP_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// CORS origins echoed back outside development
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"cafe"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"cafe_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"cafe"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"500"`

	// Kafka
	KafkaBrokers             []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	NotificationRelayEnabled bool     `env:"NOTIFICATION_RELAY_ENABLED" envDefault:"false"`
	NotificationRelayTopic   string   `env:"NOTIFICATION_RELAY_TOPIC" envDefault:"cafe.payment.notification"`

	// Redis (relay idempotency)
	RedisHost           string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort           int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword       string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTLHours int    `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// Identity
	JWTSecret string `env:"JWT_SECRET" envDefault:""`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:""`

	// Payment provider
	PaymentProvider string `env:"PAYMENT_PROVIDER" envDefault:"mock"`
	MPAccessToken   string `env:"MP_ACCESS_TOKEN" envDefault:""`
	MPBaseURL       string `env:"MP_BASE_URL" envDefault:"https://api.mercadopago.com"`
	MPWebhookSecret string `env:"MP_WEBHOOK_SECRET" envDefault:""`
	// MPSignatureMaxAgeSeconds bounds the ts of a signed notification; 0
	// disables the check.
	MPSignatureMaxAgeSeconds int `env:"MP_SIGNATURE_MAX_AGE_SECONDS" envDefault:"0"`

	// Pending-order expiry; a TTL of 0 disables it.
	PendingOrderTTLMinutes     int  `env:"PENDING_ORDER_TTL_MINUTES" envDefault:"0"`
	ExpirySweepIntervalSeconds int  `env:"EXPIRY_SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	EnablePaymentSimulation    bool `env:"ENABLE_PAYMENT_SIMULATION" envDefault:"false"`

	// Webhook rate limiting; 0 rps disables it.
	WebhookRateLimitRPS   float64 `env:"WEBHOOK_RATE_LIMIT_RPS" envDefault:"20"`
	WebhookRateLimitBurst int     `env:"WEBHOOK_RATE_LIMIT_BURST" envDefault:"40"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom is Load over an explicit environment map.
func LoadFrom(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithEnvironment(cfg, environment); err != nil {
		return nil, fmt.Errorf("load order engine config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.NotificationRelayEnabled && c.NotificationRelayTopic == "" {
		return fmt.Errorf("NOTIFICATION_RELAY_TOPIC is required when the relay is enabled")
	}
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}

	switch c.PaymentProvider {
	case ProviderMock:
	case ProviderMercadoPago:
		if c.MPAccessToken == "" {
			return fmt.Errorf("MP_ACCESS_TOKEN is required for the mercadopago provider")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	if c.MPWebhookSecret == "" {
		return fmt.Errorf("MP_WEBHOOK_SECRET is required")
	}

	if c.EnablePaymentSimulation && !c.IsDevelopment() {
		return fmt.Errorf("ENABLE_PAYMENT_SIMULATION is only allowed in development")
	}
	if c.PendingOrderTTLMinutes < 0 {
		return fmt.Errorf("PENDING_ORDER_TTL_MINUTES must be >= 0, got %d", c.PendingOrderTTLMinutes)
	}
	if c.PendingOrderTTLMinutes > 0 && c.ExpirySweepIntervalSeconds <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL_SECONDS must be > 0, got %d", c.ExpirySweepIntervalSeconds)
	}
	if c.IdempotencyTTLHours <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be > 0, got %d", c.IdempotencyTTLHours)
	}
	if c.WebhookRateLimitRPS < 0 || c.WebhookRateLimitBurst < 0 {
		return fmt.Errorf("webhook rate limit must not be negative")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// IsDevelopment reports whether the engine runs in the development
// environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == environmentDevelopment
}

// SimulationEnabled reports whether the simulate-payment route is mounted.
func (c *Config) SimulationEnabled() bool {
	return c.IsDevelopment() && c.EnablePaymentSimulation
}

// PendingOrderTTL is the expiry window; zero means expiry is off.
func (c *Config) PendingOrderTTL() time.Duration {
	return time.Duration(c.PendingOrderTTLMinutes) * time.Minute
}

// ExpirySweepInterval is the time between expiry sweeps.
func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepIntervalSeconds) * time.Second
}

// IdempotencyTTL is how long relayed deliveries are remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}
