// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	APIPort int    `env:"API_PORT" envDefault:"4000"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Queue and cache (Redis)
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	// Public base URL used when building result links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:4000"`

	// Session tokens
	JWTSecret string        `env:"JWT_SECRET" envDefault:"devsecret"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`

	// Object storage (S3 / MinIO)
	S3 S3Config

	// Tracing (OpenTelemetry)
	Otel OtelConfig

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting (per authenticated principal)
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"100"`
	RateLimitBurst     int  `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Per client IP on signup and login
	AuthRateLimitRPS   int `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
	AuthRateLimitBurst int `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`

	// Worker pool and queue behaviour
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"2"`
	WorkerQueues      []string      `env:"WORKER_QUEUES" envSeparator:"," envDefault:"tts,stt,cloning"`
	QueueMaxAttempts  int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	QueueClaimIdle    time.Duration `env:"QUEUE_CLAIM_IDLE" envDefault:"2m"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT" envDefault:"60s"`
	MetricsPort       int           `env:"WORKER_METRICS_PORT" envDefault:"9091"`

	// Reconciler re-enqueues queued jobs that never reached the queue.
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 1m"`
	ReconcileGrace    time.Duration `env:"RECONCILE_GRACE" envDefault:"2m"`

	// Processing jobs idle this long are requeued. Must cover claim idle plus a job run.
	ReconcileStaleAfter time.Duration `env:"RECONCILE_STALE_AFTER" envDefault:"10m"`

	// Job completion callbacks
	WebhookSigningSecret string `env:"WEBHOOK_SIGNING_SECRET" envDefault:""`
	WebhookAllowInsecure bool   `env:"WEBHOOK_ALLOW_INSECURE" envDefault:"false"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// S3Config describes the S3-compatible bucket holding audio artifacts.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET" envDefault:"audio-ai"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"S3_ENDPOINT" envDefault:""`
	AccessKey string `env:"S3_ACCESS_KEY" envDefault:""`
	SecretKey string `env:"S3_SECRET_KEY" envDefault:""`
	// Create the bucket on startup when it does not exist (MinIO dev setups).
	CreateBucket bool `env:"S3_CREATE_BUCKET" envDefault:"false"`
}

// OtelConfig holds OpenTelemetry settings. Tracing is off while
// ExporterEndpoint is empty.
type OtelConfig struct {
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:""`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
}

// Enabled reports whether an OTLP endpoint is configured.
func (c OtelConfig) Enabled() bool {
	return c.ExporterEndpoint != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "devsecret" {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be >= 1, got %d", c.QueueMaxAttempts)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", c.WorkerConcurrency)
	}
	if c.QueueClaimIdle <= c.JobTimeout {
		return fmt.Errorf("QUEUE_CLAIM_IDLE (%s) must exceed JOB_TIMEOUT (%s)", c.QueueClaimIdle, c.JobTimeout)
	}
	if c.ReconcileStaleAfter < c.QueueClaimIdle+c.JobTimeout {
		return fmt.Errorf("RECONCILE_STALE_AFTER (%s) must be at least QUEUE_CLAIM_IDLE + JOB_TIMEOUT (%s)",
			c.ReconcileStaleAfter, c.QueueClaimIdle+c.JobTimeout)
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.PublicBaseURL)
	}
	if c.Otel.SamplingRate < 0 || c.Otel.SamplingRate > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be within [0, 1], got %g", c.Otel.SamplingRate)
	}
	return nil
}

// Load reads an optional .env file, parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
