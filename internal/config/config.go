// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Edit modes for POST /api/edit.
const (
	EditModeQueue = "queue"
	EditModeMock  = "mock"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache, rate limiting and the dispatch stream (Redis)
	RedisURL      string `env:"REDIS_URL,required"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Public base URL of this API, used to build OAuth redirects
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled    bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitPublicEnabled bool `env:"RATE_LIMIT_PUBLIC_ENABLED" envDefault:"true"`
	RateLimitPublicRPS     int  `env:"RATE_LIMIT_PUBLIC_RPS" envDefault:"10"`
	RateLimitPublicBurst   int  `env:"RATE_LIMIT_PUBLIC_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Edit jobs
	EditMode         string        `env:"EDIT_MODE" envDefault:"queue"`
	EditCostCredits  int           `env:"EDIT_COST_CREDITS" envDefault:"1"`
	SignupCredits    int           `env:"SIGNUP_CREDITS" envDefault:"3"`
	JobTimeout       time.Duration `env:"JOB_TIMEOUT" envDefault:"30m"`
	JobSweepInterval time.Duration `env:"JOB_SWEEP_INTERVAL" envDefault:"1m"`
	DispatchTimeout  time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"2s"`

	// Shared secret the editing backend signs status callbacks with
	BackendCallbackSecret string `env:"BACKEND_CALLBACK_SECRET"`

	// Kafka status reports (disabled when no brokers are set)
	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	KafkaStatusTopic string `env:"KAFKA_STATUS_TOPIC" envDefault:"edit-job-status"`
	KafkaGroupID     string `env:"KAFKA_GROUP_ID" envDefault:"aivideopro-api"`

	// Redis stream status reports
	StatusStreamEnabled bool `env:"STATUS_STREAM_ENABLED" envDefault:"true"`

	// Uploads (S3 presigned PUT URLs, disabled when no bucket is set)
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3PublicBaseURL string        `env:"S3_PUBLIC_BASE_URL"`
	UploadMaxBytes  int64         `env:"UPLOAD_MAX_BYTES" envDefault:"1073741824"`
	UploadURLTTL    time.Duration `env:"UPLOAD_URL_TTL" envDefault:"15m"`

	// Google sign-in (disabled when no client id is set)
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// Webhook delivery worker
	WebhookWorkerEnabled bool          `env:"WEBHOOK_WORKER_ENABLED" envDefault:"true"`
	WebhookPollInterval  time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"5s"`
	WebhookBatchSize     int           `env:"WEBHOOK_BATCH_SIZE" envDefault:"50"`
	WebhookConcurrency   int           `env:"WEBHOOK_CONCURRENCY" envDefault:"8"`
	// Allows http:// and private targets; refused outside development
	WebhookAllowInsecure bool `env:"WEBHOOK_ALLOW_INSECURE" envDefault:"false"`
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
	return splitList(c.CORSAllowedOrigins)
}

// GetKafkaBrokers parses the comma-separated broker list.
func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokers)
}

// UploadsEnabled reports whether presigned uploads are configured.
func (c *Config) UploadsEnabled() bool {
	return c.S3Bucket != ""
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GoogleClientID != ""
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.EditMode {
	case EditModeQueue, EditModeMock:
	default:
		return fmt.Errorf("invalid EDIT_MODE %q: want %q or %q", c.EditMode, EditModeQueue, EditModeMock)
	}
	if c.EditCostCredits < 1 {
		return fmt.Errorf("EDIT_COST_CREDITS must be at least 1, got %d", c.EditCostCredits)
	}
	if c.SignupCredits < 0 {
		return fmt.Errorf("SIGNUP_CREDITS must not be negative, got %d", c.SignupCredits)
	}
	if c.JobTimeout <= 0 || c.JobSweepInterval <= 0 {
		return fmt.Errorf("JOB_TIMEOUT and JOB_SWEEP_INTERVAL must be positive")
	}
	if c.IsProduction() && c.BackendCallbackSecret == "" {
		return fmt.Errorf("BACKEND_CALLBACK_SECRET is required in production")
	}
	if c.WebhookAllowInsecure && !c.IsDevelopment() {
		return fmt.Errorf("WEBHOOK_ALLOW_INSECURE is only allowed in development")
	}
	if c.OAuthEnabled() && c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
