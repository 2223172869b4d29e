// Package config defines the immutable global configuration for the Tickler
// notification scheduler. It is loaded once at process start (Lambda cold
// start) and never mutated, keeping code and configuration strictly separate
// in the 12-Factor sense.
//
// Values resolve through a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or malformed format aborts startup immediately.
package config

import (
	"time"

	"tickler/internal/types"
)

// SecretString aliases types.SecretString so config fields redact themselves
// in logs and JSON.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the subset
// they need, never the whole struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tickler"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	Security      SecurityConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig

	// Build metadata comes from ldflags, not the environment.
	Build BuildInfo
}

// ServerConfig tunes the ops API HTTP server.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig carries the connection string and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	// AcquireTimeout fails fast when the pool is exhausted.
	AcquireTimeout time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	// HealthCheckPeriod catches dead connections during failover.
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig names the AWS resources and region the service talks to.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	ReminderQueue string `envconfig:"SQS_REMINDERS" validate:"required,url"`
	JobsQueue     string `envconfig:"SQS_JOBS" validate:"required,url"`
	DlqURL        string `envconfig:"SQS_DLQ"`

	// EndpointURL points at LocalStack in development; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig selects the delivery provider and sender identity.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"reminders@tickler.app"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Tickler"`
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"sendgrid" validate:"oneof=sendgrid ses stub"`
	SESConfigSet   string       `envconfig:"SES_CONFIG_SET"`
}

// SecurityConfig holds the ops shared secret and CORS settings.
type SecurityConfig struct {
	// OpsToken authenticates manual job-trigger requests (X-Ops-Token header).
	OpsToken           SecretString `envconfig:"OPS_TOKEN" validate:"required,min=16"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// JobsConfig tunes the scheduled-run machinery.
type JobsConfig struct {
	// LockTTL bounds how long a crashed run can block the next one.
	LockTTL time.Duration `envconfig:"JOB_LOCK_TTL" default:"15m"`
	// RunTimeout caps a single scheduled run end to end.
	RunTimeout time.Duration `envconfig:"JOB_RUN_TIMEOUT" default:"300s"`
	// MaxAttempts is the number of in-process tries per run.
	MaxAttempts int `envconfig:"JOB_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	// RetryDelay is the base backoff between attempts, scaled linearly.
	RetryDelay time.Duration `envconfig:"JOB_RETRY_DELAY" default:"5s"`
	// HistoryRetention is how long job_history rows are kept (default 90 days).
	HistoryRetention time.Duration `envconfig:"JOB_HISTORY_RETENTION" default:"2160h"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Tickler"`
}

// BuildInfo is injected at link time via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType classifies configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv: a required environment variable was absent.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution: fetching secrets from AWS SSM failed.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation: the populated struct failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing: an environment value would not parse into its target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
