package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the application's configuration, loaded from environment
// variables (with a .env file loaded first, if present).
type Config struct {
	Port               string
	LogLevel           logrus.Level
	LogFormat          string // "json" or "text"
	GinMode            string
	CORSAllowedOrigins []string
	CronSecret         string
	EnqueueJWTSecret   string // optional: if set, a valid bearer JWT on Enqueue attributes the caller; requests without one are still accepted

	Resend   ResendConfig
	Brevo    BrevoConfig
	SES      SESConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Worker   WorkerConfig
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey       string
	FromEmail    string
	FromName     string
	DailyLimit   int
	PerMinute    int
}

// BrevoConfig holds Brevo API configuration.
type BrevoConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	DailyLimit int
	PerMinute  int
}

// SESConfig holds AWS SES configuration. The access key/secret here are
// the development-mode credentials; in production the Vault resolves
// credentials through the AWS SDK's default credential chain instead
// (see internal/vault) and these fields are unused.
type SESConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	FromEmail       string
	FromName        string
	DailyLimit      int
	PerMinute       int
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	URL                string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    int // in minutes
	RunMigrations      bool
}

// RedisConfig holds Redis connection configuration, shared by the rate
// limiter and the worker's distributed lock.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	Database     int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkerConfig holds the queue-processing worker's tuning knobs.
type WorkerConfig struct {
	BatchSize      int
	Concurrency    int
	SoftDeadline   time.Duration
	LockTTL        time.Duration
}

// Environment reports dev/prod for the Vault's credential resolution path.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Load reads configuration from the environment (and an optional .env
// file) and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8061"),
		LogLevel:  parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		GinMode:   getEnv("GIN_MODE", "release"),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
		}),
		CronSecret:       getEnv("CRON_SECRET", ""),
		EnqueueJWTSecret: getEnv("ENQUEUE_JWT_SECRET", ""),

		Resend: ResendConfig{
			APIKey:     getEnv("RESEND_API_KEY", ""),
			FromEmail:  getEnv("EMAIL_FROM", ""),
			FromName:   getEnv("EMAIL_FROM_NAME", ""),
			DailyLimit: getEnvAsInt("RESEND_DAILY_LIMIT", 100),
			PerMinute:  getEnvAsInt("RESEND_PER_MINUTE", 10),
		},
		Brevo: BrevoConfig{
			APIKey:     getEnv("BREVO_API_KEY", ""),
			FromEmail:  getEnv("EMAIL_FROM", ""),
			FromName:   getEnv("EMAIL_FROM_NAME", ""),
			DailyLimit: getEnvAsInt("BREVO_DAILY_LIMIT", 300),
			PerMinute:  getEnvAsInt("BREVO_PER_MINUTE", 10),
		},
		SES: SESConfig{
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			FromEmail:       getEnv("EMAIL_FROM", ""),
			FromName:        getEnv("EMAIL_FROM_NAME", ""),
			DailyLimit:      getEnvAsInt("SES_DAILY_LIMIT", 100),
			PerMinute:       getEnvAsInt("SES_PER_MINUTE", 10),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxOpenConnections: getEnvAsInt("DB_MAX_OPEN_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			RunMigrations:      getEnvAsBool("RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", ""),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			Database:     getEnvAsInt("REDIS_DATABASE", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT_SECONDS", 5)) * time.Second,
			ReadTimeout:  time.Duration(getEnvAsInt("REDIS_READ_TIMEOUT_SECONDS", 3)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("REDIS_WRITE_TIMEOUT_SECONDS", 3)) * time.Second,
		},
		Worker: WorkerConfig{
			BatchSize:    getEnvAsInt("WORKER_BATCH_SIZE", 100),
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 10),
			SoftDeadline: time.Duration(getEnvAsInt("WORKER_SOFT_DEADLINE_SECONDS", 240)) * time.Second,
			LockTTL:      time.Duration(getEnvAsInt("WORKER_LOCK_TTL_SECONDS", 300)) * time.Second,
		},
	}

	return cfg, cfg.Validate()
}

// Environment reports whether the process should resolve provider
// credentials from plain environment variables (development) or from
// the AWS credential chain (production), per GIN_MODE.
func (c *Config) Environment() Environment {
	if c.GinMode == "release" {
		return EnvProduction
	}
	return EnvDevelopment
}

// Validate checks that the configuration is internally consistent
// enough to start the server. It does not require every provider to be
// configured — the Router simply treats an unconfigured provider as
// unavailable — but it does require at least one provider, a database
// URL and a cron secret. Database reachability is not checked here; the
// connection is pinged when storage opens it.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}

	if c.Resend.APIKey == "" && c.Brevo.APIKey == "" && c.SES.AccessKeyID == "" {
		return fmt.Errorf("config: at least one provider must be configured (RESEND_API_KEY, BREVO_API_KEY, or AWS_ACCESS_KEY_ID)")
	}

	if c.SES.AccessKeyID != "" && c.SES.SecretAccessKey == "" {
		return fmt.Errorf("config: AWS_SECRET_ACCESS_KEY is required when AWS_ACCESS_KEY_ID is set")
	}

	if c.CronSecret == "" {
		return fmt.Errorf("config: CRON_SECRET is required to protect the processing and monitoring endpoints")
	}

	return nil
}

// IsConfigured reports whether a given provider has credentials set.
func (c *Config) IsConfigured(provider string) bool {
	switch provider {
	case "resend":
		return c.Resend.APIKey != ""
	case "brevo":
		return c.Brevo.APIKey != ""
	case "ses":
		return c.SES.AccessKeyID != "" || c.Environment() == EnvProduction
	default:
		return false
	}
}

func parseLogLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
