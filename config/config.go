// Package config loads analysis-engine configuration from the
// environment, following the nested-struct-plus-env-helpers pattern used
// throughout this codebase.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	Environment string

	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EngineConfig holds the orchestrator's tunable constants (spec.md §4.5).
type EngineConfig struct {
	LeaseDuration         time.Duration // T_lease
	WaitTimeout           time.Duration // T_wait
	ResultTTL             time.Duration // T_result
	ReferenceDataTTL      time.Duration // time-period expansion cache TTL
	RawQueryTTL           time.Duration // raw query memoization TTL
	MaxRetries            int           // N_retry
	RetryBaseDelay        time.Duration // T_retry_base
	TrendThresholdPercent float64       // ±1% default, configurable
	RecordBatchSize       int
	MaxBuckets            int
}

// SchedulerConfig holds the schedule executor's tunable constants
// (spec.md §4.8).
type SchedulerConfig struct {
	PollInterval   time.Duration // T_poll
	WorkerPoolSize int
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Load loads configuration from environment variables, with a .env file
// loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "freight_analysis"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		Engine: EngineConfig{
			LeaseDuration:         getEnvAsDuration("ENGINE_LEASE_DURATION", 120*time.Second),
			WaitTimeout:           getEnvAsDuration("ENGINE_WAIT_TIMEOUT", 60*time.Second),
			ResultTTL:             getEnvAsDuration("ENGINE_RESULT_TTL", 3600*time.Second),
			ReferenceDataTTL:      getEnvAsDuration("ENGINE_REFERENCE_TTL", 86400*time.Second),
			RawQueryTTL:           getEnvAsDuration("ENGINE_RAW_QUERY_TTL", 900*time.Second),
			MaxRetries:            getEnvAsInt("ENGINE_MAX_RETRIES", 3),
			RetryBaseDelay:        getEnvAsDuration("ENGINE_RETRY_BASE_DELAY", 1*time.Second),
			TrendThresholdPercent: getEnvAsFloat("ENGINE_TREND_THRESHOLD_PERCENT", 1.0),
			RecordBatchSize:       getEnvAsInt("ENGINE_RECORD_BATCH_SIZE", 2000),
			MaxBuckets:            getEnvAsInt("ENGINE_MAX_BUCKETS", 10000),
		},

		Scheduler: SchedulerConfig{
			PollInterval:   getEnvAsDuration("SCHEDULER_POLL_INTERVAL", 60*time.Second),
			WorkerPoolSize: getEnvAsInt("SCHEDULER_WORKER_POOL_SIZE", 4),
		},

		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Addr:    getEnv("METRICS_ADDR", ":9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must be >= 0")
	}
	if c.Engine.MaxBuckets <= 0 {
		return fmt.Errorf("ENGINE_MAX_BUCKETS must be > 0")
	}
	if c.Environment == "production" && c.Database.Password == "" {
		log.Println("WARNING: DB_PASSWORD not set in production")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	if v, err := strconv.ParseBool(valueStr); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	if v, err := time.ParseDuration(valueStr); err == nil {
		return v
	}
	return defaultVal
}
