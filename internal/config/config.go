// Package config loads the orchestrator, worker, and reaper settings
// surface. Every setting comes from an environment variable with a default;
// the CLI entrypoints' --env-file flag can load a .env file into the
// environment first, and no setting here has its own command-line flag.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServiceConfig holds process-identity and logging settings.
type ServiceConfig struct {
	Name      string
	Port      int
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds cold-store (Postgres) connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds hot-store / broker (Redis) connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OrchestratorConfig holds the orchestrator's tunables.
type OrchestratorConfig struct {
	BatchSize             int64
	BlockMS               time.Duration
	TimeoutCheckInterval  time.Duration
	LockTTL               time.Duration
	DAGCacheMax           int
	DAGCacheTTL           time.Duration
	ExecutionMetadataTTL  time.Duration
}

// WorkerConfig holds the worker runtime's tunables.
type WorkerConfig struct {
	BatchSize              int64
	BlockMS                time.Duration
	MaxRetries             int
	BackoffBase            time.Duration
	BackoffCap             time.Duration
	BackoffJitterFraction  float64
	AckOnMissingHandler    bool
	DrainTimeout           time.Duration
	CircuitFailureThreshold int
	CircuitResetTimeout     time.Duration
}

// ReaperConfig holds the reaper's tunables.
type ReaperConfig struct {
	CheckInterval time.Duration
	MinIdle       time.Duration
	BatchSize     int64
}

// DLQConfig toggles dead-letter behavior.
type DLQConfig struct {
	Enabled bool
}

// Config aggregates every sub-config a process might need; individual
// binaries only read the sections relevant to them.
type Config struct {
	Service      ServiceConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Orchestrator OrchestratorConfig
	Worker       WorkerConfig
	Reaper       ReaperConfig
	DLQ          DLQConfig
}

// Load reads configuration from environment variables, applying the
// defaults this service expects operators to tune per environment.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:      serviceName,
			Port:      getEnvInt("PORT", 8080),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "workflowcore"),
			User:        getEnv("POSTGRES_USER", "workflowcore"),
			Password:    getEnv("POSTGRES_PASSWORD", "workflowcore"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Orchestrator: OrchestratorConfig{
			BatchSize:            int64(getEnvInt("ORCHESTRATOR_BATCH", 10)),
			BlockMS:              getEnvDuration("ORCHESTRATOR_BLOCK", 5*time.Second),
			TimeoutCheckInterval: getEnvDuration("TIMEOUT_CHECK_INTERVAL", 1*time.Second),
			LockTTL:              getEnvDuration("LOCK_TTL", 30*time.Second),
			DAGCacheMax:          getEnvInt("DAG_CACHE_MAX", 256),
			DAGCacheTTL:          getEnvDuration("DAG_CACHE_TTL", 5*time.Minute),
			ExecutionMetadataTTL: getEnvDuration("EXECUTION_METADATA_TTL", 24*time.Hour),
		},
		Worker: WorkerConfig{
			BatchSize:               int64(getEnvInt("WORKER_BATCH", 10)),
			BlockMS:                 getEnvDuration("WORKER_BLOCK", 5*time.Second),
			MaxRetries:              getEnvInt("MAX_RETRIES", 3),
			BackoffBase:             getEnvDuration("BACKOFF_BASE", 1*time.Second),
			BackoffCap:              getEnvDuration("BACKOFF_CAP", 30*time.Second),
			BackoffJitterFraction:   getEnvFloat("BACKOFF_JITTER", 0.5),
			AckOnMissingHandler:     getEnvBool("WORKER_ACK_ON_MISSING_HANDLER", false),
			DrainTimeout:            getEnvDuration("WORKER_DRAIN_TIMEOUT", 5*time.Second),
			CircuitFailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			CircuitResetTimeout:     getEnvDuration("CIRCUIT_RESET_TIMEOUT", 60*time.Second),
		},
		Reaper: ReaperConfig{
			CheckInterval: getEnvDuration("REAPER_CHECK_INTERVAL", 60*time.Second),
			MinIdle:       getEnvDuration("REAPER_MIN_IDLE", 300*time.Second),
			BatchSize:     int64(getEnvInt("REAPER_BATCH_SIZE", 10)),
		},
		DLQ: DLQConfig{
			Enabled: getEnvBool("DLQ_ENABLED", true),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field invariants that environment parsing alone
// can't catch.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("postgres max_conns must be >= min_conns")
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string for pgxpool.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database,
	)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
