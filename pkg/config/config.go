package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ingest-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (database password, redis password) must only come from the environment.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Ingestion pipeline limits and thresholds
	Ingest IngestConfig `yaml:"ingest"`

	// Database configuration (PostgreSQL, ingestion history)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional result cache keyed by content hash)
	Redis RedisConfig `yaml:"redis"`
}

// IngestConfig holds pipeline limits. Defaults implement the documented
// behavior; operators tighten them for constrained deployments.
type IngestConfig struct {
	// MaxFileSizeBytes rejects inputs before any parse buffer is allocated.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" env:"INGEST_MAX_FILE_SIZE_BYTES" env-default:"209715200"`
	// MaxColumns is a hard ceiling on post-processed column count.
	MaxColumns int `yaml:"max_columns" env:"INGEST_MAX_COLUMNS" env-default:"1000"`
	// Workers bounds concurrent entry processing in batch calls.
	Workers int `yaml:"workers" env:"INGEST_WORKERS" env-default:"4"`
	// MissingValuePolicy is "warn" (default) or "drop" for columns with more
	// than half of their values missing.
	MissingValuePolicy string `yaml:"missing_value_policy" env:"INGEST_MISSING_VALUE_POLICY" env-default:"warn"`
	// NumericThreshold is the fraction of non-null values that must parse as
	// numbers for a column to convert.
	NumericThreshold float64 `yaml:"numeric_threshold" env:"INGEST_NUMERIC_THRESHOLD" env-default:"0.8"`
	// TimestampThreshold is the fraction of non-null values that must parse
	// as date/times for a column to convert.
	TimestampThreshold float64 `yaml:"timestamp_threshold" env:"INGEST_TIMESTAMP_THRESHOLD" env-default:"0.7"`
}

// DatabaseConfig holds PostgreSQL configuration for the ingestion history
// store. History is disabled when Host is empty.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ingest"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ingest_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis cache configuration. Cache is disabled when Host
// is empty.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// TTLSeconds bounds how long cached ingest results live.
	TTLSeconds int `yaml:"ttl_seconds" env:"REDIS_TTL_SECONDS" env-default:"3600"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot honor.
func (c *Config) Validate() error {
	if c.Ingest.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("ingest.max_file_size_bytes must be positive, got %d", c.Ingest.MaxFileSizeBytes)
	}
	if c.Ingest.MaxColumns <= 0 {
		return fmt.Errorf("ingest.max_columns must be positive, got %d", c.Ingest.MaxColumns)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	switch c.Ingest.MissingValuePolicy {
	case "warn", "drop":
	default:
		return fmt.Errorf("ingest.missing_value_policy must be warn or drop, got %q", c.Ingest.MissingValuePolicy)
	}
	if c.Ingest.NumericThreshold <= 0 || c.Ingest.NumericThreshold > 1 {
		return fmt.Errorf("ingest.numeric_threshold must be in (0, 1], got %g", c.Ingest.NumericThreshold)
	}
	if c.Ingest.TimestampThreshold <= 0 || c.Ingest.TimestampThreshold > 1 {
		return fmt.Errorf("ingest.timestamp_threshold must be in (0, 1], got %g", c.Ingest.TimestampThreshold)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
