package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "yaksok.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "YAKSOK_PORT")
	setString(&cfg.Server.CORSOrigin, "YAKSOK_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "YAKSOK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "YAKSOK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "YAKSOK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "YAKSOK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "YAKSOK_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Reviser.URL, "YAKSOK_REVISER_URL")
	setString(&cfg.Reviser.APIKey, "YAKSOK_REVISER_API_KEY")
	setDuration(&cfg.Reviser.Timeout, "YAKSOK_REVISER_TIMEOUT")
	setInt(&cfg.Negotiation.MaxRounds, "YAKSOK_MAX_ROUNDS")
	setInt(&cfg.Negotiation.RevisionRetries, "YAKSOK_REVISION_RETRIES")
	setDuration(&cfg.Negotiation.RevisionBackoff, "YAKSOK_REVISION_BACKOFF")
	setInt(&cfg.Negotiation.MaxParallelClauses, "YAKSOK_MAX_PARALLEL_CLAUSES")
	setInt64(&cfg.Cache.MaxSizeMB, "YAKSOK_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "YAKSOK_CACHE_TTL")
	setInt(&cfg.Breaker.MaxFailures, "YAKSOK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "YAKSOK_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "YAKSOK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "YAKSOK_LOG_SERVICE")
	setBool(&cfg.Otel.Enabled, "YAKSOK_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "YAKSOK_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Reviser.URL == "" {
		return errors.New("reviser.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Negotiation.MaxRounds < 1 {
		return errors.New("negotiation.max_rounds must be >= 1")
	}
	if cfg.Negotiation.RevisionRetries < 1 {
		return errors.New("negotiation.revision_retries must be >= 1")
	}
	if cfg.Negotiation.MaxParallelClauses < 1 {
		return errors.New("negotiation.max_parallel_clauses must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
