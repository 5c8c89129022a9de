package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Negotiation.MaxRounds != 3 {
		t.Errorf("expected max_rounds 3, got %d", cfg.Negotiation.MaxRounds)
	}
	if cfg.Negotiation.RevisionRetries != 3 {
		t.Errorf("expected revision_retries 3, got %d", cfg.Negotiation.RevisionRetries)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
negotiation:
  max_rounds: 5
  revision_backoff: 250ms
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Negotiation.MaxRounds != 5 {
		t.Errorf("expected max_rounds 5, got %d", cfg.Negotiation.MaxRounds)
	}
	if cfg.Negotiation.RevisionBackoff != 250*time.Millisecond {
		t.Errorf("expected backoff 250ms, got %v", cfg.Negotiation.RevisionBackoff)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("YAKSOK_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("YAKSOK_MAX_ROUNDS", "4")
	t.Setenv("YAKSOK_REVISER_TIMEOUT", "45s")
	t.Setenv("YAKSOK_LOG_LEVEL", "warn")
	t.Setenv("YAKSOK_OTEL_ENABLED", "true")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected env DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Negotiation.MaxRounds != 4 {
		t.Errorf("expected max_rounds 4, got %d", cfg.Negotiation.MaxRounds)
	}
	if cfg.Reviser.Timeout != 45*time.Second {
		t.Errorf("expected reviser timeout 45s, got %v", cfg.Reviser.Timeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if !cfg.Otel.Enabled {
		t.Error("expected otel enabled")
	}
}

func TestEnvIgnoresInvalidValues(t *testing.T) {
	cfg := Defaults()

	t.Setenv("YAKSOK_MAX_ROUNDS", "many")
	t.Setenv("YAKSOK_REVISER_TIMEOUT", "soon")

	loadEnv(&cfg)

	if cfg.Negotiation.MaxRounds != 3 {
		t.Errorf("invalid int must keep the default, got %d", cfg.Negotiation.MaxRounds)
	}
	if cfg.Reviser.Timeout != 30*time.Second {
		t.Errorf("invalid duration must keep the default, got %v", cfg.Reviser.Timeout)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"empty dsn", func(c *Config) { c.Postgres.DSN = "" }},
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }},
		{"empty reviser url", func(c *Config) { c.Reviser.URL = "" }},
		{"zero max rounds", func(c *Config) { c.Negotiation.MaxRounds = 0 }},
		{"zero retries", func(c *Config) { c.Negotiation.RevisionRetries = 0 }},
		{"zero parallelism", func(c *Config) { c.Negotiation.MaxParallelClauses = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFromFullHierarchy(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "yaksok.yaml")

	content := `
server:
  port: "9090"
negotiation:
  max_rounds: 5
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// ENV wins over YAML.
	t.Setenv("YAKSOK_MAX_ROUNDS", "2")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected YAML port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Negotiation.MaxRounds != 2 {
		t.Errorf("expected env to win with 2, got %d", cfg.Negotiation.MaxRounds)
	}
}
