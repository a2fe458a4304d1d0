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
const DefaultConfigFile = "transitcore.yaml"

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
	data, err := os.ReadFile(path)
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
	setString(&cfg.Server.Port, "TRANSIT_PORT")
	setString(&cfg.Server.CORSOrigin, "TRANSIT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TRANSIT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TRANSIT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TRANSIT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TRANSIT_PG_MAX_CONN_IDLE_TIME")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Routing.BaseURL, "TRANSIT_ROUTING_URL")
	setString(&cfg.Routing.APIKey, "TRANSIT_ROUTING_API_KEY")
	setString(&cfg.Routing.Profile, "TRANSIT_ROUTING_PROFILE")
	setDuration(&cfg.Routing.Timeout, "TRANSIT_ROUTING_TIMEOUT")
	setInt64(&cfg.Routing.CacheMaxMB, "TRANSIT_ROUTING_CACHE_MB")
	setDuration(&cfg.Routing.CacheTTL, "TRANSIT_ROUTING_CACHE_TTL")
	setInt(&cfg.Routing.BreakerMax, "TRANSIT_ROUTING_BREAKER_MAX")
	setDuration(&cfg.Routing.BreakerReset, "TRANSIT_ROUTING_BREAKER_RESET")
	setDuration(&cfg.Scheduler.RouteTimeout, "TRANSIT_ROUTE_TIMEOUT")
	setString(&cfg.Scheduler.ReplayEvery, "TRANSIT_REPLAY_EVERY")
	setInt(&cfg.Scheduler.ReplayBatch, "TRANSIT_REPLAY_BATCH")
	setString(&cfg.Logging.Level, "TRANSIT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TRANSIT_LOG_SERVICE")
}

// validate checks the assembled config for values that would fail at runtime.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn must not be empty")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url must not be empty")
	}
	if cfg.Scheduler.RouteTimeout <= 0 {
		return errors.New("scheduler.route_timeout must be positive")
	}
	if cfg.Scheduler.ReplayBatch <= 0 {
		return errors.New("scheduler.replay_batch must be positive")
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
