// Package config loads runtime configuration for the CRM server.
// Values come from an optional YAML file, overridden by environment
// variables (MINICRM_* prefix). A .env file is loaded first when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Paging    PagingConfig    `yaml:"paging"`
	LogLevel  string          `yaml:"log_level" env:"MINICRM_LOG_LEVEL"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"MINICRM_SERVER_HOST"`
	Port            int           `yaml:"port" env:"MINICRM_SERVER_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MINICRM_SERVER_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min" env:"MINICRM_SERVER_RATE_LIMIT_PER_MIN"`
}

// DatabaseConfig selects the persistence backend. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url" env:"MINICRM_DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"MINICRM_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"MINICRM_DATABASE_MAX_IDLE_CONNS"`
	Migrate      bool   `yaml:"migrate" env:"MINICRM_DATABASE_MIGRATE"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	Secret          string        `yaml:"secret" env:"MINICRM_AUTH_SECRET"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"MINICRM_AUTH_ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"MINICRM_AUTH_REFRESH_TOKEN_TTL"`
}

// CacheConfig selects the cache backend. An empty Redis address selects
// the in-process cache.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr" env:"MINICRM_CACHE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"MINICRM_CACHE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"MINICRM_CACHE_REDIS_DB"`
}

// AnalyticsConfig controls aggregate caching.
type AnalyticsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env:"MINICRM_ANALYTICS_CACHE_TTL"`
}

// PagingConfig controls list pagination bounds.
type PagingConfig struct {
	DefaultPageSize int `yaml:"default_page_size" env:"MINICRM_PAGING_DEFAULT_PAGE_SIZE"`
	MaxPageSize     int `yaml:"max_page_size" env:"MINICRM_PAGING_MAX_PAGE_SIZE"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitPerMin: 300,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			Migrate:      true,
		},
		Auth: AuthConfig{
			Secret:          "dev-secret-change-me",
			AccessTokenTTL:  30 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Analytics: AnalyticsConfig{
			CacheTTL: 60 * time.Second,
		},
		Paging: PagingConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path (skipped when empty or missing)
// and applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	// Best effort: a missing .env is the normal case outside dev.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Paging.DefaultPageSize <= 0 || c.Paging.MaxPageSize < c.Paging.DefaultPageSize {
		return fmt.Errorf("invalid paging bounds")
	}
	return nil
}

// ListenAddr returns the host:port pair for the HTTP listener.
func (c ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
