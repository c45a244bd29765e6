// Package config assembles runtime configuration. Precedence: process
// environment, then a .env file when present, then an optional YAML file
// named by LATTICE_CONFIG, then defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Nonce cache backends.
const (
	NonceBackendMemory = "memory"
	NonceBackendRedis  = "redis"
)

// Config is the full runtime configuration of the server process.
type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	NonceBackend   string `yaml:"nonce_backend"`
	NonceCacheSize int    `yaml:"nonce_cache_size"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	RateSweepInterval time.Duration `yaml:"rate_sweep_interval"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:              8080,
		LogLevel:          "info",
		LogFormat:         "text",
		NonceBackend:      NonceBackendMemory,
		NonceCacheSize:    10000,
		AllowedOrigins:    []string{"*"},
		RateSweepInterval: 10 * time.Minute,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Load builds the effective configuration. A missing .env file is not an
// error; a LATTICE_CONFIG file that fails to parse is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("LATTICE_CONFIG"); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	envInt(&c.Port, "PORT")
	envStr(&c.DatabaseURL, "DATABASE_URL")
	envStr(&c.LogLevel, "LOG_LEVEL")
	envStr(&c.LogFormat, "LOG_FORMAT")
	envStr(&c.NonceBackend, "NONCE_BACKEND")
	envInt(&c.NonceCacheSize, "NONCE_CACHE_SIZE")
	envStr(&c.RedisAddr, "REDIS_ADDR")
	envStr(&c.RedisPassword, "REDIS_PASSWORD")
	envInt(&c.RedisDB, "REDIS_DB")
	envList(&c.AllowedOrigins, "ALLOWED_ORIGINS")
	envDuration(&c.RateSweepInterval, "RATE_SWEEP_INTERVAL")
	envDuration(&c.ReadTimeout, "READ_TIMEOUT")
	envDuration(&c.WriteTimeout, "WRITE_TIMEOUT")
	envDuration(&c.IdleTimeout, "IDLE_TIMEOUT")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.NonceBackend {
	case NonceBackendMemory:
	case NonceBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when NONCE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown nonce backend %q", c.NonceBackend)
	}
	if c.NonceCacheSize <= 0 {
		return fmt.Errorf("nonce cache size must be positive")
	}
	return nil
}

// OriginAllowed reports whether a websocket or CORS origin is permitted.
func (c *Config) OriginAllowed(origin string) bool {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
