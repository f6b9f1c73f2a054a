// Package config loads server settings from flags, environment and an
// optional config file.
//
// Precedence, highest first: flags set on the command line, environment
// variables (PASTE_ prefix, dots become underscores), the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ephemeral-paste/internal/storage/redisstore"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreBolt   = "bolt"
	StoreSQLite = "sqlite"
)

// Config is the full server configuration.
type Config struct {
	Addr            string            `mapstructure:"addr"`
	BaseURL         string            `mapstructure:"base_url"`
	MaxBytes        int               `mapstructure:"max_bytes"`
	Store           string            `mapstructure:"store"`
	DataPath        string            `mapstructure:"data"`
	JanitorInterval time.Duration     `mapstructure:"janitor_interval"`
	TestMode        bool              `mapstructure:"test_mode"`
	Redis           redisstore.Config `mapstructure:"redis"`
	Log             LogConfig         `mapstructure:"log"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load parses args (without the program name) and merges env and file settings.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PASTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Plain names used by existing deployments.
	if err := v.BindEnv("redis.url", "PASTE_REDIS_URL", "REDIS_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("test_mode", "PASTE_TEST_MODE", "TEST_MODE"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pasted", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, toml or json)")
	fs.String("addr", ":8080", "listen address")
	fs.String("base_url", "", "canonical base URL (optional)")
	fs.Int("max_bytes", 1_048_576, "maximum paste size in bytes")
	fs.String("store", StoreRedis, "storage backend: redis, bolt or sqlite")
	fs.String("data", "./pastes.db", "path to data file for bolt and sqlite")
	fs.Duration("janitor_interval", time.Minute, "sweep interval for backends without native expiry")
	fs.Bool("test_mode", false, "honour the x-test-now-ms header (never enable in production)")
	fs.String("redis.addr", "localhost:6379", "redis host:port")
	fs.String("redis.url", "", "redis URL, overrides redis.addr")
	fs.String("log.level", "info", "log level: debug, info, warn, error")
	fs.String("log.format", "text", "log format: text or json")
	return fs
}

func setDefaults(v *viper.Viper) {
	rd := redisstore.DefaultConfig()
	v.SetDefault("redis.password", rd.Password)
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.key_prefix", rd.KeyPrefix)
}

// Validate rejects unusable settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.MaxBytes <= 0 {
		return errors.New("max_bytes must be positive")
	}
	if c.JanitorInterval <= 0 {
		return errors.New("janitor_interval must be positive")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.New("base_url must include scheme and host")
		}
	}
	switch c.Store {
	case StoreRedis:
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	case StoreBolt, StoreSQLite:
		if c.DataPath == "" {
			return fmt.Errorf("data path is required for store %q", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
