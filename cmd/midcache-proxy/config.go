package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Backend names recognized by the proxy configuration.
const (
	BackendPersistent = "persistent"
	BackendInMemory   = "in-memory"
	BackendRedis      = "redis"
	BackendSQLite     = "sqlite"
)

// ProxyConfig is the midcache-proxy configuration, loaded from a config
// file and MIDCACHE_* environment variables.
type ProxyConfig struct {
	Listen   string `mapstructure:"listen"`
	Upstream string `mapstructure:"upstream"`
	Backend  string `mapstructure:"backend"`

	Storage struct {
		Path       string        `mapstructure:"path"`
		SQLitePath string        `mapstructure:"sqlite_path"`
		RedisAddr  string        `mapstructure:"redis_addr"`
		RedisTTL   time.Duration `mapstructure:"redis_ttl"`
		MaxBytes   int64         `mapstructure:"max_bytes"`
		MaxAge     time.Duration `mapstructure:"max_age"`
	} `mapstructure:"storage"`

	Cache struct {
		Mode      string `mapstructure:"mode"`
		Shared    bool   `mapstructure:"shared"`
		Heuristic bool   `mapstructure:"heuristic"`
	} `mapstructure:"cache"`

	Retry struct {
		Enabled     bool `mapstructure:"enabled"`
		MaxAttempts int  `mapstructure:"max_attempts"`
	} `mapstructure:"retry"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// loadConfig reads the configuration from path (or the default search
// locations when path is empty) with environment variable overrides.
func loadConfig(path string) (*ProxyConfig, error) {
	v := viper.New()

	v.SetDefault("listen", ":8080")
	v.SetDefault("backend", BackendInMemory)
	v.SetDefault("storage.path", "./midcache-data")
	v.SetDefault("storage.sqlite_path", "./midcache.db")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.max_bytes", int64(64<<20))
	v.SetDefault("cache.mode", "default")
	v.SetDefault("cache.shared", true)
	v.SetDefault("cache.heuristic", false)
	v.SetDefault("retry.enabled", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("midcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/midcache")
	}
	v.SetEnvPrefix("MIDCACHE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file falls back to defaults and environment;
		// an unreadable one is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg ProxyConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *ProxyConfig) error {
	if cfg.Upstream == "" {
		return fmt.Errorf("upstream origin URL is required")
	}
	switch cfg.Backend {
	case BackendPersistent, BackendInMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want persistent, in-memory, redis, or sqlite)", cfg.Backend)
	}
	return nil
}
