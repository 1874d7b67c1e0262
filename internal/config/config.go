// Package config loads seedling.yml, .env files and SEEDLING_ environment
// overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Stores selectable with the store key
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
)

// Config represents the seedling configuration
type Config struct {
	Store    string         `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Seed     SeedConfig     `mapstructure:"seed"`

	v *viper.Viper
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SeedConfig represents fixture defaults
type SeedConfig struct {
	DefaultCount int `mapstructure:"default_count"`
}

// Load reads seedling.yml (or .yaml) from dir, after loading dir/.env into
// the environment. Missing files are not an error. Every key can be
// overridden by SEEDLING_<KEY> with dots and colons replaced by underscores.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("store", StoreMemory)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "file:seedling.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "seed:")
	v.SetDefault("log.level", "info")
	v.SetDefault("seed.default_count", 1)

	v.SetConfigName("seedling")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("seedling")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", ":", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FixtureCount returns the raw count configured for a fixture under the key
// "seed:<TypeName>", e.g. "5" or "2-7"
func (c *Config) FixtureCount(typeName string) (string, bool) {
	if c == nil || c.v == nil {
		return "", false
	}
	key := "seed:" + typeName
	if !c.v.IsSet(key) {
		return "", false
	}
	return strings.TrimSpace(c.v.GetString(key)), true
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Store {
	case StoreMemory, StoreSQL, StoreRedis:
	default:
		return fmt.Errorf("store must be one of %s, %s, %s; got: %s", StoreMemory, StoreSQL, StoreRedis, cfg.Store)
	}
	if cfg.Store == StoreSQL && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required for the sql store")
	}
	if cfg.Seed.DefaultCount < 0 {
		return fmt.Errorf("seed.default_count must not be negative, got: %d", cfg.Seed.DefaultCount)
	}
	return nil
}
