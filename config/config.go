/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Defaults            - Default()
  2. YAML file           - optional, path given on the command line
  3. .env file           - loaded into the process environment if present
  4. Environment         - APP_PORT, DB_DRIVER, DB_PATH, MONGODB_URI, ...
  5. Command-line flags  - applied by cmd/server

EXAMPLE (config.yaml):
  port: 8080
  env: production
  log_level: info
  database:
    driver: sqlite
    path: ./data/deliveries.db
  capacity:
    near_ratio: "0.8"
    weekly_defaults: [0, 60, 60, 60, 60, 60, 30]
  sweep:
    cron: "0 6 * * *"
    horizon_days: 14
  cache_ttl: 5m
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the top-level application configuration.
type Config struct {
	Port     int    `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	Database DatabaseConfig `yaml:"database"`
	Capacity CapacityConfig `yaml:"capacity"`
	Sweep    SweepConfig    `yaml:"sweep"`

	// CacheTTL is how long recurrence expansions stay memoized. 0 disables
	// the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `yaml:"cors_origins"`

	// RateLimit is the per-IP request budget per second.
	RateLimit int `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type CapacityConfig struct {
	// NearRatio is a decimal string so "0.8" stays exact.
	NearRatio string `yaml:"near_ratio"`

	// WeeklyDefaults seeds the store when it has none, Sunday first.
	WeeklyDefaults []int `yaml:"weekly_defaults"`
}

type SweepConfig struct {
	Cron        string `yaml:"cron"`
	HorizonDays int    `yaml:"horizon_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:     8080,
		Env:      "development",
		LogLevel: "info",
		Database: DatabaseConfig{
			Driver:        DriverSQLite,
			Path:          "./data/deliveries.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "deliveries",
		},
		Capacity: CapacityConfig{NearRatio: "0.8"},
		Sweep: SweepConfig{
			Cron:        "0 6 * * *",
			HorizonDays: 14,
		},
		CacheTTL:    5 * time.Minute,
		CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		RateLimit:   50,
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty and the file exists), a .env file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// optional
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnvString("APP_ENV", c.Env)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.Database.Driver = getEnvString("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnvString("DB_PATH", c.Database.Path)
	c.Database.MongoURI = getEnvString("MONGODB_URI", c.Database.MongoURI)
	c.Database.MongoDatabase = getEnvString("MONGODB_DATABASE", c.Database.MongoDatabase)
	c.Capacity.NearRatio = getEnvString("CAPACITY_NEAR_RATIO", c.Capacity.NearRatio)
	c.Sweep.Cron = getEnvString("SWEEP_CRON", c.Sweep.Cron)

	var err error
	if c.Port, err = getEnvInt("APP_PORT", c.Port); err != nil {
		return err
	}
	if c.Sweep.HorizonDays, err = getEnvInt("SWEEP_HORIZON_DAYS", c.Sweep.HorizonDays); err != nil {
		return err
	}
	if c.RateLimit, err = getEnvInt("RATE_LIMIT", c.RateLimit); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		c.CacheTTL = d
	}
	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
	return nil
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	d := Default()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Env == "" {
		c.Env = d.Env
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Capacity.NearRatio == "" {
		c.Capacity.NearRatio = d.Capacity.NearRatio
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = d.Sweep.Cron
	}
	if c.Sweep.HorizonDays <= 0 {
		c.Sweep.HorizonDays = d.Sweep.HorizonDays
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port: %d out of range", c.Port)
	}
	if _, err := c.NearRatio(); err != nil {
		return err
	}
	if w := c.Capacity.WeeklyDefaults; len(w) > 0 {
		if len(w) != 7 {
			return fmt.Errorf("capacity.weekly_defaults: need 7 values, got %d", len(w))
		}
		for i, v := range w {
			if v < 0 {
				return fmt.Errorf("capacity.weekly_defaults[%d]: negative limit %d", i, v)
			}
		}
	}
	if _, err := cron.ParseStandard(c.Sweep.Cron); err != nil {
		return fmt.Errorf("sweep.cron: %w", err)
	}
	return nil
}

// NearRatio parses Capacity.NearRatio; it must be in (0, 1].
func (c *Config) NearRatio() (decimal.Decimal, error) {
	r, err := decimal.NewFromString(c.Capacity.NearRatio)
	if err != nil {
		return decimal.Zero, fmt.Errorf("capacity.near_ratio: %w", err)
	}
	if !r.IsPositive() || r.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("capacity.near_ratio: %s not in (0, 1]", r)
	}
	return r, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnvString(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
