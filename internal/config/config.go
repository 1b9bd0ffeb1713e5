// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPPort         string        `mapstructure:"HTTP_PORT"`
	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	SQLitePath       string        `mapstructure:"SQLITE_PATH"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogFormat        string        `mapstructure:"LOG_FORMAT"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	AutoMarkRead     bool          `mapstructure:"AUTO_MARK_READ"`
	SwipeThresholdPx float64       `mapstructure:"SWIPE_THRESHOLD_PX"`
	ChartCacheSize   int           `mapstructure:"CHART_CACHE_SIZE"`
	FetchTimeout     time.Duration `mapstructure:"FETCH_TIMEOUT"`
	DexcomUsername   string        `mapstructure:"DEXCOM_USERNAME"`
	DexcomPassword   string        `mapstructure:"DEXCOM_PASSWORD"`
	AllowedOrigins   string        `mapstructure:"ALLOWED_ORIGINS"`
}

var keys = []string{
	"HTTP_PORT",
	"STORE_DRIVER",
	"SQLITE_PATH",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"TIMEZONE",
	"AUTO_MARK_READ",
	"SWIPE_THRESHOLD_PX",
	"CHART_CACHE_SIZE",
	"FETCH_TIMEOUT",
	"DEXCOM_USERNAME",
	"DEXCOM_PASSWORD",
	"ALLOWED_ORIGINS",
}

// Load reads configuration from the environment, falling back to .env in the
// working directory and then to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "diabetdash.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("AUTO_MARK_READ", true)
	v.SetDefault("SWIPE_THRESHOLD_PX", 50)
	v.SetDefault("CHART_CACHE_SIZE", 128)
	v.SetDefault("FETCH_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can start a store and a server.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("invalid pool bounds DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.StoreDriver)
	}

	if c.ChartCacheSize <= 0 {
		return fmt.Errorf("CHART_CACHE_SIZE must be positive, got %d", c.ChartCacheSize)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("FETCH_TIMEOUT must not be negative, got %s", c.FetchTimeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMEZONE. Day boundaries of chart windows follow it.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Origins splits ALLOWED_ORIGINS, a comma-separated list of origins allowed to
// open WebSockets. "*" allows any origin; an empty list allows same-origin only.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// HasDexcom reports whether Dexcom Share credentials are configured.
func (c *Config) HasDexcom() bool {
	return c.DexcomUsername != "" && c.DexcomPassword != ""
}
