// Package config defines service configuration structures and loading hooks.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseURL is the PostgreSQL DSN. Empty selects the in-memory store.
	DatabaseURL string `koanf:"database_url"`

	DBMaxOpenConns       int  `koanf:"db_max_open_conns"`
	DBMaxIdleConns       int  `koanf:"db_max_idle_conns"`
	DBConnMaxLifetimeSec int  `koanf:"db_conn_max_lifetime_sec"`
	MigrateOnStart       bool `koanf:"migrate_on_start"`

	// Timezone is the IANA zone request dates are interpreted in.
	Timezone string `koanf:"timezone"`

	// Locale is the BCP 47 tag used to collate member names.
	Locale string `koanf:"locale"`

	// ReportTimeoutMS bounds a single report build.
	ReportTimeoutMS int `koanf:"report_timeout_ms"`

	// MaxReportMonths caps the graduation report range. Zero disables the cap.
	MaxReportMonths int `koanf:"max_report_months"`

	// JWTSecret enables bearer authentication when set.
	JWTSecret string `koanf:"jwt_secret"`

	ShutdownTimeoutSec int `koanf:"shutdown_timeout_sec"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		DBMaxOpenConns:       10,
		DBMaxIdleConns:       5,
		DBConnMaxLifetimeSec: 300,
		Timezone:             "America/Sao_Paulo",
		Locale:               "pt-BR",
		ReportTimeoutMS:      10_000,
		MaxReportMonths:      24,
		ShutdownTimeoutSec:   10,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ReportTimeout returns ReportTimeoutMS as a duration.
func (c *Config) ReportTimeout() time.Duration {
	return time.Duration(c.ReportTimeoutMS) * time.Millisecond
}

// ConnMaxLifetime returns DBConnMaxLifetimeSec as a duration.
func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeSec) * time.Second
}

// ShutdownTimeout returns ShutdownTimeoutSec as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}
