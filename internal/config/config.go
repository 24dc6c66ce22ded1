// Package config loads casegen configuration from defaults, an optional
// casegen.yaml, a .env file, CASEGEN_ environment variables and runtime
// overrides, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/casegen/pkg/match"
	"github.com/3leaps/casegen/pkg/poller"
	"github.com/3leaps/casegen/pkg/provider/s3"
	"github.com/3leaps/casegen/pkg/transport"
)

// Config is the full casegen configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Poll     PollConfig     `mapstructure:"poll"`
	Export   ExportConfig   `mapstructure:"export"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Registry RegistryConfig `mapstructure:"registry"`
}

// APIConfig configures the backend connection.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// PollConfig bounds job and mind-map polling.
type PollConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

// ExportConfig sets where exports are saved.
type ExportConfig struct {
	// Destination is a directory or an s3://bucket/prefix URI.
	Destination string   `mapstructure:"destination"`
	S3          S3Config `mapstructure:"s3"`
}

// S3Config carries the connection settings for s3:// destinations.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// UploadConfig sets how upload arguments are expanded.
type UploadConfig struct {
	Excludes      []string           `mapstructure:"excludes"`
	IncludeHidden bool               `mapstructure:"include_hidden"`
	Filter        match.FilterConfig `mapstructure:"filter"`
}

// LoggingConfig configures the service logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// ServerConfig configures the local viewer API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HealthConfig toggles the backend health check of the viewer API.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RegistryConfig locates the local job registry. An empty Dir uses the user
// data directory.
type RegistryConfig struct {
	Dir string `mapstructure:"dir"`
}

// Validate checks values a command cannot run without.
func (c *Config) Validate() error {
	tc := c.Transport()
	if err := tc.Validate(); err != nil {
		return err
	}
	if c.Poll.Interval < 0 || c.Poll.MaxAttempts < 0 || c.Poll.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("poll settings must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	return nil
}

// Transport returns the transport client configuration.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		BaseURL:       strings.TrimSpace(c.API.BaseURL),
		Timeout:       c.API.Timeout,
		UploadTimeout: c.API.UploadTimeout,
		RateLimit:     c.API.RateLimit,
		UserAgent:     c.API.UserAgent,
	}
}

// Poller returns the polling configuration.
func (c *Config) Poller() poller.Config {
	return poller.Config{
		Interval:             c.Poll.Interval,
		MaxAttempts:          c.Poll.MaxAttempts,
		MaxConsecutiveErrors: c.Poll.MaxConsecutiveErrors,
	}
}

// S3 returns the sink configuration for bucket and prefix.
func (c *Config) S3(bucket, prefix string) s3.Config {
	return s3.Config{
		Bucket:         bucket,
		Prefix:         prefix,
		Region:         c.Export.S3.Region,
		Endpoint:       c.Export.S3.Endpoint,
		Profile:        c.Export.S3.Profile,
		ForcePathStyle: c.Export.S3.ForcePathStyle,
	}
}
