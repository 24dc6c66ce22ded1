package transport

import (
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds ordinary API calls.
const DefaultTimeout = 30 * time.Second

// DefaultUploadTimeout bounds multipart upload calls.
const DefaultUploadTimeout = 5 * time.Minute

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "casegen"

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, including any version prefix
	// (e.g. http://127.0.0.1:8000/api/v1). Required.
	BaseURL string

	// Timeout applies to every non-upload request.
	// Zero uses DefaultTimeout.
	Timeout time.Duration

	// UploadTimeout applies to multipart uploads.
	// Zero uses DefaultUploadTimeout.
	UploadTimeout time.Duration

	// RateLimit caps outbound requests per second. Zero means unlimited.
	RateLimit float64

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return &ConfigError{Field: "BaseURL", Message: "base URL is required"}
	}
	u, err := url.Parse(base)
	if err != nil {
		return &ConfigError{Field: "BaseURL", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "BaseURL", Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ConfigError{Field: "BaseURL", Message: "host is required"}
	}
	if c.Timeout < 0 || c.UploadTimeout < 0 {
		return &ConfigError{Field: "Timeout", Message: "timeouts must not be negative"}
	}
	if c.RateLimit < 0 {
		return &ConfigError{Field: "RateLimit", Message: "rate limit must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "transport config: " + e.Field + ": " + e.Message
}
