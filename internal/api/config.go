package api

import (
	"fmt"
	"os"
	"time"

	"github.com/FocuswithJustin/zhconv/core/convert"
	"github.com/FocuswithJustin/zhconv/internal/validation"
)

// Config holds server configuration.
type Config struct {
	Port              int
	Version           string
	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	TLS               TLSConfig  // TLS configuration
	AllowedOrigins    []string   // CORS and WebSocket allowed origins (empty = allow all)

	// Converter serves every request. Nil means convert.Default().
	Converter *convert.Converter

	// MaxUploadSize bounds an uploaded document.
	MaxUploadSize int64
	// DocumentTimeout bounds one document conversion (0 = none).
	DocumentTimeout time.Duration

	// JobWorkers is the number of document jobs converted at once.
	JobWorkers int
	// JobQueueSize bounds the jobs waiting for a worker.
	JobQueueSize int
	// ResultTTL is how long a finished job's document stays downloadable.
	ResultTTL time.Duration
	// MaxResults bounds the number of finished documents kept.
	MaxResults int
	// MaxResultBytes bounds the memory held by finished documents.
	MaxResultBytes int64
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// DefaultConfig returns the configuration used by `zhconv serve` when no
// flags are given.
func DefaultConfig() Config {
	return Config{
		Port:            8080,
		Version:         "dev",
		RateLimitBurst:  10,
		MaxUploadSize:   validation.MaxFileSize,
		DocumentTimeout: 2 * time.Minute,
		JobWorkers:      2,
		JobQueueSize:    32,
		ResultTTL:       time.Hour,
		MaxResults:      128,
		MaxResultBytes:  512 << 20,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = d.MaxUploadSize
	}
	if c.JobWorkers <= 0 {
		c.JobWorkers = d.JobWorkers
	}
	if c.JobQueueSize <= 0 {
		c.JobQueueSize = d.JobQueueSize
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = d.ResultTTL
	}
	if c.MaxResults <= 0 {
		c.MaxResults = d.MaxResults
	}
	if c.MaxResultBytes <= 0 {
		c.MaxResultBytes = d.MaxResultBytes
	}
	if c.RateLimitRequests > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = d.RateLimitBurst
	}
	if c.Converter == nil {
		c.Converter = convert.Default()
	}
	return c
}

// Validate checks authentication and TLS settings.
func (c Config) Validate() error {
	if err := ValidateAuthConfig(c.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	return nil
}
