// Package engineconfig assembles the fetch engine's runtime configuration
// from compiled-in defaults, environment variable overrides, and finally
// whatever the caller sets explicitly on the struct (§6.4), mirroring the
// teacher's Config/DefaultConfig pattern.
package engineconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vecbench/vdfetch/pkg/fetchconst"
)

// Config holds everything an Engine needs to open and serve chunked files.
type Config struct {
	CacheDir            string        `json:"cache_dir"`
	MaxConcurrentChunks int           `json:"max_concurrent_chunks"`
	HTTPRetries         int           `json:"http_retries"`
	HTTPTimeout         time.Duration `json:"http_timeout"`
	HTTPBackoff         time.Duration `json:"http_backoff"`
	HTTPMaxBackoff      time.Duration `json:"http_max_backoff"`
	CloseDrainTimeout   time.Duration `json:"close_drain_timeout"`
}

// DefaultConfig returns the compiled-in defaults from pkg/fetchconst. The
// cache root is a "vdfetch" folder under os.UserCacheDir(), or
// ./vdfetch-cache when the OS reports no per-user cache directory.
func DefaultConfig() *Config {
	cacheDir := "./vdfetch-cache"
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "vdfetch")
	}
	return &Config{
		CacheDir:            cacheDir,
		MaxConcurrentChunks: fetchconst.DefaultMaxConcurrentChunks,
		HTTPRetries:         fetchconst.DefaultHTTPRetries,
		HTTPTimeout:         fetchconst.DefaultHTTPTimeout,
		HTTPBackoff:         fetchconst.DefaultHTTPBackoff,
		HTTPMaxBackoff:      fetchconst.DefaultHTTPMaxBackoff,
		CloseDrainTimeout:   fetchconst.DefaultCloseDrainTimeout,
	}
}

// Env names consulted by FromEnv. These are the external interface named
// verbatim by §6.4 and must not be renamed or prefixed.
const (
	EnvCacheDir            = "CACHE_DIR"
	EnvMaxConcurrentChunks = "MAX_CONCURRENT_CHUNKS"
	EnvHTTPRetries         = "HTTP_RETRIES"
	EnvHTTPTimeoutMS       = "HTTP_TIMEOUT_MS"
	EnvHTTPBackoffMS       = "HTTP_BACKOFF_MS"
)

// FromEnv starts from DefaultConfig and overlays any recognized environment
// variables. It never fails on an unset variable; a malformed one is
// reported so misconfiguration is caught at startup rather than silently
// ignored.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv(EnvCacheDir); ok && v != "" {
		cfg.CacheDir = v
	}
	if v, ok := os.LookupEnv(EnvMaxConcurrentChunks); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("engineconfig: %s: %w", EnvMaxConcurrentChunks, err)
		}
		cfg.MaxConcurrentChunks = n
	}
	if v, ok := os.LookupEnv(EnvHTTPRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("engineconfig: %s: %w", EnvHTTPRetries, err)
		}
		cfg.HTTPRetries = n
	}
	if v, ok := os.LookupEnv(EnvHTTPTimeoutMS); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("engineconfig: %s: %w", EnvHTTPTimeoutMS, err)
		}
		cfg.HTTPTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := os.LookupEnv(EnvHTTPBackoffMS); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("engineconfig: %s: %w", EnvHTTPBackoffMS, err)
		}
		cfg.HTTPBackoff = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// Validate reports whether cfg's fields are self-consistent.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("engineconfig: cache dir must not be empty")
	}
	if c.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("engineconfig: max concurrent chunks must be positive, got %d", c.MaxConcurrentChunks)
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("engineconfig: http retries must not be negative, got %d", c.HTTPRetries)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("engineconfig: http timeout must be positive, got %v", c.HTTPTimeout)
	}
	if c.HTTPBackoff <= 0 {
		return fmt.Errorf("engineconfig: http backoff must be positive, got %v", c.HTTPBackoff)
	}
	if c.HTTPMaxBackoff < c.HTTPBackoff {
		return fmt.Errorf("engineconfig: http max backoff %v must be >= backoff %v", c.HTTPMaxBackoff, c.HTTPBackoff)
	}
	return nil
}
