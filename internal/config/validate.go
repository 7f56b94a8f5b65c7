package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Prowlarr credentials are
// checked separately by ValidateProwlarr so cache-only commands work offline.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateProwlarr reports whether the upstream URL and API key are usable.
func (c *Config) ValidateProwlarr() error {
	if c.Prowlarr.URL == "" {
		return fmt.Errorf("prowlarr.url is required. Set PROWLARR_URL env var or edit %s (create with 'booksearcher config init')", configPathHint())
	}
	parsed, err := url.Parse(c.Prowlarr.URL)
	if err != nil {
		return fmt.Errorf("prowlarr.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("prowlarr.url must use http or https, got %q", c.Prowlarr.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("prowlarr.url is missing a host: %q", c.Prowlarr.URL)
	}
	if c.Prowlarr.APIKey == "" {
		return fmt.Errorf("prowlarr.api_key is required. Set API_KEY env var or edit %s", configPathHint())
	}
	return nil
}

func configPathHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}

func (c *Config) validateCache() error {
	if c.Cache.MaxAgeHours < 0 {
		return errors.New("cache.max_age_hours must be >= 0")
	}
	if c.Cache.MaxSizeMB < 0 {
		return errors.New("cache.max_size_mb must be >= 0")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must be >= 0")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Prowlarr.RetryBaseMillis < 0 {
		return errors.New("prowlarr.retry_base_ms must be >= 0")
	}
	if c.Prowlarr.RetryMaxMillis < 0 {
		return errors.New("prowlarr.retry_max_ms must be >= 0")
	}
	if c.Prowlarr.RequestsPerSecond < 0 {
		return errors.New("prowlarr.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
