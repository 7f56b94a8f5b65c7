package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeProwlarr(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeProwlarr() error {
	c.Prowlarr.URL = strings.TrimSpace(c.Prowlarr.URL)
	if c.Prowlarr.URL == "" {
		if value, ok := os.LookupEnv("PROWLARR_URL"); ok {
			c.Prowlarr.URL = strings.TrimSpace(value)
		}
	}
	c.Prowlarr.URL = strings.TrimRight(c.Prowlarr.URL, "/")
	c.Prowlarr.APIKey = strings.TrimSpace(c.Prowlarr.APIKey)
	if c.Prowlarr.APIKey == "" {
		if value, ok := os.LookupEnv("API_KEY"); ok {
			c.Prowlarr.APIKey = strings.TrimSpace(value)
		}
	}
	c.Prowlarr.UserAgent = strings.TrimSpace(c.Prowlarr.UserAgent)
	if c.Prowlarr.UserAgent == "" {
		c.Prowlarr.UserAgent = defaultUserAgent
	}
	if c.Prowlarr.TimeoutSeconds <= 0 {
		c.Prowlarr.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Prowlarr.ConnectTimeoutSeconds <= 0 {
		c.Prowlarr.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
	if c.Prowlarr.MaxConnections <= 0 {
		c.Prowlarr.MaxConnections = defaultMaxConnections
	}
	if c.Prowlarr.DNSCacheTTLSeconds < 0 {
		c.Prowlarr.DNSCacheTTLSeconds = 0
	}
	if c.Prowlarr.RetryAttempts <= 0 {
		c.Prowlarr.RetryAttempts = defaultRetryAttempts
	}
	return nil
}

func (c *Config) normalizeCache() error {
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = defaultCacheDir
	}
	var err error
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	overrides := []struct {
		env    string
		target *int
		unit   string
	}{
		{"CACHE_MAX_AGE", &c.Cache.MaxAgeHours, "hours"},
		{"CACHE_MAX_SIZE", &c.Cache.MaxSizeMB, "MB"},
		{"CACHE_MAX_ENTRIES", &c.Cache.MaxEntries, "entries"},
	}
	for _, override := range overrides {
		raw, ok := os.LookupEnv(override.env)
		if !ok {
			continue
		}
		value, err := parseEnvInt(raw)
		if err != nil {
			return fmt.Errorf("%s must be a valid integer (%s): %w", override.env, override.unit, err)
		}
		*override.target = value
	}
	return nil
}

// parseEnvInt accepts values written as `168  # one week` in .env files.
func parseEnvInt(raw string) (int, error) {
	value, _, _ := strings.Cut(raw, "#")
	return strconv.Atoi(strings.TrimSpace(value))
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	if c.Server.Token == "" {
		if value, ok := os.LookupEnv("BOOKSEARCHER_SERVER_TOKEN"); ok {
			c.Server.Token = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Server.LockPath) == "" {
		c.Server.LockPath = defaultServerLockPath
	}
	var err error
	if c.Server.LockPath, err = expandPath(c.Server.LockPath); err != nil {
		return fmt.Errorf("server.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if file := strings.TrimSpace(c.Logging.File); file != "" {
		expanded, err := expandPath(file)
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = expanded
	}
	return nil
}
