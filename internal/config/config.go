package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Prowlarr contains the upstream connection and retry settings.
type Prowlarr struct {
	URL                   string  `toml:"url"`
	APIKey                string  `toml:"api_key"`
	UserAgent             string  `toml:"user_agent"`
	TimeoutSeconds        int     `toml:"timeout_seconds"`
	ConnectTimeoutSeconds int     `toml:"connect_timeout_seconds"`
	MaxConnections        int     `toml:"max_connections"`
	DNSCacheTTLSeconds    int     `toml:"dns_cache_ttl_seconds"`
	RetryAttempts         int     `toml:"retry_attempts"`
	RetryBaseMillis       int     `toml:"retry_base_ms"`
	RetryMaxMillis        int     `toml:"retry_max_ms"`
	RequestsPerSecond     float64 `toml:"requests_per_second"`
}

// Cache contains the bounds for the on-disk search session store.
type Cache struct {
	Dir         string `toml:"dir"`
	MaxAgeHours int    `toml:"max_age_hours"`
	MaxSizeMB   int    `toml:"max_size_mb"`
	MaxEntries  int    `toml:"max_entries"`
}

// History contains configuration for the search/grab ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Server contains configuration for the HTTP API.
type Server struct {
	Bind     string `toml:"bind"`
	Token    string `toml:"token"`
	LockPath string `toml:"lock_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for BookSearcher.
//
// Configuration sections by subsystem:
//   - Prowlarr: upstream URL, API key, pool and retry tuning
//   - Cache: search session directory and eviction limits
//   - History: sqlite ledger of searches and grabs
//   - Server: HTTP API bind address and bearer token
//   - Logging: log format, level, and optional file
type Config struct {
	Prowlarr Prowlarr `toml:"prowlarr"`
	Cache    Cache    `toml:"cache"`
	History  History  `toml:"history"`
	Server   Server   `toml:"server"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("booksearcher.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache directory and the history parent directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Cache.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %q: %w", c.Cache.Dir, err)
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// CacheMaxAge returns the configured session age limit.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeHours) * time.Hour
}

// CacheMaxBytes returns the configured cache size limit in bytes.
func (c *Config) CacheMaxBytes() int64 {
	return int64(c.Cache.MaxSizeMB) * 1024 * 1024
}

// RetryBaseDelay returns the first retry delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Prowlarr.RetryBaseMillis) * time.Millisecond
}

// RetryMaxDelay returns the retry delay ceiling.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Prowlarr.RetryMaxMillis) * time.Millisecond
}

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted() Config {
	c.Prowlarr.APIKey = mask(c.Prowlarr.APIKey)
	c.Server.Token = mask(c.Server.Token)
	return c
}

func mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
