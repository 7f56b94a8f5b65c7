package testsupport

import (
	"path/filepath"
	"testing"

	"booksearcher/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Prowlarr.URL = "http://127.0.0.1:9696"
	cfgVal.Prowlarr.APIKey = "test"
	cfgVal.Cache.Dir = filepath.Join(base, "cache")
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.LockPath = filepath.Join(base, "state", "serve.lock")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithProwlarr points the test config at a fake upstream.
func WithProwlarr(url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Prowlarr.URL = url
		b.cfg.Prowlarr.APIKey = apiKey
	}
}

// WithCacheLimits overrides the session cache bounds.
func WithCacheLimits(maxEntries, maxSizeMB, maxAgeHours int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.MaxEntries = maxEntries
		b.cfg.Cache.MaxSizeMB = maxSizeMB
		b.cfg.Cache.MaxAgeHours = maxAgeHours
	}
}

// WithoutHistory disables the sqlite ledger.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Cache.Dir)
}
