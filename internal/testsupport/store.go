package testsupport

import (
	"testing"

	"booksearcher/internal/config"
	"booksearcher/internal/history"
	"booksearcher/internal/sessioncache"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCache opens the session cache described by cfg.
func MustOpenCache(t testing.TB, cfg *config.Config, opts ...sessioncache.Option) *sessioncache.Cache {
	t.Helper()

	cache, err := sessioncache.New(sessioncache.Options{
		Dir:        cfg.Cache.Dir,
		MaxAge:     cfg.CacheMaxAge(),
		MaxBytes:   cfg.CacheMaxBytes(),
		MaxEntries: cfg.Cache.MaxEntries,
	}, nil, opts...)
	if err != nil {
		t.Fatalf("sessioncache.New: %v", err)
	}
	return cache
}
