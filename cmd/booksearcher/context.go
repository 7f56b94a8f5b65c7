package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"booksearcher/internal/config"
	"booksearcher/internal/history"
	"booksearcher/internal/logging"
	"booksearcher/internal/searcher"
	"booksearcher/internal/services"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/sessioncache"
)

type commandContext struct {
	configFlag *string
	debugFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	correlationID string
	metrics       *prowlarr.Metrics

	cache    *sessioncache.Cache
	client   *prowlarr.Client
	history  *history.Store
	searcher *searcher.Searcher
}

func newCommandContext(configFlag *string, debugFlag *bool) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		debugFlag:     debugFlag,
		correlationID: uuid.NewString(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) debug() bool {
	return c.debugFlag != nil && *c.debugFlag
}

// loggerValue falls back to a console logger when the configured outputs
// cannot be opened.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config, c.debug())
		if err != nil {
			logger, _ = logging.NewFromConfig(nil, c.debug())
			logger.Warn("log file unavailable; logging to stderr only", logging.Error(err))
		}
		c.logger = logger
	})
	return c.logger
}

// requestContext tags ctx with this invocation's correlation id.
func (c *commandContext) requestContext(ctx context.Context) context.Context {
	return services.WithRequestID(ctx, c.correlationID)
}

func (c *commandContext) sessionCache() (*sessioncache.Cache, error) {
	if c.cache != nil {
		return c.cache, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	cache, err := sessioncache.New(sessioncache.Options{
		Dir:        cfg.Cache.Dir,
		MaxAge:     cfg.CacheMaxAge(),
		MaxBytes:   cfg.CacheMaxBytes(),
		MaxEntries: cfg.Cache.MaxEntries,
	}, c.loggerValue())
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return cache, nil
}

func (c *commandContext) prowlarrClient() (*prowlarr.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateProwlarr(); err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrConfiguration, err)
	}
	opts := []prowlarr.Option{
		prowlarr.WithRetryMaxAttempts(cfg.Prowlarr.RetryAttempts),
		prowlarr.WithRetryBackoff(cfg.RetryBaseDelay(), cfg.RetryMaxDelay()),
		prowlarr.WithLogger(c.loggerValue()),
	}
	if c.metrics != nil {
		opts = append(opts, prowlarr.WithMetrics(c.metrics))
	}
	c.client = prowlarr.NewClient(prowlarr.Config{
		BaseURL:           cfg.Prowlarr.URL,
		APIKey:            cfg.Prowlarr.APIKey,
		UserAgent:         cfg.Prowlarr.UserAgent,
		Timeout:           time.Duration(cfg.Prowlarr.TimeoutSeconds) * time.Second,
		ConnectTimeout:    time.Duration(cfg.Prowlarr.ConnectTimeoutSeconds) * time.Second,
		MaxConnections:    cfg.Prowlarr.MaxConnections,
		DNSCacheTTL:       time.Duration(cfg.Prowlarr.DNSCacheTTLSeconds) * time.Second,
		RequestsPerSecond: cfg.Prowlarr.RequestsPerSecond,
	}, opts...)
	return c.client, nil
}

// historyStore opens the ledger. It returns history.ErrDisabled when the
// ledger is turned off.
func (c *commandContext) historyStore() (*history.Store, error) {
	if c.history != nil {
		return c.history, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	c.history = store
	return store, nil
}

func (c *commandContext) searcherValue() (*searcher.Searcher, error) {
	if c.searcher != nil {
		return c.searcher, nil
	}
	cache, err := c.sessionCache()
	if err != nil {
		return nil, err
	}
	client, err := c.prowlarrClient()
	if err != nil {
		return nil, err
	}
	var opts []searcher.Option
	store, err := c.historyStore()
	switch {
	case err == nil:
		opts = append(opts, searcher.WithRecorder(store))
	case errors.Is(err, history.ErrDisabled):
	default:
		logging.WarnWithContext(c.loggerValue(), "search history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "searches and grabs will not be recorded"),
		)
	}
	c.searcher = searcher.New(client, cache, c.loggerValue(), opts...)
	return c.searcher, nil
}

func (c *commandContext) close() {
	if c.client != nil {
		c.client.Close()
	}
	if c.history != nil {
		if err := c.history.Close(); err != nil && c.logger != nil {
			c.logger.Warn("close history", logging.Error(err))
		}
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
