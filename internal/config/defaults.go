package config

const (
	defaultConfigPath            = "~/.config/booksearcher/config.toml"
	defaultUserAgent             = "BookSearcher/1.0"
	defaultTimeoutSeconds        = 30
	defaultConnectTimeoutSeconds = 10
	defaultMaxConnections        = 10
	defaultDNSCacheTTLSeconds    = 300
	defaultRetryAttempts         = 3
	defaultRetryBaseMillis       = 500
	defaultRetryMaxMillis        = 10000
	defaultCacheDir              = "~/.cache/booksearcher"
	defaultCacheMaxAgeHours      = 168
	defaultCacheMaxSizeMB        = 100
	defaultCacheMaxEntries       = 100
	defaultHistoryPath           = "~/.local/share/booksearcher/history.db"
	defaultServerBind            = "127.0.0.1:8484"
	defaultServerLockPath        = "~/.local/share/booksearcher/serve.lock"
	defaultLogFormat             = "console"
	defaultLogLevel              = "warn"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Prowlarr: Prowlarr{
			UserAgent:             defaultUserAgent,
			TimeoutSeconds:        defaultTimeoutSeconds,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			MaxConnections:        defaultMaxConnections,
			DNSCacheTTLSeconds:    defaultDNSCacheTTLSeconds,
			RetryAttempts:         defaultRetryAttempts,
			RetryBaseMillis:       defaultRetryBaseMillis,
			RetryMaxMillis:        defaultRetryMaxMillis,
		},
		Cache: Cache{
			Dir:         defaultCacheDir,
			MaxAgeHours: defaultCacheMaxAgeHours,
			MaxSizeMB:   defaultCacheMaxSizeMB,
			MaxEntries:  defaultCacheMaxEntries,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		Server: Server{
			Bind:     defaultServerBind,
			LockPath: defaultServerLockPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
