// Package logging assembles structured slog loggers and formatting helpers used
// across BookSearcher.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so client and cache code can tag
// log lines with session IDs and correlation IDs. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
