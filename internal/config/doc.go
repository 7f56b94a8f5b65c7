// Package config loads, normalizes, and validates BookSearcher configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PROWLARR_URL, API_KEY and the CACHE_MAX_* limits. The Config type
// centralizes every knob the CLI and HTTP API need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
