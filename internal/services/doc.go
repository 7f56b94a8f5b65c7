// Package services defines shared utilities consumed by the Prowlarr client,
// the session cache and the search orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs and correlation identifiers for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (configuration, not found, transient, upstream) with errors.Is.
//   - Hint, which turns a classified failure into a next step for the CLI.
//
// Integrations live in subpackages (see services/prowlarr).
package services
