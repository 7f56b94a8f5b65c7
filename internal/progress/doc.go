// Package progress renders the terminal spinner shown while a search waits
// on Prowlarr.
//
// The spinner runs on its own goroutine and shares only an atomic run flag
// with the caller. Stop is idempotent, waits for the goroutine to exit and
// clears the line, so callers stop the spinner before printing anything.
package progress
