package prowlarr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"booksearcher/internal/services"
)

var (
	// ErrNoIndexers reports that no enabled indexer carries the requested tags
	// and protocol.
	ErrNoIndexers = errors.New("no matching indexers")
	// ErrConfiguration marks upstream misconfiguration such as missing tags.
	ErrConfiguration = services.ErrConfiguration
)

// UpstreamError reports a non-success status or an unusable payload.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Message    string
	Err        error

	retryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "prowlarr %s", e.Endpoint)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is matches services.ErrUpstream, and services.ErrConfiguration when the
// API key was refused.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case services.ErrUpstream:
		return true
	case services.ErrConfiguration:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

func (e *UpstreamError) transient() bool {
	switch {
	case e.StatusCode == 408, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// RetryExceededError reports that a transient fault persisted through every
// attempt.
type RetryExceededError struct {
	Endpoint string
	Attempts int
	Last     error
}

func (e *RetryExceededError) Error() string {
	return fmt.Sprintf("prowlarr %s: failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Last)
}

func (e *RetryExceededError) Unwrap() error { return e.Last }

// Is lets errors.Is(err, services.ErrTransient) match.
func (e *RetryExceededError) Is(target error) bool { return target == services.ErrTransient }

// GrabRejectedError carries the upstream reason a download was refused.
type GrabRejectedError struct {
	GUID   string
	Reason string
}

func (e *GrabRejectedError) Error() string {
	return fmt.Sprintf("prowlarr grab: download rejected: %s", e.Reason)
}

// Is lets errors.Is(err, services.ErrUpstream) match.
func (e *GrabRejectedError) Is(target error) bool { return target == services.ErrUpstream }
