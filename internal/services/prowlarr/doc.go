// Package prowlarr is the BookSearcher client for the Prowlarr v1 API.
//
// The Client resolves the audiobooks/ebooks tags, selects the enabled
// indexers carrying them, runs searches and sends grabs. Every call shares one
// pooled transport with a DNS cache, retries transient faults (network errors,
// 408, 429, 5xx, truncated bodies) with exponential backoff, and records its
// attempts in a per-client Stats snapshot plus optional Prometheus collectors.
//
// Failures are typed: ErrNoIndexers, *UpstreamError, *RetryExceededError and
// *GrabRejectedError. They also match the markers in internal/services so
// callers can classify them with errors.Is.
package prowlarr
