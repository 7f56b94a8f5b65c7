package prowlarr

import (
	"maps"
	"sync"
	"time"
)

// RequestInfo describes one upstream attempt.
type RequestInfo struct {
	Endpoint string        `json:"endpoint"`
	Method   string        `json:"method"`
	Status   int           `json:"status"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// EndpointStats aggregates attempts for one "METHOD /path" key.
type EndpointStats struct {
	Requests     int           `json:"requests"`
	Errors       int           `json:"errors"`
	TotalLatency time.Duration `json:"total_latency"`
}

// ErrorInfo records the most recent failed attempt.
type ErrorInfo struct {
	At       time.Time `json:"at"`
	Endpoint string    `json:"endpoint"`
	Status   int       `json:"status,omitempty"`
	Message  string    `json:"message"`
}

// Stats is a point-in-time copy of a client's request statistics.
type Stats struct {
	Requests       int                      `json:"requests"`
	Errors         int                      `json:"errors"`
	TotalLatency   time.Duration            `json:"total_latency"`
	AverageLatency time.Duration            `json:"average_latency"`
	LastRequest    *RequestInfo             `json:"last_request,omitempty"`
	ByEndpoint     map[string]EndpointStats `json:"by_endpoint"`
	LastError      *ErrorInfo               `json:"last_error,omitempty"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: Stats{ByEndpoint: make(map[string]EndpointStats)}}
}

func (r *statsRecorder) record(method, path string, status int, duration time.Duration, at time.Time, err error) {
	key := method + " " + path
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.stats
	s.Requests++
	s.TotalLatency += duration
	s.AverageLatency = s.TotalLatency / time.Duration(s.Requests)
	s.LastRequest = &RequestInfo{Endpoint: path, Method: method, Status: status, Duration: duration, At: at}

	ep := s.ByEndpoint[key]
	ep.Requests++
	ep.TotalLatency += duration
	if err != nil {
		s.Errors++
		ep.Errors++
		s.LastError = &ErrorInfo{At: at, Endpoint: key, Status: status, Message: err.Error()}
	}
	s.ByEndpoint[key] = ep
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stats
	out.ByEndpoint = maps.Clone(r.stats.ByEndpoint)
	if r.stats.LastRequest != nil {
		last := *r.stats.LastRequest
		out.LastRequest = &last
	}
	if r.stats.LastError != nil {
		last := *r.stats.LastError
		out.LastError = &last
	}
	return out
}
