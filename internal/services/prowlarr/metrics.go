package prowlarr

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports client observations to Prometheus. Each client owns its
// own collectors; register them on a private registry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec
	ExhaustedTotal  *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booksearcher",
			Subsystem: "prowlarr",
			Name:      "requests_total",
			Help:      "Upstream request attempts by endpoint and status code.",
		}, []string{"endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booksearcher",
			Subsystem: "prowlarr",
			Name:      "request_duration_seconds",
			Help:      "Upstream request attempt duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"endpoint"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booksearcher",
			Subsystem: "prowlarr",
			Name:      "retries_total",
			Help:      "Retries scheduled after a transient upstream fault.",
		}, []string{"endpoint"}),
		ExhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booksearcher",
			Subsystem: "prowlarr",
			Name:      "retries_exhausted_total",
			Help:      "Calls that failed after every retry attempt.",
		}, []string{"endpoint"}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.RetriesTotal, m.ExhaustedTotal)
	}
	return m
}

func (m *Metrics) observe(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(endpoint, label).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) retried(endpoint string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) exhausted(endpoint string) {
	if m == nil {
		return
	}
	m.ExhaustedTotal.WithLabelValues(endpoint).Inc()
}
