package searcher

import (
	"sync/atomic"
	"time"
)

type counters struct {
	startedAt time.Time
	searches  atomic.Int64
	grabs     atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
}

// Stats are the per-process counters shown in debug output and by the API.
type Stats struct {
	StartedAt   time.Time     `json:"started_at"`
	Uptime      time.Duration `json:"uptime"`
	Searches    int64         `json:"searches"`
	Grabs       int64         `json:"grabs"`
	CacheHits   int64         `json:"cache_hits"`
	CacheMisses int64         `json:"cache_misses"`
}

// HitRatio is hits over lookups, or zero before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Stats returns a snapshot of the counters.
func (s *Searcher) Stats() Stats {
	return Stats{
		StartedAt:   s.stats.startedAt,
		Uptime:      s.now().Sub(s.stats.startedAt),
		Searches:    s.stats.searches.Load(),
		Grabs:       s.stats.grabs.Load(),
		CacheHits:   s.stats.hits.Load(),
		CacheMisses: s.stats.misses.Load(),
	}
}
