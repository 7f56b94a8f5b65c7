package sessioncache

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"sort"
	"time"

	"booksearcher/internal/logging"
)

type cacheEntry struct {
	id     int
	path   string
	size   int64
	access time.Time
}

// Evict enforces the age, count and size limits in that order. Each pass
// removes the least recently accessed sessions first, lower ids first on ties.
// A session that cannot be deleted is logged and skipped.
func (c *Cache) Evict(ctx context.Context) (EvictReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report EvictReport
	entries, err := c.scan(ctx)
	if err != nil {
		return report, err
	}

	now := c.now()
	if c.maxAge > 0 {
		cutoff := now.Add(-c.maxAge)
		entries, err = c.prune(ctx, entries, &report, &report.ExpiredIDs, func(e cacheEntry, _ int, _ int64) bool {
			return e.access.Before(cutoff)
		})
		if err != nil {
			return report, err
		}
	}

	if c.maxEntries >= 0 {
		entries, err = c.prune(ctx, entries, &report, &report.OverCountIDs, func(_ cacheEntry, count int, _ int64) bool {
			return count > c.maxEntries
		})
		if err != nil {
			return report, err
		}
	}

	if c.maxBytes > 0 {
		entries, err = c.prune(ctx, entries, &report, &report.OverSizeIDs, func(_ cacheEntry, _ int, total int64) bool {
			return total > c.maxBytes
		})
		if err != nil {
			return report, err
		}
	}

	report.Remaining = len(entries)
	return report, nil
}

// prune walks entries oldest first and removes each one for which over
// reports true given the live count and byte total. It returns the survivors.
func (c *Cache) prune(ctx context.Context, entries []cacheEntry, report *EvictReport, removed *[]int, over func(e cacheEntry, count int, total int64) bool) ([]cacheEntry, error) {
	count := len(entries)
	var total int64
	for _, e := range entries {
		total += e.size
	}
	kept := make([]cacheEntry, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		if !over(e, count, total) {
			kept = append(kept, e)
			continue
		}
		if err := c.removeAll(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(c.logger, "failed to evict session", "session_evict_failed",
				logging.Int(logging.FieldSessionID, e.id),
				logging.String("cache_dir", e.path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check cache directory permissions or remove the entry manually"),
				logging.String(logging.FieldImpact, "cache may stay above its configured limits"),
			)
			if !slices.Contains(report.FailedIDs, e.id) {
				report.FailedIDs = append(report.FailedIDs, e.id)
			}
			kept = append(kept, e)
			continue
		}
		c.logger.Info("evicted session",
			logging.Int(logging.FieldSessionID, e.id),
			logging.Int64("entry_size_bytes", e.size),
			logging.String("last_access", e.access.Format(time.RFC3339)),
		)
		*removed = append(*removed, e.id)
		report.FreedBytes += e.size
		count--
		total -= e.size
	}
	return kept, nil
}

// scan stats every session directory without reading file contents, so it
// does not disturb access times. Results are ordered least recently accessed
// first.
func (c *Cache) scan(ctx context.Context) ([]cacheEntry, error) {
	ids, err := c.ids()
	if err != nil {
		return nil, err
	}
	entries := make([]cacheEntry, 0, len(ids))
	for _, id := range ids {
		path := c.entryPath(id)
		u, err := measure(path)
		if err != nil {
			c.logger.WarnContext(ctx, "skip session; excluded from stats and eviction",
				logging.Int(logging.FieldSessionID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "session_scan_skipped"),
				logging.String(logging.FieldErrorHint, "inspect cache directory permissions or remove the entry"),
			)
			continue
		}
		entries = append(entries, cacheEntry{id: id, path: path, size: u.size, access: u.access})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].access.Equal(entries[j].access) {
			return entries[i].id < entries[j].id
		}
		return entries[i].access.Before(entries[j].access)
	})
	return entries, nil
}
