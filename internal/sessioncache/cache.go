package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"booksearcher/internal/logging"
	"booksearcher/internal/services"
)

const (
	dirPrefix   = "search_"
	resultsFile = "results.json"
	metaFile    = "meta.json"
)

// Options bounds the store. A MaxAge or MaxBytes <= 0 disables that eviction
// pass; a negative MaxEntries disables the count pass and zero keeps nothing.
type Options struct {
	Dir        string
	MaxAge     time.Duration
	MaxBytes   int64
	MaxEntries int
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for timestamps and age checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache stores search sessions as search_<id> directories under a root.
// It assumes a single writing process.
type Cache struct {
	root       string
	maxAge     time.Duration
	maxBytes   int64
	maxEntries int

	logger    *slog.Logger
	now       func() time.Time
	sizes     SizeTracker
	removeAll func(string) error
	statfs    func(string) (uint64, uint64, error)

	mu sync.RWMutex
}

// New opens (and creates if needed) the session store.
func New(opts Options, logger *slog.Logger, options ...Option) (*Cache, error) {
	root := strings.TrimSpace(opts.Dir)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "sessioncache", "open", "cache directory is empty", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ioErr("create root", err)
	}
	c := &Cache{
		root:       root,
		maxAge:     opts.MaxAge,
		maxBytes:   opts.MaxBytes,
		maxEntries: opts.MaxEntries,
		logger:     logging.NewComponentLogger(logger, "sessioncache"),
		now:        time.Now,
		removeAll:  os.RemoveAll,
		statfs:     realStatfs,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.root
}

// NextID returns one more than the highest session id on disk, or 1 when the
// store is empty. Uncommitted directories still reserve their id.
func (c *Cache) NextID() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextID()
}

func (c *Cache) nextID() (int, error) {
	ids, err := c.ids()
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, id := range ids {
		if id > highest {
			highest = id
		}
	}
	return highest + 1, nil
}

// Save persists s under its id and then runs an eviction pass. Eviction
// problems are logged and do not fail the save.
func (c *Cache) Save(ctx context.Context, s Session) error {
	if s.ID <= 0 {
		return services.Wrap(services.ErrValidation, "sessioncache", "save", fmt.Sprintf("invalid session id %d", s.ID), nil)
	}
	c.mu.Lock()
	err := c.write(ctx, &s)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.evictAfterSave(ctx, s.ID)
	return nil
}

// Create assigns the next id and saves s under it in one step.
func (c *Cache) Create(ctx context.Context, s Session) (Session, error) {
	c.mu.Lock()
	id, err := c.nextID()
	if err == nil {
		s.ID = id
		err = c.write(ctx, &s)
	}
	c.mu.Unlock()
	if err != nil {
		return Session{}, err
	}
	c.evictAfterSave(ctx, s.ID)
	return s, nil
}

func (c *Cache) evictAfterSave(ctx context.Context, id int) {
	report, err := c.Evict(ctx)
	if err != nil {
		logging.WarnWithContext(c.logger, "eviction after save failed", "session_evict_failed",
			logging.Int(logging.FieldSessionID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `booksearcher cache prune` to retry"),
			logging.String(logging.FieldImpact, "cache may exceed its configured limits"),
		)
		return
	}
	if report.Removed() > 0 {
		c.logger.Debug("evicted sessions after save",
			logging.Int(logging.FieldSessionID, id),
			logging.Int("removed", report.Removed()),
			logging.Int64("freed_bytes", report.FreedBytes),
		)
	}
}

// write stores results first and meta second so a reader never sees meta
// without results. Callers hold c.mu.
func (c *Cache) write(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = c.now()
	}
	if s.Results == nil {
		s.Results = []Result{}
	}
	dir := c.entryPath(s.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return entryErr(s.ID, "save", ErrCacheIO, err)
	}
	results, err := json.Marshal(s.Results)
	if err != nil {
		return entryErr(s.ID, "save", ErrCacheIO, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, resultsFile), results); err != nil {
		return entryErr(s.ID, "save", ErrCacheIO, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := meta{
		Timestamp:  stamp(s.CreatedAt),
		SearchTerm: s.Query,
		Kind:       s.Kind,
		Mode:       s.Mode,
	}
	if s.Protocol != "" {
		protocol := s.Protocol
		m.Protocol = &protocol
	}
	metaData, err := json.Marshal(m)
	if err != nil {
		return entryErr(s.ID, "save", ErrCacheIO, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metaFile), metaData); err != nil {
		return entryErr(s.ID, "save", ErrCacheIO, err)
	}
	s.LastAccess = s.CreatedAt
	c.logger.Debug("saved session",
		logging.Int(logging.FieldSessionID, s.ID),
		logging.Int("result_count", len(s.Results)),
		logging.String("query", s.Query),
	)
	return nil
}

// Load reads a session and refreshes its access time.
func (c *Cache) Load(id int) (Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, err := c.read(id)
	if err != nil {
		return Session{}, err
	}
	now := c.now()
	if err := os.Chtimes(filepath.Join(c.entryPath(id), resultsFile), now, now); err != nil {
		c.logger.Debug("refresh access time failed", logging.Int(logging.FieldSessionID, id), logging.Error(err))
	} else {
		s.LastAccess = now
	}
	return s, nil
}

func (c *Cache) read(id int) (Session, error) {
	if id <= 0 {
		return Session{}, entryErr(id, "load", ErrNotFound, nil)
	}
	dir := c.entryPath(id)
	metaData, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return Session{}, classifyRead(id, err)
	}
	resultData, err := os.ReadFile(filepath.Join(dir, resultsFile))
	if err != nil {
		return Session{}, classifyRead(id, err)
	}
	var m meta
	if err := json.Unmarshal(metaData, &m); err != nil {
		return Session{}, entryErr(id, "load", ErrCorruptEntry, fmt.Errorf("%s: %w", metaFile, err))
	}
	var results []Result
	if err := json.Unmarshal(resultData, &results); err != nil {
		return Session{}, entryErr(id, "load", ErrCorruptEntry, fmt.Errorf("%s: %w", resultsFile, err))
	}
	if results == nil {
		results = []Result{}
	}
	s := Session{
		ID:        id,
		CreatedAt: time.Time(m.Timestamp),
		Query:     m.SearchTerm,
		Kind:      m.Kind,
		Mode:      m.Mode,
		Results:   results,
	}
	if m.Protocol != nil {
		s.Protocol = *m.Protocol
	}
	if u, err := measure(dir); err == nil {
		s.LastAccess = u.access
	}
	return s, nil
}

func classifyRead(id int, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return entryErr(id, "load", ErrNotFound, nil)
	}
	return entryErr(id, "load", ErrCacheIO, err)
}

// List returns summaries of every valid session ordered by id. Entries that
// are missing a file or fail to parse are skipped.
func (c *Cache) List() ([]Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, err := c.ids()
	if err != nil {
		return nil, err
	}
	sort.Ints(ids)
	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		u, err := measure(c.entryPath(id))
		if err != nil {
			c.logger.Debug("skip unreadable session", logging.Int(logging.FieldSessionID, id), logging.Error(err))
			continue
		}
		s, err := c.read(id)
		if err != nil {
			c.logger.Debug("skip invalid session",
				logging.Int(logging.FieldSessionID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "session_skipped"),
			)
			continue
		}
		summaries = append(summaries, Summary{
			ID:          s.ID,
			CreatedAt:   s.CreatedAt,
			Query:       s.Query,
			Kind:        s.Kind,
			Protocol:    s.Protocol,
			Mode:        s.Mode,
			ResultCount: len(s.Results),
			SizeBytes:   u.size,
			LastAccess:  u.access,
		})
	}
	return summaries, nil
}

// Latest returns the id of the session whose meta.json was written most
// recently.
func (c *Cache) Latest() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, err := c.ids()
	if err != nil {
		return 0, err
	}
	latestID := 0
	var latest time.Time
	for _, id := range ids {
		info, err := os.Stat(filepath.Join(c.entryPath(id), metaFile))
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if latestID == 0 || mod.After(latest) || (mod.Equal(latest) && id > latestID) {
			latestID, latest = id, mod
		}
	}
	if latestID == 0 {
		return 0, fmt.Errorf("sessioncache: latest: no recent searches: %w", ErrNotFound)
	}
	return latestID, nil
}

// Clear removes every session and leaves an empty store behind.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.ids()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.removeAll(c.entryPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return entryErr(id, "clear", ErrCacheIO, err)
		}
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return ioErr("recreate root", err)
	}
	c.logger.Info("cleared session cache", logging.Int("removed", len(ids)))
	return nil
}

// Stats reports usage against the configured limits plus filesystem space.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := c.scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Dir:        c.root,
		Entries:    len(entries),
		MaxBytes:   c.maxBytes,
		MaxEntries: c.maxEntries,
		MaxAge:     c.maxAge.String(),
	}
	for _, e := range entries {
		s.TotalBytes += e.size
	}
	total, free, err := c.statfs(c.root)
	if err != nil {
		return s, ioErr("statfs", err)
	}
	s.FSBytes, s.FreeBytes = total, free
	return s, nil
}

func (c *Cache) entryPath(id int) string {
	return filepath.Join(c.root, dirPrefix+strconv.Itoa(id))
}

// ids lists the session ids present on disk, committed or not.
func (c *Cache) ids() ([]int, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ioErr("list", err)
	}
	ids := make([]int, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if id, ok := parseDirName(entry.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseDirName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, dirPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 || strconv.Itoa(id) != rest {
		return 0, false
	}
	return id, true
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
