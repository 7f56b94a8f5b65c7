package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"booksearcher/internal/history"
	"booksearcher/internal/logging"
	"booksearcher/internal/services"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/sessioncache"
)

// Upstream is the subset of the Prowlarr client the searcher drives.
type Upstream interface {
	ResolveMediaTags(ctx context.Context) (prowlarr.MediaTags, error)
	Search(ctx context.Context, query string, tagIDs []int, protocol string) ([]prowlarr.Release, error)
	Grab(ctx context.Context, guid string, indexerID int) (prowlarr.GrabConfirmation, error)
}

// Store is the subset of the session cache the searcher drives.
type Store interface {
	Create(ctx context.Context, s sessioncache.Session) (sessioncache.Session, error)
	Load(id int) (sessioncache.Session, error)
	Latest() (int, error)
}

// Recorder receives completed searches and grabs. history.Store satisfies it.
type Recorder interface {
	RecordSearch(ctx context.Context, ev history.SearchEvent) error
	RecordGrab(ctx context.Context, ev history.GrabEvent) error
}

// Option customizes a Searcher.
type Option func(*Searcher)

// WithRecorder sends completed operations to r.
func WithRecorder(r Recorder) Option {
	return func(s *Searcher) {
		s.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) {
		if now != nil {
			s.now = now
		}
	}
}

// Searcher runs searches against Prowlarr and persists them as sessions.
type Searcher struct {
	client   Upstream
	cache    Store
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	tags     singleflight.Group
	stats    counters
}

// New builds a Searcher.
func New(client Upstream, cache Store, logger *slog.Logger, opts ...Option) *Searcher {
	s := &Searcher{
		client: client,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "searcher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats.startedAt = s.now()
	return s
}

// ParseKind accepts the CLI and API spellings of a media kind. An empty value
// means both.
func ParseKind(value string) (sessioncache.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "both", "all":
		return sessioncache.KindBoth, nil
	case "audio", "audiobook", "audiobooks":
		return sessioncache.KindAudiobooks, nil
	case "book", "books", "ebook", "ebooks":
		return sessioncache.KindEbooks, nil
	default:
		return "", services.Wrap(services.ErrValidation, "searcher", "parse kind",
			fmt.Sprintf("unknown media type %q (want audio, book or both)", value), nil)
	}
}

func normalizeRequest(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, services.Wrap(services.ErrValidation, "searcher", "search", "search term is empty", nil)
	}
	if req.Kind == "" {
		req.Kind = sessioncache.KindBoth
	}
	if !req.Kind.Valid() {
		return req, services.Wrap(services.ErrValidation, "searcher", "search", fmt.Sprintf("unknown kind %q", req.Kind), nil)
	}
	protocol, err := prowlarr.NormalizeProtocol(req.Protocol)
	if err != nil {
		return req, err
	}
	req.Protocol = protocol
	if req.Mode == "" {
		req.Mode = sessioncache.ModeInteractive
	}
	return req, nil
}

// Search resolves tags, queries Prowlarr and saves the results as a new
// session. An empty result set is a success with nothing saved. When the
// save fails the results are still returned and Run.SaveErr is set.
func (s *Searcher) Search(ctx context.Context, req Request) (*Run, error) {
	req, err := normalizeRequest(req)
	run := newRun(req, s.now())
	if err != nil {
		return s.failed(run, err)
	}
	logger := logging.WithContext(ctx, s.logger)

	tags, err := s.resolveTags(ctx)
	if err != nil {
		return s.failed(run, err)
	}
	if err := run.transition(StateTagsResolved); err != nil {
		return s.failed(run, err)
	}
	if err := run.transition(StateSearching); err != nil {
		return s.failed(run, err)
	}
	s.stats.searches.Add(1)
	releases, err := s.client.Search(ctx, req.Query, tagIDs(tags, req.Kind), req.Protocol)
	if err != nil {
		return s.failed(run, err)
	}
	run.Results = toResults(releases)

	if len(run.Results) == 0 {
		if err := run.transition(StateIdle); err != nil {
			return s.failed(run, err)
		}
		run.FinishedAt = s.now()
		logger.Info("search returned no results", logging.String("query", req.Query), logging.String("kind", string(req.Kind)))
		s.recordSearch(ctx, run)
		return run, nil
	}

	session, err := s.cache.Create(ctx, sessioncache.Session{
		CreatedAt: run.StartedAt,
		Query:     req.Query,
		Kind:      req.Kind,
		Protocol:  req.Protocol,
		Mode:      req.Mode,
		Results:   run.Results,
	})
	if err != nil {
		run.SaveErr = err
		run.History = append(run.History, StateFailed)
		run.FinishedAt = s.now()
		logging.WarnWithContext(logger, "search results were not cached", "session_save_failed",
			logging.String("query", req.Query),
			logging.Int("results", len(run.Results)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the cache directory"),
			logging.String(logging.FieldImpact, "results cannot be grabbed later by session id"),
		)
		s.recordSearch(ctx, run)
		return run, nil
	}
	run.SessionID = session.ID
	if err := run.transition(StatePersisted); err != nil {
		return s.failed(run, err)
	}
	run.FinishedAt = s.now()
	logging.WithContext(services.WithSessionID(ctx, session.ID), s.logger).Info("search saved",
		logging.String("query", req.Query),
		logging.String("kind", string(req.Kind)),
		logging.Int("results", len(run.Results)),
		logging.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	s.recordSearch(ctx, run)
	return run, nil
}

// MarkDisplayed records that a persisted run was shown and returns it to idle.
func (s *Searcher) MarkDisplayed(run *Run) error {
	if run == nil {
		return errors.New("searcher: nil run")
	}
	if err := run.transition(StateDisplayed); err != nil {
		return err
	}
	return run.transition(StateIdle)
}

func (s *Searcher) failed(run *Run, err error) (*Run, error) {
	run.fail(err)
	run.FinishedAt = s.now()
	return run, err
}

// resolveTags shares one upstream lookup between concurrent searches. The
// lookup outlives any single caller; each caller stops waiting when its own
// context ends.
func (s *Searcher) resolveTags(ctx context.Context) (prowlarr.MediaTags, error) {
	lookupCtx := context.WithoutCancel(ctx)
	ch := s.tags.DoChan("media-tags", func() (any, error) {
		return s.client.ResolveMediaTags(lookupCtx)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return prowlarr.MediaTags{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return prowlarr.MediaTags{}, res.Err
	}
	tags := res.Val.(prowlarr.MediaTags)
	shared := res.Shared
	logging.WithContext(ctx, s.logger).Debug("media tags resolved",
		logging.Int("audiobooks", tags.Audiobooks),
		logging.Int("ebooks", tags.Ebooks),
		logging.Bool("shared", shared),
	)
	return tags, nil
}

func tagIDs(tags prowlarr.MediaTags, kind sessioncache.Kind) []int {
	switch kind {
	case sessioncache.KindAudiobooks:
		return []int{tags.Audiobooks}
	case sessioncache.KindEbooks:
		return []int{tags.Ebooks}
	default:
		return []int{tags.Audiobooks, tags.Ebooks}
	}
}

func toResults(releases []prowlarr.Release) []sessioncache.Result {
	results := make([]sessioncache.Result, 0, len(releases))
	for _, r := range releases {
		size := r.Size
		if size < 0 {
			size = 0
		}
		results = append(results, sessioncache.Result{
			GUID:        r.GUID,
			IndexerID:   r.IndexerID,
			Title:       r.Title,
			Size:        size,
			Protocol:    strings.ToLower(r.Protocol),
			PublishDate: r.PublishDate,
			Indexer:     r.Indexer,
			Grabs:       r.Grabs,
			Seeders:     r.Seeders,
		})
	}
	return results
}

func (s *Searcher) recordSearch(ctx context.Context, run *Run) {
	if s.recorder == nil {
		return
	}
	correlationID, _ := services.RequestIDFromContext(ctx)
	err := s.recorder.RecordSearch(ctx, history.SearchEvent{
		At:            run.StartedAt,
		SessionID:     run.SessionID,
		Query:         run.Request.Query,
		Kind:          string(run.Request.Kind),
		Protocol:      run.Request.Protocol,
		Mode:          string(run.Request.Mode),
		Results:       len(run.Results),
		CorrelationID: correlationID,
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "search is missing from the history ledger"),
		)
	}
}
