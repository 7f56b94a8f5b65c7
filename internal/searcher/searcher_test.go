package searcher

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"booksearcher/internal/history"
	"booksearcher/internal/services"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/sessioncache"
	"booksearcher/internal/testsupport"
)

type fakeUpstream struct {
	mu           sync.Mutex
	tags         prowlarr.MediaTags
	tagErr       error
	releases     []prowlarr.Release
	searchErr    error
	grabErr      error
	tagCalls     int
	searchCalls  int
	lastTagIDs   []int
	lastProtocol string
	grabbed      []string
}

func (f *fakeUpstream) ResolveMediaTags(context.Context) (prowlarr.MediaTags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls++
	return f.tags, f.tagErr
}

func (f *fakeUpstream) Search(_ context.Context, _ string, tagIDs []int, protocol string) ([]prowlarr.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastTagIDs = tagIDs
	f.lastProtocol = protocol
	return slices.Clone(f.releases), f.searchErr
}

func (f *fakeUpstream) Grab(_ context.Context, guid string, indexerID int) (prowlarr.GrabConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grabErr != nil {
		return prowlarr.GrabConfirmation{}, f.grabErr
	}
	f.grabbed = append(f.grabbed, guid)
	return prowlarr.GrabConfirmation{GUID: guid, IndexerID: indexerID, Title: "grabbed " + guid}, nil
}

type fakeRecorder struct {
	searches []history.SearchEvent
	grabs    []history.GrabEvent
	err      error
}

func (r *fakeRecorder) RecordSearch(_ context.Context, ev history.SearchEvent) error {
	r.searches = append(r.searches, ev)
	return r.err
}

func (r *fakeRecorder) RecordGrab(_ context.Context, ev history.GrabEvent) error {
	r.grabs = append(r.grabs, ev)
	return r.err
}

type failingStore struct {
	err error
}

func (s failingStore) Create(context.Context, sessioncache.Session) (sessioncache.Session, error) {
	return sessioncache.Session{}, s.err
}

func (s failingStore) Load(int) (sessioncache.Session, error) { return sessioncache.Session{}, s.err }

func (s failingStore) Latest() (int, error) { return 0, s.err }

func newUpstream() *fakeUpstream {
	return &fakeUpstream{
		tags: prowlarr.MediaTags{Audiobooks: 7, Ebooks: 8},
		releases: []prowlarr.Release{
			{GUID: "big", IndexerID: 1, Title: "Dune (Unabridged)", Size: 2000, Protocol: "torrent", Seeders: 12},
			{GUID: "small", IndexerID: 2, Title: "Dune", Size: 500, Protocol: "Usenet", Grabs: 3},
		},
	}
}

func newTestSearcher(t *testing.T, upstream Upstream, opts ...Option) (*Searcher, *sessioncache.Cache) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cache := testsupport.MustOpenCache(t, cfg)
	return New(upstream, cache, nil, opts...), cache
}

// gatedUpstream blocks tag lookups until release is closed.
type gatedUpstream struct {
	*fakeUpstream
	entered chan struct{}
	release chan struct{}
}

func (g *gatedUpstream) ResolveMediaTags(ctx context.Context) (prowlarr.MediaTags, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return prowlarr.MediaTags{}, ctx.Err()
	}
	return g.fakeUpstream.ResolveMediaTags(ctx)
}

func TestSharedTagLookupSurvivesCancelledCaller(t *testing.T) {
	upstream := &gatedUpstream{
		fakeUpstream: newUpstream(),
		entered:      make(chan struct{}, 2),
		release:      make(chan struct{}),
	}
	s, _ := newTestSearcher(t, upstream)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.resolveTags(firstCtx)
		firstErr <- err
	}()
	<-upstream.entered

	type outcome struct {
		tags prowlarr.MediaTags
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		tags, err := s.resolveTags(context.Background())
		second <- outcome{tags: tags, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared lookup")
	}

	close(upstream.release)
	select {
	case got := <-second:
		if got.err != nil {
			t.Fatalf("second caller: %v", got.err)
		}
		if got.tags != upstream.tags {
			t.Fatalf("second caller tags = %+v, want %+v", got.tags, upstream.tags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never finished")
	}
}

func TestSearchPersistsSession(t *testing.T) {
	upstream := newUpstream()
	recorder := &fakeRecorder{}
	s, cache := newTestSearcher(t, upstream, WithRecorder(recorder))

	run, err := s.Search(context.Background(), Request{Query: "  dune ", Kind: sessioncache.KindAudiobooks, Protocol: "tor", Mode: sessioncache.ModeHeadless})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	wantHistory := []State{StateIdle, StateTagsResolved, StateSearching, StatePersisted}
	if !slices.Equal(run.History, wantHistory) {
		t.Fatalf("history = %v, want %v", run.History, wantHistory)
	}
	if run.SessionID != 1 || !run.Saved() {
		t.Fatalf("expected session 1, got %d", run.SessionID)
	}
	if !slices.Equal(upstream.lastTagIDs, []int{7}) || upstream.lastProtocol != "torrent" {
		t.Fatalf("unexpected upstream call tags=%v protocol=%q", upstream.lastTagIDs, upstream.lastProtocol)
	}

	session, err := cache.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if session.Query != "dune" || session.Kind != sessioncache.KindAudiobooks || session.Mode != sessioncache.ModeHeadless || session.Protocol != "torrent" {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(session.Results) != 2 || session.Results[0].GUID != "big" || session.Results[1].GUID != "small" {
		t.Fatalf("unexpected results %+v", session.Results)
	}
	if session.Results[1].Protocol != "usenet" || session.Results[1].Grabs != 3 {
		t.Fatalf("result fields not carried over: %+v", session.Results[1])
	}

	if len(recorder.searches) != 1 || recorder.searches[0].SessionID != 1 || recorder.searches[0].Results != 2 {
		t.Fatalf("unexpected recorded searches %+v", recorder.searches)
	}
	if stats := s.Stats(); stats.Searches != 1 {
		t.Fatalf("searches = %d", stats.Searches)
	}
}

func TestSearchKindSelectsTags(t *testing.T) {
	tests := []struct {
		kind sessioncache.Kind
		want []int
	}{
		{sessioncache.KindAudiobooks, []int{7}},
		{sessioncache.KindEbooks, []int{8}},
		{sessioncache.KindBoth, []int{7, 8}},
		{"", []int{7, 8}},
	}
	for _, tc := range tests {
		upstream := newUpstream()
		s, _ := newTestSearcher(t, upstream)
		if _, err := s.Search(context.Background(), Request{Query: "q", Kind: tc.kind}); err != nil {
			t.Fatalf("Search(%q): %v", tc.kind, err)
		}
		if !slices.Equal(upstream.lastTagIDs, tc.want) {
			t.Fatalf("kind %q: tags = %v, want %v", tc.kind, upstream.lastTagIDs, tc.want)
		}
	}
}

func TestSearchWithNoResultsSavesNothing(t *testing.T) {
	upstream := newUpstream()
	upstream.releases = nil
	recorder := &fakeRecorder{}
	s, cache := newTestSearcher(t, upstream, WithRecorder(recorder))

	run, err := s.Search(context.Background(), Request{Query: "nothing"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if run.Saved() || run.State() != StateIdle {
		t.Fatalf("unexpected run %+v", run)
	}
	next, err := cache.NextID()
	if err != nil || next != 1 {
		t.Fatalf("NextID = %d, %v", next, err)
	}
	if len(recorder.searches) != 1 || recorder.searches[0].SessionID != 0 {
		t.Fatalf("expected an unsaved search in history, got %+v", recorder.searches)
	}
}

func TestSearchUpstreamFailureSavesNothing(t *testing.T) {
	upstream := newUpstream()
	upstream.searchErr = &prowlarr.RetryExceededError{Endpoint: "GET /api/v1/search", Attempts: 3, Last: errors.New("boom")}
	s, cache := newTestSearcher(t, upstream)

	run, err := s.Search(context.Background(), Request{Query: "dune"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if run.State() != StateFailed || run.Err == nil {
		t.Fatalf("unexpected run %+v", run)
	}
	if !slices.Contains(run.History, StateSearching) {
		t.Fatalf("history should include searching: %v", run.History)
	}
	if next, _ := cache.NextID(); next != 1 {
		t.Fatalf("failed search must not create a session, NextID = %d", next)
	}
}

func TestSearchTagFailureStopsBeforeSearching(t *testing.T) {
	upstream := newUpstream()
	upstream.tagErr = services.Wrap(services.ErrConfiguration, "prowlarr", "resolve tags", "missing", nil)
	s, _ := newTestSearcher(t, upstream)

	run, err := s.Search(context.Background(), Request{Query: "dune"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !slices.Equal(run.History, []State{StateIdle, StateFailed}) {
		t.Fatalf("history = %v", run.History)
	}
	if upstream.searchCalls != 0 {
		t.Fatal("search must not run after tag failure")
	}
}

func TestSearchSaveFailureStillReturnsResults(t *testing.T) {
	upstream := newUpstream()
	saveErr := errors.New("disk full")
	s := New(upstream, failingStore{err: saveErr}, nil)

	run, err := s.Search(context.Background(), Request{Query: "dune"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if !errors.Is(run.SaveErr, saveErr) {
		t.Fatalf("SaveErr = %v", run.SaveErr)
	}
	if len(run.Results) != 2 || run.Saved() {
		t.Fatalf("unexpected run %+v", run)
	}
	want := []State{StateIdle, StateTagsResolved, StateSearching, StateFailed}
	if !slices.Equal(run.History, want) {
		t.Fatalf("history = %v, want %v", run.History, want)
	}
}

func TestSearchValidation(t *testing.T) {
	upstream := newUpstream()
	s, _ := newTestSearcher(t, upstream)
	for _, req := range []Request{
		{Query: "   "},
		{Query: "dune", Kind: "comics"},
		{Query: "dune", Protocol: "ftp"},
	} {
		if _, err := s.Search(context.Background(), req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("request %+v: expected validation error, got %v", req, err)
		}
	}
	if upstream.tagCalls != 0 {
		t.Fatal("invalid requests must not reach upstream")
	}
}

func TestMarkDisplayed(t *testing.T) {
	s, _ := newTestSearcher(t, newUpstream())
	run, err := s.Search(context.Background(), Request{Query: "dune"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := s.MarkDisplayed(run); err != nil {
		t.Fatalf("MarkDisplayed: %v", err)
	}
	if run.State() != StateIdle || !slices.Contains(run.History, StateDisplayed) {
		t.Fatalf("history = %v", run.History)
	}
	if err := s.MarkDisplayed(run); err == nil {
		t.Fatal("expected error when displaying an idle run")
	}
}

func TestGrabByPosition(t *testing.T) {
	upstream := newUpstream()
	recorder := &fakeRecorder{}
	s, _ := newTestSearcher(t, upstream, WithRecorder(recorder))
	ctx := context.Background()
	if _, err := s.Search(ctx, Request{Query: "dune"}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	outcome, err := s.Grab(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if outcome.Result.GUID != "small" || outcome.Position != 2 || outcome.SessionID != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if !slices.Equal(upstream.grabbed, []string{"small"}) {
		t.Fatalf("grabbed = %v", upstream.grabbed)
	}
	if len(recorder.grabs) != 1 || recorder.grabs[0].Size != 500 || recorder.grabs[0].Position != 2 {
		t.Fatalf("unexpected recorded grabs %+v", recorder.grabs)
	}

	for _, position := range []int{0, 3, -1} {
		if _, err := s.Grab(ctx, 1, position); !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("position %d: expected ErrInvalidPosition, got %v", position, err)
		}
	}
	if _, err := s.Grab(ctx, 42, 1); !errors.Is(err, sessioncache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stats := s.Stats()
	if stats.Grabs != 1 || stats.CacheHits != 4 || stats.CacheMisses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if ratio := stats.HitRatio(); ratio != 0.8 {
		t.Fatalf("hit ratio = %v", ratio)
	}
}

func TestGrabLatestUsesNewestSession(t *testing.T) {
	upstream := newUpstream()
	s, cache := newTestSearcher(t, upstream)
	ctx := context.Background()

	if _, err := s.GrabLatest(ctx, 1); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on empty cache, got %v", err)
	}

	if _, err := s.Search(ctx, Request{Query: "first"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	upstream.releases = []prowlarr.Release{{GUID: "second-only", IndexerID: 3, Size: 1}}
	if _, err := s.Search(ctx, Request{Query: "second"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	latest, err := cache.Latest()
	if err != nil || latest != 2 {
		t.Fatalf("Latest = %d, %v", latest, err)
	}

	outcome, err := s.GrabLatest(ctx, 1)
	if err != nil {
		t.Fatalf("GrabLatest: %v", err)
	}
	if outcome.SessionID != 2 || outcome.Result.GUID != "second-only" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestGrabRelease(t *testing.T) {
	upstream := newUpstream()
	s, _ := newTestSearcher(t, upstream)

	if _, err := s.GrabRelease(context.Background(), "", 1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	outcome, err := s.GrabRelease(context.Background(), "guid-9", 4)
	if err != nil {
		t.Fatalf("GrabRelease: %v", err)
	}
	if outcome.Result.Title != "grabbed guid-9" || outcome.SessionID != 0 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestGrabUpstreamRejection(t *testing.T) {
	upstream := newUpstream()
	s, _ := newTestSearcher(t, upstream)
	ctx := context.Background()
	if _, err := s.Search(ctx, Request{Query: "dune"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	upstream.grabErr = &prowlarr.GrabRejectedError{GUID: "big", Reason: "blocklisted"}
	_, err := s.Grab(ctx, 1, 1)
	var rejected *prowlarr.GrabRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected GrabRejectedError, got %v", err)
	}
	if s.Stats().Grabs != 0 {
		t.Fatal("rejected grabs must not be counted")
	}
}

func TestHistoryFailureDoesNotFailSearch(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("database is locked")}
	s, _ := newTestSearcher(t, newUpstream(), WithRecorder(recorder))
	run, err := s.Search(context.Background(), Request{Query: "dune"})
	if err != nil || !run.Saved() {
		t.Fatalf("Search: run=%+v err=%v", run, err)
	}
}

func TestStatsUptimeUsesClock(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	now := start
	s, _ := newTestSearcher(t, newUpstream(), WithClock(func() time.Time { return now }))
	now = start.Add(90 * time.Second)
	stats := s.Stats()
	if !stats.StartedAt.Equal(start) || stats.Uptime != 90*time.Second {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.HitRatio() != 0 {
		t.Fatalf("hit ratio before lookups = %v", stats.HitRatio())
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]sessioncache.Kind{
		"":           sessioncache.KindBoth,
		"both":       sessioncache.KindBoth,
		"audio":      sessioncache.KindAudiobooks,
		"Audiobooks": sessioncache.KindAudiobooks,
		"book":       sessioncache.KindEbooks,
		"ebooks":     sessioncache.KindEbooks,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("comics"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
