package prowlarr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"booksearcher/internal/services"
)

type fakeProwlarr struct {
	t        *testing.T
	tags     []Tag
	indexers []Indexer
	releases []Release

	mu       sync.Mutex
	requests []*http.Request
	grabs    []grabRequest
	grabResp any
}

func (f *fakeProwlarr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()
	if r.Header.Get("X-Api-Key") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == pathTag:
		_ = json.NewEncoder(w).Encode(f.tags)
	case r.Method == http.MethodGet && r.URL.Path == pathIndexer:
		_ = json.NewEncoder(w).Encode(f.indexers)
	case r.Method == http.MethodGet && r.URL.Path == pathSearch:
		_ = json.NewEncoder(w).Encode(f.releases)
	case r.Method == http.MethodPost && r.URL.Path == pathSearch:
		var req grabRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode grab body: %v", err)
		}
		f.mu.Lock()
		f.grabs = append(f.grabs, req)
		f.mu.Unlock()
		resp := f.grabResp
		if resp == nil {
			resp = map[string]any{"guid": req.GUID, "indexerId": req.IndexerID, "title": "Grabbed"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFake(t *testing.T) *fakeProwlarr {
	return &fakeProwlarr{
		t: t,
		tags: []Tag{
			{ID: 1, Label: "AudioBooks"},
			{ID: 2, Label: "ebooks"},
			{ID: 3, Label: "movies"},
		},
		indexers: []Indexer{
			{ID: 10, Name: "AudioTracker", Enable: true, Protocol: "torrent", Tags: []int{1}},
			{ID: 11, Name: "BookNZB", Enable: true, Protocol: "usenet", Tags: []int{2}},
			{ID: 12, Name: "Disabled", Enable: false, Protocol: "torrent", Tags: []int{1, 2}},
			{ID: 13, Name: "Movies", Enable: true, Protocol: "torrent", Tags: []int{3}},
		},
	}
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithSleeper(func(time.Duration) {})}
	client := NewClient(Config{BaseURL: url + "/", APIKey: "secret"}, append(base, opts...)...)
	t.Cleanup(client.Close)
	return client
}

func TestResolveMediaTagsCaseInsensitive(t *testing.T) {
	fake := newFake(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	client := newTestClient(t, server.URL)
	tags, err := client.ResolveMediaTags(context.Background())
	if err != nil {
		t.Fatalf("ResolveMediaTags: %v", err)
	}
	if tags.Audiobooks != 1 || tags.Ebooks != 2 {
		t.Fatalf("unexpected tags: %+v", tags)
	}
	req := fake.requests[0]
	if got := req.Header.Get("Accept"); got != "application/json" {
		t.Fatalf("Accept = %q", got)
	}
	if got := req.Header.Get("User-Agent"); got != "BookSearcher/1.0" {
		t.Fatalf("User-Agent = %q", got)
	}
}

func TestResolveMediaTagsMissingLabelIsConfigurationError(t *testing.T) {
	fake := newFake(t)
	fake.tags = []Tag{{ID: 1, Label: "audiobooks"}}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ResolveMediaTags(context.Background())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ebooks") {
		t.Fatalf("expected missing label in message, got %v", err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("configuration errors must not be retried, saw %d requests", len(fake.requests))
	}
}

func TestResolveIndexersFiltersByTagEnableAndProtocol(t *testing.T) {
	server := httptest.NewServer(newFake(t))
	defer server.Close()
	client := newTestClient(t, server.URL)

	tests := []struct {
		name     string
		tags     []int
		protocol string
		want     []int
	}{
		{"both kinds", []int{1, 2}, "", []int{10, 11}},
		{"audiobooks only", []int{1}, "", []int{10}},
		{"protocol filter", []int{1, 2}, "USENET", []int{11}},
		{"no match", []int{99}, "", []int{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := client.ResolveIndexers(context.Background(), tc.tags, tc.protocol)
			if err != nil {
				t.Fatalf("ResolveIndexers: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestSearchFiltersAndSortsStable(t *testing.T) {
	fake := newFake(t)
	fake.releases = []Release{
		{GUID: "a", IndexerID: 10, Title: "A", Size: 500, Protocol: "torrent"},
		{GUID: "b", IndexerID: 11, Title: "B", Size: 2000, Protocol: "usenet"},
		{GUID: "c", IndexerID: 13, Title: "Movie", Size: 9000, Protocol: "torrent"},
		{GUID: "d", IndexerID: 10, Title: "D", Size: 500, Protocol: "torrent"},
		{GUID: "e", IndexerID: 12, Title: "Disabled", Size: 7000, Protocol: "torrent"},
	}
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newTestClient(t, server.URL)

	releases, err := client.Search(context.Background(), " dune ", []int{1, 2}, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var guids []string
	for _, r := range releases {
		guids = append(guids, r.GUID)
	}
	if strings.Join(guids, ",") != "b,a,d" {
		t.Fatalf("unexpected order %v", guids)
	}

	var searchReq *http.Request
	for _, req := range fake.requests {
		if req.URL.Path == pathSearch {
			searchReq = req
		}
	}
	if searchReq == nil {
		t.Fatal("search endpoint not called")
	}
	q := searchReq.URL.Query()
	if q.Get("query") != "dune" || q.Get("type") != "search" || q.Get("limit") != "100" || q.Get("offset") != "0" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestSearchProtocolFilter(t *testing.T) {
	fake := newFake(t)
	fake.indexers[1].Protocol = "torrent"
	fake.releases = []Release{
		{GUID: "a", IndexerID: 10, Size: 1, Protocol: "torrent"},
		{GUID: "b", IndexerID: 11, Size: 2, Protocol: "usenet"},
	}
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newTestClient(t, server.URL)

	releases, err := client.Search(context.Background(), "q", []int{1, 2}, "torrent")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(releases) != 1 || releases[0].GUID != "a" {
		t.Fatalf("unexpected releases %+v", releases)
	}
}

func TestSearchNoIndexers(t *testing.T) {
	fake := newFake(t)
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newTestClient(t, server.URL)

	_, err := client.Search(context.Background(), "q", []int{42}, "")
	if !errors.Is(err, ErrNoIndexers) {
		t.Fatalf("expected ErrNoIndexers, got %v", err)
	}
	for _, req := range fake.requests {
		if req.URL.Path == pathSearch {
			t.Fatal("search endpoint should not be called without indexers")
		}
	}
}

func TestSearchErrorPayloadIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathIndexer:
			_ = json.NewEncoder(w).Encode([]Indexer{{ID: 1, Enable: true, Tags: []int{1}}})
		default:
			_, _ = w.Write([]byte(`{"message":"Search failed: indexer unavailable"}`))
		}
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	_, err := client.Search(context.Background(), "q", []int{1}, "")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !strings.Contains(upstream.Message, "indexer unavailable") {
		t.Fatalf("unexpected message %q", upstream.Message)
	}
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected services.ErrUpstream match")
	}
}

func TestRetriesTransientFailuresThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]Tag{{ID: 1, Label: "audiobooks"}, {ID: 2, Label: "ebooks"}})
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret"},
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)
	defer client.Close()

	if _, err := client.ResolveMediaTags(context.Background()); err != nil {
		t.Fatalf("ResolveMediaTags: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(delays) != 2 || delays[0] != 500*time.Millisecond || delays[1] != time.Second {
		t.Fatalf("unexpected backoff delays %v", delays)
	}
	stats := client.Stats()
	if stats.Requests != 3 || stats.Errors != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.LastRequest == nil || stats.LastRequest.Status != http.StatusOK || stats.LastRequest.Endpoint != pathTag {
		t.Fatalf("unexpected last request %+v", stats.LastRequest)
	}
	if ep := stats.ByEndpoint["GET /api/v1/tag"]; ep.Requests != 3 || ep.Errors != 2 {
		t.Fatalf("unexpected endpoint stats %+v", ep)
	}
	if stats.LastError == nil || stats.LastError.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected last error %+v", stats.LastError)
	}
}

func TestRetryExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	client := newTestClient(t, server.URL, WithMetrics(metrics))

	_, err := client.ResolveIndexers(context.Background(), []int{1}, "")
	var exceeded *RetryExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetryExceededError, got %v", err)
	}
	if exceeded.Attempts != 3 || exceeded.Endpoint != "GET /api/v1/indexer" {
		t.Fatalf("unexpected error fields %+v", exceeded)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected last cause to be the 502, got %v", exceeded.Last)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected services.ErrTransient match")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET /api/v1/indexer", "502")); got != 3 {
		t.Fatalf("requests_total = %v", got)
	}
	if got := testutil.ToFloat64(metrics.RetriesTotal.WithLabelValues("GET /api/v1/indexer")); got != 2 {
		t.Fatalf("retries_total = %v", got)
	}
	if got := testutil.ToFloat64(metrics.ExhaustedTotal.WithLabelValues("GET /api/v1/indexer")); got != 1 {
		t.Fatalf("retries_exhausted_total = %v", got)
	}
}

func TestNonTransientFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"message":"bad query"}`},
		{"not found", http.StatusNotFound, ``},
		{"malformed json", http.StatusOK, `[{"id": 1,`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()
			client := newTestClient(t, server.URL)

			_, err := client.ResolveMediaTags(context.Background())
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upstream.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", upstream.StatusCode, tc.status)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected a single attempt, got %d", calls.Load())
			}
		})
	}
}

func TestUnauthorizedMatchesConfiguration(t *testing.T) {
	server := httptest.NewServer(newFake(t))
	defer server.Close()
	client := NewClient(Config{BaseURL: server.URL, APIKey: "wrong"}, WithSleeper(func(time.Duration) {}))
	defer client.Close()

	_, err := client.ResolveMediaTags(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration match for 401, got %v", err)
	}
}

func TestRetryAfterIsHonouredAndCapped(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	var delays []time.Duration
	client := newTestClient(t, server.URL, WithSleeper(func(d time.Duration) { delays = append(delays, d) }))
	if _, err := client.ResolveIndexers(context.Background(), nil, ""); err != nil {
		t.Fatalf("ResolveIndexers: %v", err)
	}
	if len(delays) != 2 || delays[0] != 3*time.Second || delays[1] != 10*time.Second {
		t.Fatalf("unexpected delays %v", delays)
	}
}

func TestNetworkErrorsAreRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url, WithRetryBackoff(time.Millisecond, 5*time.Millisecond))
	_, err := client.ResolveMediaTags(context.Background())
	var exceeded *RetryExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetryExceededError for refused connections, got %v", err)
	}
	if stats := client.Stats(); stats.Requests != 3 || stats.Errors != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestTruncatedBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Content-Length", "100")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"id":1,`))
			return
		}
		_ = json.NewEncoder(w).Encode([]Tag{{ID: 1, Label: "audiobooks"}, {ID: 2, Label: "ebooks"}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	tags, err := client.ResolveMediaTags(context.Background())
	if err != nil {
		t.Fatalf("ResolveMediaTags: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if tags.Audiobooks != 1 || tags.Ebooks != 2 {
		t.Fatalf("unexpected tags %+v", tags)
	}
}

func TestCancelledContextIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	_, err := client.ResolveMediaTags(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var exceeded *RetryExceededError
	if errors.As(err, &exceeded) {
		t.Fatal("cancellation must not surface as RetryExceededError")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one attempt, got %d", calls.Load())
	}
}

func TestGrabSendsPayload(t *testing.T) {
	fake := newFake(t)
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newTestClient(t, server.URL)

	confirmation, err := client.Grab(context.Background(), "guid-1", 10)
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if confirmation.GUID != "guid-1" || confirmation.Title != "Grabbed" {
		t.Fatalf("unexpected confirmation %+v", confirmation)
	}
	if len(fake.grabs) != 1 || fake.grabs[0].GUID != "guid-1" || fake.grabs[0].IndexerID != 10 {
		t.Fatalf("unexpected grab payload %+v", fake.grabs)
	}
}

func TestGrabRejected(t *testing.T) {
	tests := []struct {
		name   string
		resp   any
		reason string
	}{
		{"text reason", map[string]any{"rejected": "Release is blocklisted"}, "Release is blocklisted"},
		{"bool with list", map[string]any{"rejected": true, "rejections": []string{"too old", "no seeders"}}, "too old; no seeders"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFake(t)
			fake.grabResp = tc.resp
			server := httptest.NewServer(fake)
			defer server.Close()
			client := newTestClient(t, server.URL)

			_, err := client.Grab(context.Background(), "guid-1", 10)
			var rejected *GrabRejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("expected GrabRejectedError, got %v", err)
			}
			if rejected.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", rejected.Reason, tc.reason)
			}
		})
	}
}

func TestGrabRejectedFalseIsSuccess(t *testing.T) {
	fake := newFake(t)
	fake.grabResp = map[string]any{"guid": "guid-1", "rejected": false, "title": "ok"}
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newTestClient(t, server.URL)

	if _, err := client.Grab(context.Background(), "guid-1", 10); err != nil {
		t.Fatalf("Grab: %v", err)
	}
}

func TestNormalizeProtocol(t *testing.T) {
	tests := map[string]string{"": "", "tor": "torrent", "Torrent": "torrent", "nzb": "usenet", "usenet": "usenet"}
	for in, want := range tests {
		got, err := NormalizeProtocol(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeProtocol(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := NormalizeProtocol("ftp"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://example"}, WithRetryBackoff(500*time.Millisecond, 3*time.Second))
	defer client.Close()
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, expected := range want {
		if got := client.backoffDelay(i + 1); got != expected {
			t.Fatalf("attempt %d delay = %s, want %s", i+1, got, expected)
		}
	}
}
