package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"booksearcher/internal/services/prowlarr"
)

// FakeAPIKey is the key FakeProwlarr accepts.
const FakeAPIKey = "secret"

// GrabCall is one download request received by FakeProwlarr.
type GrabCall struct {
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexerId"`
}

// FakeProwlarr serves the tag, indexer and search endpoints from fixed data.
// Fields may be changed between requests.
type FakeProwlarr struct {
	Tags     []prowlarr.Tag
	Indexers []prowlarr.Indexer
	Releases []prowlarr.Release

	server *httptest.Server

	mu       sync.Mutex
	searches []url.Values
	grabs    []GrabCall
}

// NewProwlarr starts a fake with an audiobooks tag (1) on a torrent indexer
// (10) and an ebooks tag (2) on a usenet indexer (11).
func NewProwlarr(t testing.TB) *FakeProwlarr {
	t.Helper()

	f := &FakeProwlarr{
		Tags: []prowlarr.Tag{
			{ID: 1, Label: "audiobooks"},
			{ID: 2, Label: "ebooks"},
		},
		Indexers: []prowlarr.Indexer{
			{ID: 10, Name: "AudioTracker", Enable: true, Protocol: "torrent", Tags: []int{1}},
			{ID: 11, Name: "BookNZB", Enable: true, Protocol: "usenet", Tags: []int{2}},
		},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the fake's base URL.
func (f *FakeProwlarr) URL() string {
	return f.server.URL
}

// Searches returns the query strings of every search request.
func (f *FakeProwlarr) Searches() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.searches...)
}

// Grabs returns every download request received so far.
func (f *FakeProwlarr) Grabs() []GrabCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GrabCall(nil), f.grabs...)
}

func (f *FakeProwlarr) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Api-Key") != FakeAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tag":
		_ = json.NewEncoder(w).Encode(f.Tags)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/indexer":
		_ = json.NewEncoder(w).Encode(f.Indexers)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/search":
		f.mu.Lock()
		f.searches = append(f.searches, r.URL.Query())
		f.mu.Unlock()
		releases := f.Releases
		if releases == nil {
			releases = []prowlarr.Release{}
		}
		_ = json.NewEncoder(w).Encode(releases)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/search":
		var call GrabCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.grabs = append(f.grabs, call)
		f.mu.Unlock()
		title := call.GUID
		for _, release := range f.Releases {
			if release.GUID == call.GUID {
				title = release.Title
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"guid": call.GUID, "indexerId": call.IndexerID, "title": title})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
