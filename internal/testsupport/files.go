package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"booksearcher/internal/sessioncache"
)

// WriteSession lays out search_<id>/{results.json,meta.json} under dir the
// way earlier releases wrote them: a bare result array and a meta file with
// a naive ISO timestamp.
func WriteSession(t testing.TB, dir string, id int, query string, kind sessioncache.Kind, results []sessioncache.Result) string {
	t.Helper()

	entry := filepath.Join(dir, fmt.Sprintf("search_%d", id))
	if err := os.MkdirAll(entry, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", entry, err)
	}
	if results == nil {
		results = []sessioncache.Result{}
	}
	writeJSONFile(t, filepath.Join(entry, "results.json"), results)
	writeJSONFile(t, filepath.Join(entry, "meta.json"), map[string]any{
		"timestamp":   time.Now().Format("2006-01-02T15:04:05.000000"),
		"search_term": query,
		"kind":        string(kind),
		"protocol":    nil,
		"mode":        "headless",
	})
	return entry
}

func writeJSONFile(t testing.TB, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
