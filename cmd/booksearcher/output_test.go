package main

import (
	"slices"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"booksearcher/internal/sessioncache"
)

func TestTruncateRespectsCellWidth(t *testing.T) {
	if got := truncate("  short  ", 10); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	wide := strings.Repeat("本", 20)
	got := truncate(wide, 11)
	if w := runewidth.StringWidth(got); w > 11 {
		t.Fatalf("truncated width = %d, want <= 11 (%q)", w, got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
}

func TestKindLabel(t *testing.T) {
	tests := map[sessioncache.Kind]string{
		sessioncache.KindAudiobooks: "Audiobooks",
		sessioncache.KindEbooks:     "Ebooks",
		sessioncache.KindBoth:       "Audiobooks + Ebooks",
	}
	for kind, want := range tests {
		if got := kindLabel(kind); got != want {
			t.Errorf("kindLabel(%q) = %q, want %q", kind, got, want)
		}
	}
}

func TestDistinct(t *testing.T) {
	got := distinct([]string{"usenet", "torrent", " usenet", ""})
	if !slices.Equal(got, []string{"torrent", "usenet"}) {
		t.Fatalf("distinct = %v", got)
	}
	if got := distinct(nil); !slices.Equal(got, []string{"unknown"}) {
		t.Fatalf("distinct(nil) = %v", got)
	}
}

func TestFormatSize(t *testing.T) {
	if got := formatSize(0); got != "N/A" {
		t.Fatalf("formatSize(0) = %q", got)
	}
	if got := formatSize(2 << 20); got != "2.0 MiB" {
		t.Fatalf("formatSize(2MiB) = %q", got)
	}
}
