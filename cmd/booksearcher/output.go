package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"booksearcher/internal/progress"
	"booksearcher/internal/sessioncache"
)

const stampLayout = "2006-01-02 15:04"

var titleCaser = cases.Title(language.English)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// colorEnabled reports whether w is a terminal that accepts ANSI colors.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && progress.IsTerminal(f)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "N/A"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatCount(n int64) string {
	return humanize.Comma(n)
}

// formatAge renders the time since t as "2d 3h ago", "45m ago" or "just now".
func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d%(24*time.Hour)) / int(time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh ago", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm ago", hours, minutes)
	default:
		return fmt.Sprintf("%dm ago", minutes)
	}
}

func kindLabel(kind sessioncache.Kind) string {
	switch kind {
	case sessioncache.KindBoth, "":
		return "Audiobooks + Ebooks"
	default:
		return titleCaser.String(string(kind))
	}
}

func protocolLabel(protocol string) string {
	if protocol == "" {
		return "any"
	}
	return protocol
}

// truncate shortens s to width terminal cells.
func truncate(s string, width int) string {
	s = strings.TrimSpace(s)
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
