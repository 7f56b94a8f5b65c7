package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"booksearcher/internal/sessioncache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage saved searches",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCache(cmd, ctx)
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show the results of one saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			return showCache(cmd, ctx, id)
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "find <text>",
		Short: "Find saved searches whose terms fuzzily match text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return findCache(cmd, ctx, strings.Join(args, " "))
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all saved searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearCache(cmd, ctx)
		},
	})
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))

	return cacheCmd
}

func listCache(cmd *cobra.Command, ctx *commandContext) error {
	cache, err := ctx.sessionCache()
	if err != nil {
		return err
	}
	summaries, err := cache.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No saved searches")
		return nil
	}
	fmt.Fprintln(out, renderSummaries(summaries, time.Now(), colorEnabled(out)))
	return nil
}

func renderSummaries(summaries []sessioncache.Summary, now time.Time, color bool) string {
	columns := []column{
		{header: "ID", align: alignRight},
		{header: "Search", maxWidth: 40},
		{header: "Type"},
		{header: "Protocol"},
		{header: "Results", align: alignRight},
		{header: "Size", align: alignRight},
		{header: "Age"},
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			strconv.Itoa(s.ID),
			s.Query,
			kindLabel(s.Kind),
			protocolLabel(s.Protocol),
			strconv.Itoa(s.ResultCount),
			formatSize(s.SizeBytes),
			formatAge(now, s.CreatedAt),
		})
	}
	return renderTable(columns, rows, color)
}

func showCache(cmd *cobra.Command, ctx *commandContext, id int) error {
	cache, err := ctx.sessionCache()
	if err != nil {
		return err
	}
	session, err := cache.Load(id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Search #%d: %s\n", session.ID, session.Query)
	fmt.Fprintf(out, "Type: %s  Protocol: %s  Mode: %s\n", kindLabel(session.Kind), protocolLabel(session.Protocol), session.Mode)
	fmt.Fprintf(out, "Saved: %s (%s)\n", session.CreatedAt.Local().Format(stampLayout), formatAge(time.Now(), session.CreatedAt))
	if len(session.Results) == 0 {
		fmt.Fprintln(out, "No results")
		return nil
	}
	fmt.Fprintln(out, renderResults(session.Results, colorEnabled(out)))
	fmt.Fprintf(out, "To download: booksearcher grab -s %d -g <result number>\n", session.ID)
	return nil
}

func findCache(cmd *cobra.Command, ctx *commandContext, text string) error {
	cache, err := ctx.sessionCache()
	if err != nil {
		return err
	}
	matches, err := cache.Find(text)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintf(out, "No saved searches match %q\n", text)
		return nil
	}
	summaries := make([]sessioncache.Summary, len(matches))
	for i, m := range matches {
		summaries[i] = m.Summary
	}
	fmt.Fprintln(out, renderSummaries(summaries, time.Now(), colorEnabled(out)))
	return nil
}

func clearCache(cmd *cobra.Command, ctx *commandContext) error {
	cache, err := ctx.sessionCache()
	if err != nil {
		return err
	}
	summaries, err := cache.List()
	if err != nil {
		return err
	}
	if err := cache.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d saved searches from %s\n", len(summaries), cache.Dir())
	return nil
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Evict expired and excess searches now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.sessionCache()
			if err != nil {
				return err
			}
			report, err := cache.Evict(cmd.Context())
			if err != nil {
				return err
			}
			printEvictReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printEvictReport(out io.Writer, report sessioncache.EvictReport) {
	if report.Removed() == 0 && len(report.FailedIDs) == 0 {
		fmt.Fprintf(out, "Nothing to prune (%d saved searches)\n", report.Remaining)
		return
	}
	fmt.Fprintf(out, "Pruned %d saved searches, freed %s\n", report.Removed(), formatSize(report.FreedBytes))
	printIDs(out, "expired", report.ExpiredIDs)
	printIDs(out, "over count limit", report.OverCountIDs)
	printIDs(out, "over size limit", report.OverSizeIDs)
	printIDs(out, "could not remove", report.FailedIDs)
	fmt.Fprintf(out, "Remaining: %d\n", report.Remaining)
}

func printIDs(out io.Writer, label string, ids []int) {
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "#" + strconv.Itoa(id)
	}
	fmt.Fprintf(out, "  %s: %s\n", label, strings.Join(parts, ", "))
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage against its limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.sessionCache()
			if err != nil {
				return err
			}
			stats, err := cache.Stats(cmd.Context())
			if err != nil && stats.Dir == "" {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", stats.Dir)
			maxEntries := "unlimited"
			if stats.MaxEntries >= 0 {
				maxEntries = formatCount(int64(stats.MaxEntries))
			}
			fmt.Fprintf(out, "Entries:   %s / %s\n", formatCount(int64(stats.Entries)), maxEntries)
			fmt.Fprintf(out, "Size:      %s / %s\n", formatSize(stats.TotalBytes), maxSizeLabel(stats.MaxBytes))
			fmt.Fprintf(out, "Max age:   %s\n", stats.MaxAge)
			if err != nil {
				fmt.Fprintf(out, "Disk:      unavailable (%v)\n", err)
				return nil
			}
			freeRatio := 0.0
			if stats.FSBytes > 0 {
				freeRatio = float64(stats.FreeBytes) / float64(stats.FSBytes)
			}
			fmt.Fprintf(out, "Disk:      %s free (%.1f%%)\n", formatSize(int64(stats.FreeBytes)), freeRatio*100)
			return nil
		},
	}
}

func maxSizeLabel(limit int64) string {
	if limit <= 0 {
		return "unlimited"
	}
	return formatSize(limit)
}
