package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"booksearcher/internal/searcher"
	"booksearcher/internal/services/prowlarr"
)

func printDebugStats(out io.Writer, ctx *commandContext) {
	if ctx.client != nil {
		printClientStats(out, ctx.client.Stats())
	}
	if ctx.searcher != nil {
		printRuntimeStats(out, ctx.searcher.Stats())
	}
}

func printClientStats(out io.Writer, stats prowlarr.Stats) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "API statistics")
	fmt.Fprintf(out, "  Requests:        %s\n", formatCount(int64(stats.Requests)))
	fmt.Fprintf(out, "  Errors:          %s\n", formatCount(int64(stats.Errors)))
	fmt.Fprintf(out, "  Average latency: %s\n", roundLatency(stats.AverageLatency))

	if len(stats.ByEndpoint) > 0 {
		endpoints := make([]string, 0, len(stats.ByEndpoint))
		for endpoint := range stats.ByEndpoint {
			endpoints = append(endpoints, endpoint)
		}
		slices.Sort(endpoints)
		rows := make([][]string, 0, len(endpoints))
		for _, endpoint := range endpoints {
			es := stats.ByEndpoint[endpoint]
			var avg time.Duration
			if es.Requests > 0 {
				avg = es.TotalLatency / time.Duration(es.Requests)
			}
			rows = append(rows, []string{
				endpoint,
				strconv.Itoa(es.Requests),
				strconv.Itoa(es.Errors),
				roundLatency(avg),
			})
		}
		fmt.Fprintln(out, renderTable([]column{
			{header: "Endpoint"},
			{header: "Requests", align: alignRight},
			{header: "Errors", align: alignRight},
			{header: "Avg latency", align: alignRight},
		}, rows, colorEnabled(out)))
	}

	if last := stats.LastError; last != nil {
		fmt.Fprintf(out, "  Last error:      %s at %s", last.Endpoint, last.At.Local().Format(time.TimeOnly))
		if last.Status != 0 {
			fmt.Fprintf(out, " (HTTP %d)", last.Status)
		}
		fmt.Fprintf(out, ": %s\n", last.Message)
	}
}

func printRuntimeStats(out io.Writer, stats searcher.Stats) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Runtime statistics")
	fmt.Fprintf(out, "  Total runtime: %s\n", stats.Uptime.Round(time.Millisecond))
	fmt.Fprintf(out, "  Searches:      %d\n", stats.Searches)
	fmt.Fprintf(out, "  Grabs:         %d\n", stats.Grabs)
	fmt.Fprintf(out, "  Cache hits:    %d\n", stats.CacheHits)
	fmt.Fprintf(out, "  Cache misses:  %d\n", stats.CacheMisses)
	fmt.Fprintf(out, "  Hit ratio:     %.1f%%\n", stats.HitRatio()*100)
}

func roundLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
