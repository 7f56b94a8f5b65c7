package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"booksearcher/internal/history"
	"booksearcher/internal/sessioncache"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches and grabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore()
			if errors.Is(err, history.ErrDisabled) {
				fmt.Fprintln(cmd.OutOrStdout(), "History is disabled; set enabled = true under [history] to record searches")
				return nil
			}
			if err != nil {
				return err
			}
			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			totals, err := store.Totals(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, struct {
					Events []history.Event `json:"events"`
					Totals history.Totals  `json:"totals"`
				}{Events: events, Totals: totals})
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No searches recorded yet")
				return nil
			}
			columns := []column{
				{header: "When"},
				{header: "Event"},
				{header: "Search", align: alignRight},
				{header: "Details", maxWidth: 60},
			}
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				session := ""
				if ev.SessionID > 0 {
					session = "#" + strconv.Itoa(ev.SessionID)
				}
				rows = append(rows, []string{
					ev.At.Local().Format(stampLayout),
					string(ev.Type),
					session,
					eventDetails(ev),
				})
			}
			fmt.Fprintln(out, renderTable(columns, rows, colorEnabled(out)))
			fmt.Fprintf(out, "Searches: %s  Grabs: %s  Grabbed: %s\n",
				formatCount(totals.Searches), formatCount(totals.Grabs), formatSize(totals.GrabbedBytes))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print events and totals as JSON")
	return cmd
}

func eventDetails(ev history.Event) string {
	switch ev.Type {
	case history.EventGrab:
		return fmt.Sprintf("%s [#%d via %s, %s]", truncate(ev.Text, 40), ev.Position, ev.Indexer, formatSize(ev.Size))
	default:
		return fmt.Sprintf("%q %s, %s, %d results", ev.Text, kindLabel(sessioncache.Kind(ev.Kind)), protocolLabel(ev.Protocol), ev.Results)
	}
}
