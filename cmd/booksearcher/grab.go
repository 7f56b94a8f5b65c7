package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"booksearcher/internal/searcher"
)

func newGrabCommand(ctx *commandContext) *cobra.Command {
	var (
		sessionID int
		position  int
		last      bool
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "grab",
		Short: "Send a saved result to the download client",
		Example: "  booksearcher grab -s 12 -g 3\n" +
			"  booksearcher grab --last -g 1",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if position <= 0 {
				return usageError("-g <result number> is required")
			}
			if !last && sessionID <= 0 {
				return usageError("provide -s <search id> or --last")
			}
			outcome, err := grab(cmd, ctx, sessionID, position, last)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, outcome)
			}
			printGrabbed(cmd.OutOrStdout(), outcome, last)
			return nil
		},
	}
	cmd.Flags().IntVarP(&sessionID, "search", "s", 0, "Saved search id")
	cmd.Flags().IntVarP(&position, "grab", "g", 0, "Result number within the search")
	cmd.Flags().BoolVar(&last, "last", false, "Use the most recent search")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the outcome as JSON")
	cmd.MarkFlagsMutuallyExclusive("search", "last")
	return cmd
}

// grab sends one saved result; last selects the newest session and ignores
// sessionID.
func grab(cmd *cobra.Command, ctx *commandContext, sessionID, position int, last bool) (searcher.GrabOutcome, error) {
	s, err := ctx.searcherValue()
	if err != nil {
		return searcher.GrabOutcome{}, err
	}
	reqCtx := ctx.requestContext(cmd.Context())
	if last {
		return s.GrabLatest(reqCtx, position)
	}
	return s.Grab(reqCtx, sessionID, position)
}

func runGrab(cmd *cobra.Command, ctx *commandContext, sessionID, position int, last bool) error {
	outcome, err := grab(cmd, ctx, sessionID, position, last)
	if err != nil {
		return err
	}
	printGrabbed(cmd.OutOrStdout(), outcome, last)
	return nil
}

func printGrabbed(out io.Writer, outcome searcher.GrabOutcome, announceSession bool) {
	if announceSession {
		fmt.Fprintf(out, "Using most recent search #%d\n", outcome.SessionID)
	}
	fmt.Fprintln(out, "Sent to download client:")
	fmt.Fprintf(out, "  %s\n", outcome.Result.Title)
	if outcome.Result.Indexer != "" {
		fmt.Fprintf(out, "  via %s (%s, %s)\n", outcome.Result.Indexer, outcome.Result.Protocol, formatSize(outcome.Result.Size))
	}
}
