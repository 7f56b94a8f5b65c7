package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"booksearcher/internal/progress"
	"booksearcher/internal/searcher"
	"booksearcher/internal/sessioncache"
)

const titleWidth = 70

type searchOptions struct {
	kind     string
	protocol string
	headless bool
	json     bool
}

type searchOutput struct {
	SessionID int                   `json:"session_id"`
	Query     string                `json:"query"`
	Kind      sessioncache.Kind     `json:"kind"`
	Protocol  string                `json:"protocol,omitempty"`
	Results   []sessioncache.Result `json:"results"`
	SaveError string                `json:"save_error,omitempty"`
}

func bindSearchFlags(cmd *cobra.Command, opts *searchOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.kind, "kind", "k", "", "Media type: audio, book or both (default both)")
	flags.StringVarP(&opts.protocol, "protocol", "p", "", "Restrict to tor or nzb")
	flags.BoolVarP(&opts.headless, "headless", "x", false, "Print a condensed listing and do not prompt")
	flags.BoolVar(&opts.json, "json", false, "Print the results as JSON")
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search [terms...]",
		Short: "Search Prowlarr and save the results as a new session",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, ctx, opts, args)
		},
	}
	bindSearchFlags(cmd, &opts)
	return cmd
}

func runSearch(cmd *cobra.Command, ctx *commandContext, opts searchOptions, args []string) error {
	out := cmd.OutOrStdout()
	kind, err := searcher.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	interactive := !opts.headless && !opts.json
	prompt := newPrompter(cmd.InOrStdin(), out)

	term := strings.TrimSpace(strings.Join(args, " "))
	if term == "" {
		if !interactive {
			return usageError("a search term is required with --headless or --json")
		}
		if strings.TrimSpace(opts.kind) == "" {
			if kind, err = prompt.chooseKind(); err != nil {
				return quitIsSuccess(err)
			}
		}
		if term, err = prompt.searchTerm(); err != nil {
			return quitIsSuccess(err)
		}
	}

	s, err := ctx.searcherValue()
	if err != nil {
		return err
	}
	mode := sessioncache.ModeInteractive
	if !interactive {
		mode = sessioncache.ModeHeadless
	}

	var spinner *progress.Spinner
	if !opts.json {
		spinner = progress.StartIfTerminal(os.Stderr, "Searching through multiple sources...")
	}
	reqCtx := ctx.requestContext(cmd.Context())
	run, err := s.Search(reqCtx, searcher.Request{
		Query:    term,
		Kind:     kind,
		Protocol: opts.protocol,
		Mode:     mode,
	})
	spinner.Stop()
	if err != nil {
		return err
	}

	if opts.json {
		output := searchOutput{
			SessionID: run.SessionID,
			Query:     run.Request.Query,
			Kind:      run.Request.Kind,
			Protocol:  run.Request.Protocol,
			Results:   run.Results,
		}
		if output.Results == nil {
			output.Results = []sessioncache.Result{}
		}
		if run.SaveErr != nil {
			output.SaveError = run.SaveErr.Error()
		}
		return writeJSON(cmd, output)
	}

	if len(run.Results) == 0 {
		fmt.Fprintf(out, "No results found for %q\n", run.Request.Query)
		return nil
	}
	color := colorEnabled(out)
	if opts.headless {
		renderHeadless(out, run.Results)
	} else {
		fmt.Fprintln(out, renderResults(run.Results, color))
	}
	renderSummary(out, run.Results)

	if run.SaveErr != nil {
		fmt.Fprintf(out, "\nWarning: results were not saved (%v); they cannot be grabbed later\n", run.SaveErr)
		return nil
	}
	renderSaveHint(out, run.SessionID, color)
	if err := s.MarkDisplayed(run); err != nil {
		return err
	}
	if !interactive {
		return nil
	}
	return grabLoop(cmd, ctx, s, prompt, run)
}

func grabLoop(cmd *cobra.Command, ctx *commandContext, s *searcher.Searcher, prompt *prompter, run *searcher.Run) error {
	out := cmd.OutOrStdout()
	reqCtx := ctx.requestContext(cmd.Context())
	for {
		reply, err := prompt.ask("\nEnter result number to download (or q to quit): ")
		if err != nil {
			return quitIsSuccess(err)
		}
		position, convErr := strconv.Atoi(reply)
		if convErr != nil || position < 1 || position > len(run.Results) {
			fmt.Fprintf(out, "Please enter a number between 1 and %d\n", len(run.Results))
			continue
		}
		outcome, err := s.Grab(reqCtx, run.SessionID, position)
		if err != nil {
			if reqCtx.Err() != nil {
				return err
			}
			printError(out, err)
			continue
		}
		printGrabbed(out, outcome, false)
	}
}

func quitIsSuccess(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func renderResults(results []sessioncache.Result, color bool) string {
	columns := []column{
		{header: "#", align: alignRight},
		{header: "Title"},
		{header: "Size", align: alignRight},
		{header: "Protocol"},
		{header: "Indexer", maxWidth: 24},
		{header: "Status"},
		{header: "Published"},
	}
	rows := make([][]string, 0, len(results))
	for i, result := range results {
		published := ""
		if !result.PublishDate.IsZero() {
			published = result.PublishDate.Format("2006-01-02")
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(result.Title, titleWidth),
			formatSize(result.Size),
			result.Protocol,
			result.Indexer,
			releaseStatus(result),
			published,
		})
	}
	return renderTable(columns, rows, color)
}

func releaseStatus(result sessioncache.Result) string {
	switch {
	case result.Protocol == "usenet":
		return fmt.Sprintf("%d grabs", result.Grabs)
	case result.Seeders > 0:
		return fmt.Sprintf("%d seeders", result.Seeders)
	default:
		return "no seeders"
	}
}

func renderHeadless(out io.Writer, results []sessioncache.Result) {
	for i, result := range results {
		fmt.Fprintf(out, "%3d) %s\n", i+1, truncate(result.Title, titleWidth))
		fmt.Fprintf(out, "     %s | %s | %s\n", formatSize(result.Size), result.Protocol, result.Indexer)
	}
}

func renderSummary(out io.Writer, results []sessioncache.Result) {
	var protocols, sites []string
	for _, result := range results {
		protocols = append(protocols, result.Protocol)
		sites = append(sites, result.Indexer)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Found %d items\n", len(results))
	fmt.Fprintf(out, "Protocols: %s\n", strings.Join(distinct(protocols), ", "))
	fmt.Fprintf(out, "Sites: %s\n", strings.Join(distinct(sites), ", "))
}

func renderSaveHint(out io.Writer, sessionID int, color bool) {
	saved := fmt.Sprintf("Search saved as #%d", sessionID)
	if color {
		saved = text.Colors{text.Bold, text.FgGreen}.Sprint(saved)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, saved)
	fmt.Fprintf(out, "To download later: booksearcher grab -s %d -g <result number>\n", sessionID)
}

// distinct returns the sorted non-empty unique values.
func distinct(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return []string{"unknown"}
	}
	return out
}
