package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"booksearcher/internal/logging"
	"booksearcher/internal/services"
)

// legacyFlags are the single-command flags kept on the root so older
// invocations like `booksearcher -s 3 -g 1` keep working.
type legacyFlags struct {
	sessionID  int
	grab       int
	searchLast bool
	listCache  string
	clearCache bool
}

const listAllSentinel = "all"

func newRootCommand() (*cobra.Command, *commandContext) {
	var configFlag string
	var debugFlag bool
	var legacy legacyFlags
	var search searchOptions

	ctx := newCommandContext(&configFlag, &debugFlag)

	rootCmd := &cobra.Command{
		Use:           "booksearcher [terms...]",
		Short:         "Search Prowlarr for audiobooks and ebooks",
		Long:          "Search Prowlarr for audiobooks and ebooks, keep each search as a numbered session and send results to the download client.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctx.loggerValue().Debug("configuration loaded",
				logging.String("config_path", ctx.configPath),
				logging.String("cache_dir", cfg.Cache.Dir),
				logging.String("prowlarr_url", cfg.Prowlarr.URL),
				logging.String("correlation_id", ctx.correlationID),
			)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacy(cmd, ctx, legacy, search, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging and print request statistics")

	flags := rootCmd.Flags()
	flags.IntVarP(&legacy.sessionID, "search", "s", 0, "Saved search id to grab from (with -g)")
	flags.IntVarP(&legacy.grab, "grab", "g", 0, "Result number to grab")
	flags.BoolVarP(&legacy.searchLast, "search-last", "l", false, "Grab from the most recent search (with -g)")
	flags.StringVar(&legacy.listCache, "list-cache", "", "List saved searches, or show one with --list-cache=<id>")
	flags.Lookup("list-cache").NoOptDefVal = listAllSentinel
	flags.BoolVar(&legacy.clearCache, "clear-cache", false, "Remove all saved searches")
	bindSearchFlags(rootCmd, &search)

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newGrabCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd, ctx
}

func runLegacy(cmd *cobra.Command, ctx *commandContext, legacy legacyFlags, search searchOptions, args []string) error {
	switch {
	case legacy.listCache != "":
		value := legacy.listCache
		if value == listAllSentinel && len(args) == 1 {
			value = args[0]
		}
		if value == listAllSentinel {
			return listCache(cmd, ctx)
		}
		id, err := parseSessionID(value)
		if err != nil {
			return err
		}
		return showCache(cmd, ctx, id)
	case legacy.clearCache:
		return clearCache(cmd, ctx)
	case legacy.searchLast:
		if legacy.grab <= 0 {
			return usageError("--search-last needs -g <result number>")
		}
		return runGrab(cmd, ctx, 0, legacy.grab, true)
	case legacy.sessionID > 0:
		if legacy.grab <= 0 {
			return showCache(cmd, ctx, legacy.sessionID)
		}
		return runGrab(cmd, ctx, legacy.sessionID, legacy.grab, false)
	case legacy.grab > 0:
		return usageError("-g needs -s <search id> or --search-last")
	}
	return runSearch(cmd, ctx, search, args)
}

func parseSessionID(value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, usageError(fmt.Sprintf("invalid search id %q", value))
	}
	return id, nil
}

func usageError(message string) error {
	return services.Wrap(services.ErrValidation, "", "", message, nil)
}
