package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"booksearcher/internal/httpapi"
	"booksearcher/internal/logging"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/telemetry"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerValue()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			ctx.metrics = prowlarr.NewMetrics(registry)

			s, err := ctx.searcherValue()
			if err != nil {
				return err
			}
			cache, err := ctx.sessionCache()
			if err != nil {
				return err
			}

			shutdownTracing, err := telemetry.Init(cmd.Context(), "booksearcher", logger)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.Warn("flush traces", logging.Error(err))
				}
			}()

			address := cfg.Server.Bind
			if strings.TrimSpace(bind) != "" {
				address = bind
			}
			deps := httpapi.Deps{
				Searcher:    s,
				Sessions:    cache,
				Registry:    registry,
				ClientStats: ctx.client.Stats,
			}
			if ctx.history != nil {
				deps.History = ctx.history
			}
			server, err := httpapi.New(httpapi.Config{
				Bind:     address,
				Token:    cfg.Server.Token,
				LockPath: cfg.Server.LockPath,
			}, deps, logger)
			if err != nil {
				return err
			}
			if err := server.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "BookSearcher API listening on http://%s\n", server.Addr())
			<-cmd.Context().Done()
			server.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides [server] bind)")
	return cmd
}
