package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/afpdata/mailsift/internal/api"
	"github.com/afpdata/mailsift/internal/query"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search HTTP server",
	Long: `Run mailsift as an HTTP server exposing the search, view,
categories and CSV export endpoints, behind the session gate when a
session secret is configured.

Configure the store in config.toml:
  [store]
  database = "~/.mailsift/emails.duckdb"
  table = "emails"
  summary_table = "email_summaries"

Use Ctrl+C to stop the server gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// A missing store configuration disables search but does not stop
	// the server: the condition surfaces as a persistent warning on
	// every search request instead.
	var engine query.Engine
	storeErr := cfg.ValidateStore()
	if storeErr != nil {
		logger.Warn("search disabled", "reason", storeErr)
	} else {
		duck, err := query.NewDuckDBEngine(cfg.Store.Database, cfg.StoreIdentifiers())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer duck.Close()
		engine = duck
	}

	cache := query.NewResultCache(cfg.CacheTTL())
	srv := api.NewServer(cfg, engine, cache, logger, storeErr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		cache.Janitor(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		srv.SessionJanitor(gctx, 10*time.Minute)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
