package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/webreplica/internal/logutil"
	"github.com/ternarybob/webreplica/internal/replay"
	"github.com/ternarybob/webreplica/internal/version"
)

var replayCmd = &cobra.Command{
	Use:   "replay <site-dir>",
	Short: "Serve a previously captured site from disk",
	Long: `replay loads manifest.json and the fixture set written by "webreplica
capture" under <site-dir>/_server and serves them back through the Fixture
Replay Router: matched API requests return recorded fixtures, everything
else falls back to the captured static assets (or the SPA entrypoint).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteRoot := args[0]

		logger = logutil.Setup(&cfg.Logging, "")
		logutil.PrintStartupBanner(version.GetVersion(), "", logger)

		srv, err := replay.Load(siteRoot, logger)
		if err != nil {
			return fmt.Errorf("loading capture: %w", err)
		}

		httpServer := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: srv.Handler(),
		}

		errChan := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", httpServer.Addr).Str("siteDir", siteRoot).Msg("replay server listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case err := <-errChan:
			return fmt.Errorf("replay server failed: %w", err)
		case <-sigChan:
			logger.Info().Msg("interrupt received, shutting down replay server")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("replay server shutdown failed")
		}

		logutil.PrintShutdownBanner(logger)
		logutil.Stop()
		return nil
	},
}

