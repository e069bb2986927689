package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ternarybob/webreplica/internal/app"
	"github.com/ternarybob/webreplica/internal/logutil"
	"github.com/ternarybob/webreplica/internal/version"
)

var (
	captureOutput   string
	captureSchedule string
)

var captureCmd = &cobra.Command{
	Use:   "capture <url>",
	Short: "Crawl a site and write a replayable capture to disk",
	Long: `capture drives a headless browser through a site starting from
<url>, recording XHR/fetch traffic as fixtures, the rendered document and
its sub-resources as static files, and original sources recovered from any
JavaScript/CSS source maps it finds. The result is written under
--output (default: the site's hostname) and can be served later with
"webreplica replay".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteURL := args[0]
		siteRoot := resolveSiteRoot(captureOutput, siteURL)

		if captureSchedule != "" {
			return runScheduledCapture(cmd.Context(), siteURL, siteRoot)
		}
		return runOneCapture(cmd.Context(), siteURL, siteRoot, false)
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "", "capture output directory (default: derived from the site's hostname)")
	captureCmd.Flags().StringVar(&captureSchedule, "schedule", "", "cron expression for recurring recapture (e.g. \"0 */6 * * *\"); runs once immediately, then on schedule")
}

func runOneCapture(ctx context.Context, siteURL, siteRoot string, resume bool) error {
	logger = logutil.Setup(&cfg.Logging, siteRoot)
	logutil.PrintStartupBanner(version.GetVersion(), siteURL, logger)

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer application.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Warn().Msg("interrupt received, finishing in-flight pages before shutting down")
			cancel()
		case <-runCtx.Done():
		}
	}()

	stats, err := application.Capture(runCtx, siteURL, siteRoot, resume)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	logger.Info().
		Str("siteRoot", siteRoot).
		Int("pagesVisited", stats.PagesVisited).
		Int("pagesSkipped", stats.PagesSkipped).
		Int("sourceMapsFound", stats.SourceMapsFound).
		Msg("capture complete")
	logutil.PrintShutdownBanner(logger)
	logutil.Stop()
	return nil
}

// runScheduledCapture implements `capture --schedule`: one capture now,
// then one per cron firing, until the process is interrupted.
func runScheduledCapture(ctx context.Context, siteURL, siteRoot string) error {
	logger = logutil.Setup(&cfg.Logging, siteRoot)
	logutil.PrintStartupBanner(version.GetVersion(), siteURL, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("interrupt received, stopping scheduled capture")
		cancel()
	}()

	runCapture := func() {
		application, err := app.New(cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize application for scheduled capture")
			return
		}
		defer application.Close()

		resume := true
		if _, err := os.Stat(filepath.Join(siteRoot, "state.json")); os.IsNotExist(err) {
			resume = false
		}

		stats, err := application.Capture(runCtx, siteURL, siteRoot, resume)
		if err != nil {
			logger.Error().Err(err).Msg("scheduled capture run failed")
			return
		}
		logger.Info().Int("pagesVisited", stats.PagesVisited).Msg("scheduled capture run complete")
	}

	c := cron.New()
	if _, err := c.AddFunc(captureSchedule, runCapture); err != nil {
		return fmt.Errorf("invalid --schedule expression: %w", err)
	}

	logger.Info().Str("schedule", captureSchedule).Msg("running initial capture before the cron schedule takes over")
	runCapture()

	c.Start()
	defer c.Stop()

	<-runCtx.Done()
	logutil.PrintShutdownBanner(logger)
	logutil.Stop()
	return nil
}

// resolveSiteRoot derives the on-disk capture directory from --output, or
// the seed URL's hostname when --output is unset.
func resolveSiteRoot(output, siteURL string) string {
	if output != "" {
		return output
	}
	host := hostnameOf(siteURL)
	if host == "" {
		host = "capture"
	}
	return host
}
