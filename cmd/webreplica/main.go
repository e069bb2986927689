package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/webreplica/internal/config"
	"github.com/ternarybob/webreplica/internal/logutil"
)

// configFiles is a custom flag type allowing multiple --config flags,
// later files overriding earlier ones, grounded on the teacher's
// configPaths flag.Value implementation in cmd/quaero/main.go.
type configFiles []string

func (c *configFiles) String() string { return fmt.Sprintf("%v", *c) }
func (c *configFiles) Type() string   { return "stringArray" }
func (c *configFiles) Set(v string) error {
	*c = append(*c, v)
	return nil
}

var (
	cfgFiles configFiles

	flagPort        int
	flagHost        string
	flagMaxPages    int
	flagMaxDepth    int
	flagConcurrency int

	cfg    *config.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "webreplica",
	Short: "Capture a website's traffic and replay it from disk",
	Long: `webreplica crawls a site with a headless browser, records its API
traffic as fixtures and its static assets as files, extracts original
sources from JavaScript/CSS source maps, and can serve the recorded
site back through a fixture-matching HTTP replay server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfigAndLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().VarP(&cfgFiles, "config", "c", "configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", 0, "replay server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "replay server host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagMaxPages, "max-pages", 0, "maximum pages to crawl (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagMaxDepth, "max-depth", 0, "maximum crawl depth (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 0, "number of concurrent crawl workers (overrides config)")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(extractSourceMapsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfigAndLogger runs the startup sequence every subcommand shares
// (REQUIRED ORDER, matching the teacher's cmd/quaero/main.go): load
// config, apply CLI overrides, initialize the logger.
func loadConfigAndLogger() error {
	var err error
	cfg, err = config.LoadFromFiles(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.ApplyFlagOverrides(cfg, flagPort, flagHost, flagMaxPages, flagMaxDepth, flagConcurrency)

	logger = logutil.Setup(&cfg.Logging, "")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "webreplica:", err)
		os.Exit(1)
	}
}
