package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/webreplica/internal/logutil"
	"github.com/ternarybob/webreplica/internal/sourcemap"
)

var extractOutput string

var extractSourceMapsCmd = &cobra.Command{
	Use:   "extract-sourcemaps <bundle-url> [more-bundle-urls...]",
	Short: "Run the Source-Map Extraction Pipeline over one or more bundle URLs",
	Long: `extract-sourcemaps fetches each given JavaScript/CSS bundle URL,
discovers and fetches its source map, validates and parses it, and writes
any recovered original sources under --output. Useful for inspecting a
site's source maps without running a full capture.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger = logutil.Setup(&cfg.Logging, "")
		pipeline := sourcemap.NewPipeline(nil, sourcemap.ExtractOptions{
			IncludeNodeModules: cfg.SourceMap.IncludeNodeModules,
			InternalPackages:   toSetLocal(cfg.SourceMap.InternalPackages),
		}, cfg.SourceMap.MaxSize, cfg.SourceMap.Timeout, logger)

		outputDir := extractOutput
		if outputDir == "" {
			outputDir = "sources"
		}

		ctx := cmd.Context()
		var failures int
		for _, bundleURL := range args {
			isCSS := strings.HasSuffix(strings.ToLower(bundleURL), ".css")
			result, err := pipeline.ProcessBundle(ctx, bundleURL, isCSS)
			if err != nil {
				logger.Error().Err(err).Str("bundle", bundleURL).Msg("extraction failed")
				failures++
				continue
			}

			for _, src := range result.Sources {
				dest := filepath.Join(outputDir, filepath.FromSlash(src.Path))
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return fmt.Errorf("creating output directory: %w", err)
				}
				if err := os.WriteFile(dest, []byte(src.Content), 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", dest, err)
				}
			}
			logger.Info().
				Str("bundle", bundleURL).
				Str("map", result.MapURL).
				Int("extracted", result.ExtractedCount).
				Int("skipped", result.SkippedCount).
				Msg("extraction complete")
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d bundles failed extraction", failures, len(args))
		}
		return nil
	},
}

func init() {
	extractSourceMapsCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "directory to write extracted sources into (default: ./sources)")
}

func toSetLocal(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
