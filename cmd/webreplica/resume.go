package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ternarybob/webreplica/internal/manifest"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <site-dir>",
	Short: "Continue an interrupted capture from its last compacted state",
	Long: `resume re-opens the Write-Ahead Log at <site-dir>/state.{json,wal},
re-seeds the Crawl Queue with the URLs it had already visited or queued,
and continues crawling the same source URL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteRoot := args[0]

		siteURL, err := resumeSourceURL(siteRoot)
		if err != nil {
			return err
		}

		return runOneCapture(cmd.Context(), siteURL, siteRoot, true)
	},
}

// resumeSourceURL recovers the seed URL for a prior capture from its
// manifest.json (written at the end of every capture run, including a
// partially-completed one that was interrupted after at least one
// wal.Manager.Finalize).
func resumeSourceURL(siteRoot string) (string, error) {
	manifestPath := filepath.Join(siteRoot, "_server", "manifest.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("resume: no manifest.json under %s yet; a capture must complete at least one finalize before it can be resumed", siteRoot)
		}
		return "", fmt.Errorf("resume: %w", err)
	}
	return m.SourceURL, nil
}
