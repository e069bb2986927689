package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/webreplica/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// version never needs config/logger, so skip the root's PersistentPreRunE.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("webreplica version %s\n", version.GetFullVersion())
	},
}
