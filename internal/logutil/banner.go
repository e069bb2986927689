package logutil

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintStartupBanner prints the CLI startup banner, the same way the
// teacher's internal/common/banner.go prints quaero's.
func PrintStartupBanner(version, siteURL string, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(72)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("WEBREPLICA")
	b.PrintCenteredText("Site Capture & Replay")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 12)
	if siteURL != "" {
		b.PrintKeyValue("Seed URL", siteURL, 12)
	}
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().Str("version", version).Str("seed_url", siteURL).Msg("webreplica starting")
}

// PrintShutdownBanner prints the shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("webreplica shutting down")
}
