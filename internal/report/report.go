// Package report generates a human-readable summary of a capture run
// (SPEC_FULL.md's supplemented crawl report feature): pages visited and
// skipped, fixtures captured per method, assets captured, source-map
// extraction counts, and WAL event totals. Written once as a static file
// alongside the manifest; never served by the Replay Server.
//
// Grounded on the teacher's markdown/HTML rendering pair
// (internal/services/transform/service.go for markdown production,
// internal/workers/output/formatter_worker.go's convertMarkdownToHTML
// for the goldmark render step) — generalized from "turn scraped content
// into an email body" to "turn run counters into a report".
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Stats is the set of counters a capture run accumulates and that this
// package turns into a report. Callers fill this in from
// crawlqueue.Stats, the fixture set, the source-map step's count of the
// document and bundles it examined, source-map extraction results, and
// the WAL's event count — report
// stays decoupled from those packages' concrete types so it can
// summarize a resumed run's aggregate totals just as easily as a fresh
// one's.
type Stats struct {
	SourceURL         string
	StartedAt         time.Time
	FinishedAt        time.Time
	PagesVisited      int
	PagesSkipped      int
	LinksDiscovered   int
	MaxDepthReached   bool
	MaxPagesReached   bool
	FixturesByMethod  map[string]int
	AssetsCaptured    int
	SourceMapsFound   int
	SourceMapsFailed  int
	SourcesExtracted  int
	WALEventCount     int
}

// GenerateMarkdown renders Stats into a markdown report.
func GenerateMarkdown(s Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Capture Report: %s\n\n", s.SourceURL)
	fmt.Fprintf(&b, "- Started: %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", s.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))

	b.WriteString("## Crawl\n\n")
	fmt.Fprintf(&b, "- Pages visited: %d\n", s.PagesVisited)
	fmt.Fprintf(&b, "- Pages skipped (exhausted retries): %d\n", s.PagesSkipped)
	fmt.Fprintf(&b, "- Links discovered: %d\n", s.LinksDiscovered)
	if s.MaxDepthReached {
		b.WriteString("- Max depth reached during this run\n")
	}
	if s.MaxPagesReached {
		b.WriteString("- Max page cap reached during this run\n")
	}
	b.WriteString("\n")

	b.WriteString("## API Fixtures\n\n")
	totalFixtures := 0
	if len(s.FixturesByMethod) == 0 {
		b.WriteString("No fixtures captured.\n\n")
	} else {
		methods := make([]string, 0, len(s.FixturesByMethod))
		for method := range s.FixturesByMethod {
			methods = append(methods, method)
		}
		sort.Strings(methods)

		b.WriteString("| Method | Count |\n|---|---|\n")
		for _, method := range methods {
			count := s.FixturesByMethod[method]
			totalFixtures += count
			fmt.Fprintf(&b, "| %s | %d |\n", method, count)
		}
		fmt.Fprintf(&b, "\n**Total: %d fixtures**\n\n", totalFixtures)
	}

	b.WriteString("## Static Assets\n\n")
	fmt.Fprintf(&b, "- Assets captured: %d\n\n", s.AssetsCaptured)

	b.WriteString("## Source Maps\n\n")
	fmt.Fprintf(&b, "- Source maps discovered and parsed: %d\n", s.SourceMapsFound)
	fmt.Fprintf(&b, "- Source maps failed to fetch or parse: %d\n", s.SourceMapsFailed)
	fmt.Fprintf(&b, "- Original sources extracted: %d\n\n", s.SourcesExtracted)

	b.WriteString("## Write-Ahead Log\n\n")
	fmt.Fprintf(&b, "- Events recorded: %d\n", s.WALEventCount)

	return b.String()
}

// RenderHTML converts a markdown report to a standalone HTML document
// using GitHub Flavored Markdown extensions, matching the teacher's
// goldmark configuration for rendered output.
func RenderHTML(markdown string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering report to html: %w", err)
	}

	return wrapInDocument(buf.String()), nil
}

func wrapInDocument(body string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Capture Report</title>
  <style>
    body { font-family: -apple-system, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; }
    table { border-collapse: collapse; }
    th, td { border: 1px solid #ccc; padding: 0.25rem 0.75rem; text-align: left; }
  </style>
</head>
<body>
` + body + `
</body>
</html>
`
}
