// Package app wires every capture-side webreplica component into one
// runnable operation, Capture; the replay command uses internal/replay
// directly and does not go through this package. Grounded on the
// teacher's internal/app.App: one struct built once by New, holding every
// long-lived dependency (here: the shared Browser Adapter and progress
// Broadcaster), with the per-request/per-run work done by narrower
// methods rather than a second constructor per command.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/webreplica/internal/browser"
	"github.com/ternarybob/webreplica/internal/config"
	"github.com/ternarybob/webreplica/internal/crawl"
	"github.com/ternarybob/webreplica/internal/crawlqueue"
	"github.com/ternarybob/webreplica/internal/fixture"
	"github.com/ternarybob/webreplica/internal/intercept"
	"github.com/ternarybob/webreplica/internal/manifest"
	"github.com/ternarybob/webreplica/internal/progress"
	"github.com/ternarybob/webreplica/internal/report"
	"github.com/ternarybob/webreplica/internal/sourcemap"
	"github.com/ternarybob/webreplica/internal/staticcap"
	"github.com/ternarybob/webreplica/internal/wal"
)

// App holds webreplica's long-lived dependencies: one Browser Adapter
// (spec §3: "the Browser Adapter is the one component every Crawl
// Worker shares") and one progress Broadcaster that receives every run's
// progress events. No command mounts the Broadcaster's WebSocket handler,
// so no observer can connect to it.
type App struct {
	Config      *config.Config
	Logger      arbor.ILogger
	Broadcaster *progress.Broadcaster

	adapter browser.Adapter
}

// New launches the shared headless browser and returns a ready-to-use App.
func New(cfg *config.Config, logger arbor.ILogger) (*App, error) {
	adapter, err := browser.NewChromeAdapter(browser.Config{
		Headless:   true,
		DisableGPU: true,
		NoSandbox:  true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Broadcaster: progress.NewBroadcaster(logger),
		adapter:     adapter,
	}, nil
}

// Close releases the shared browser.
func (a *App) Close() {
	a.adapter.Close()
}

// queueState is the Crawl Queue's resumable portion of the Snapshot
// persisted via wal.Manager.Compact (spec §4.9's "state" blob).
type queueState struct {
	RunID    string                `json:"runId"`
	FinalURL string                `json:"finalUrl"`
	Visited  []crawlqueue.URLState `json:"visited"`
	Pending  []crawlqueue.URLState `json:"pending"`
}

// Capture runs one full capture (spec §2's Capture Orchestrator,
// wired with the WAL State Manager, Source-Map Extraction Pipeline, and
// report generator) against siteURL, writing the site bundle under
// siteRoot. resume re-seeds the Crawl Queue from the last compacted
// Snapshot before crawling.
func (a *App) Capture(ctx context.Context, siteURL, siteRoot string, resume bool) (report.Stats, error) {
	startedAt := time.Now()
	stats := report.Stats{SourceURL: siteURL, StartedAt: startedAt}

	stateDir := siteRoot
	walManager, err := wal.Open(stateDir, siteURL, a.Config.State.CompactionThreshold, resume, a.Config.State.TruncateCorruptedWAL)
	if err != nil {
		return stats, fmt.Errorf("opening state manager: %w", err)
	}

	runID := uuid.NewString()
	var seedVisited, seedPending []crawlqueue.URLState
	if resume {
		res, err := walManager.Resume(a.Config.State.TruncateCorruptedWAL)
		if err != nil {
			return stats, fmt.Errorf("resuming state: %w", err)
		}
		if len(res.Snapshot.State) > 0 {
			var qs queueState
			if err := json.Unmarshal(res.Snapshot.State, &qs); err != nil {
				return stats, fmt.Errorf("decoding resumed queue state: %w", err)
			}
			runID = qs.RunID
			seedVisited, seedPending = qs.Visited, qs.Pending
			a.Logger.Info().Str("runId", runID).Int("visited", len(seedVisited)).Int("pending", len(seedPending)).Msg("resuming capture from prior state")
		}
	}

	if _, err := walManager.Append(wal.EventPhaseStart, map[string]string{"runId": runID, "url": siteURL}); err != nil {
		return stats, fmt.Errorf("appending phase:start event: %w", err)
	}

	ic := intercept.New(intercept.Config{
		URLGlobs:      a.Config.Crawl.APIFilter,
		CaptureBodies: a.Config.Intercept.CaptureBodies,
		MaxBodySize:   int64(a.Config.Intercept.MaxBodySize),
	}, a.Logger)

	crawlCfg := crawl.Config{
		Concurrency:         a.Config.Crawl.Concurrency,
		MaxDepth:            a.Config.Crawl.MaxDepth,
		MaxPages:            a.Config.Crawl.MaxPages,
		PageRetries:         a.Config.Crawl.PageRetries,
		PageTimeout:         a.Config.Crawl.PageTimeout,
		RateLimitDelay:      a.Config.Crawl.RateLimitDelay,
		NetworkIdleTimeout:  a.Config.Crawl.NetworkIdleTimeout,
		NetworkIdleTime:     a.Config.Crawl.NetworkIdleTime,
		ScrollDelay:         a.Config.Crawl.ScrollDelay,
		PageSettleTime:      a.Config.Crawl.PageSettleTime,
		AutoScroll:          a.Config.Crawl.AutoScroll,
		MaxScrolls:          a.Config.Crawl.MaxScrolls,
		ScrollStepPixels:    a.Config.Crawl.ScrollStepPixels,
		CaptureStatic:       a.Config.Crawl.CaptureStatic,
		CaptureRenderedHTML: a.Config.Crawl.CaptureRenderedHTML,
		BackoffBaseMs:       a.Config.Crawl.BackoffBaseMs,
		BackoffCapMs:        a.Config.Crawl.BackoffCapMs,
	}

	orch := crawl.NewOrchestrator(a.adapter, ic, crawlCfg, a.Logger, a.Broadcaster, siteRoot)
	if len(seedVisited) > 0 || len(seedPending) > 0 {
		orch.Queue().Restore(seedVisited, seedPending)
	}

	orch.Run(ctx, siteURL)

	queueStats := orch.Stats()
	finalURL := orch.FinalURL()
	if finalURL == "" {
		finalURL = siteURL
	}

	if _, err := walManager.Append(wal.EventCapturePageDone, map[string]interface{}{"completed": queueStats.Completed, "skipped": queueStats.Skipped}); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to append capture:page:completed event")
	}

	visited, pending := orch.Queue().Snapshot()
	qs := queueState{RunID: runID, FinalURL: finalURL, Visited: visited, Pending: pending}
	if err := walManager.Finalize(qs); err != nil {
		return stats, fmt.Errorf("finalizing state: %w", err)
	}

	fixtures := ic.Fixtures()
	if err := fixture.SaveAll(filepath.Join(siteRoot, "_server", "fixtures"), fixtures); err != nil {
		return stats, fmt.Errorf("saving fixtures: %w", err)
	}

	smResult, err := a.extractSourceMaps(ctx, siteRoot, finalURL)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("source-map extraction failed, continuing without extracted sources")
	}

	m := buildManifest(siteURL, finalURL, a.Config, fixtures, smResult.assetCount)
	for _, r := range orch.Redirects() {
		if err := m.AddRedirect(r.From, r.To, r.Status); err != nil {
			a.Logger.Warn().Err(err).Str("from", r.From).Str("to", r.To).Msg("dropping non-redirect status observed during capture")
		}
	}
	if err := manifest.Write(filepath.Join(siteRoot, "_server", "manifest.json"), m); err != nil {
		return stats, fmt.Errorf("writing manifest: %w", err)
	}

	stats.FinishedAt = time.Now()
	stats.PagesVisited = queueStats.Completed
	stats.PagesSkipped = queueStats.Skipped
	stats.LinksDiscovered = queueStats.LinksDiscovered
	stats.MaxDepthReached = queueStats.MaxDepthReached
	stats.MaxPagesReached = queueStats.MaxPagesReached
	stats.FixturesByMethod = fixturesByMethod(fixtures)
	stats.AssetsCaptured = smResult.assetCount
	stats.SourceMapsFound = smResult.found
	stats.SourceMapsFailed = smResult.failed
	stats.SourcesExtracted = smResult.sourcesExtracted
	stats.WALEventCount = walManager.LastSeq()

	md := report.GenerateMarkdown(stats)
	if err := os.WriteFile(filepath.Join(siteRoot, "_server", "report.md"), []byte(md), 0o644); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to write capture report")
	}
	if html, err := report.RenderHTML(md); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to render capture report HTML")
	} else if err := os.WriteFile(filepath.Join(siteRoot, "_server", "report.html"), []byte(html), 0o644); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to write capture report HTML")
	}

	return stats, nil
}

func fixturesByMethod(fixtures []*fixture.Fixture) map[string]int {
	out := make(map[string]int)
	for _, f := range fixtures {
		out[f.Request.Method]++
	}
	return out
}

type sourceMapSummary struct {
	assetCount       int
	found            int
	failed           int
	sourcesExtracted int
}

// extractSourceMaps implements spec §4.7 end to end for one capture run:
// it re-harvests script/stylesheet URLs from the captured entrypoint
// document (the index.html the Crawl Worker wrote) rather than threading
// harvested URLs out of crawl.Worker, since captureDocument keeps its
// harvest private. The sub-resources themselves are not fetched or stored
// by a capture run; only the bundles' source maps are fetched here.
func (a *App) extractSourceMaps(ctx context.Context, siteRoot, baseURL string) (sourceMapSummary, error) {
	var summary sourceMapSummary

	docPath := filepath.Join(siteRoot, "_server", "static", "index.html")
	raw, err := os.ReadFile(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return summary, fmt.Errorf("reading captured document: %w", err)
	}
	summary.assetCount++

	harvested, err := staticcap.HarvestHTML(string(raw), baseURL)
	if err != nil {
		return summary, fmt.Errorf("harvesting sub-resources: %w", err)
	}

	cacheDir := a.Config.SourceMap.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(siteRoot, "_server", "sourcemap-cache")
	}
	cache, err := sourcemap.OpenCache(cacheDir, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("opening source-map cache failed, proceeding without dedup cache")
		cache = nil
	} else {
		defer cache.Close()
	}

	opts := sourcemap.ExtractOptions{
		IncludeNodeModules: a.Config.SourceMap.IncludeNodeModules,
		InternalPackages:   toSet(a.Config.SourceMap.InternalPackages),
		ExcludePatterns:    compilePatterns(a.Config.SourceMap.ExcludePatterns, a.Logger),
	}
	pipeline := sourcemap.NewPipeline(cache, opts, a.Config.SourceMap.MaxSize, a.Config.SourceMap.Timeout, a.Logger)

	sourcesDir := filepath.Join(siteRoot, "_server", "sources")
	for _, h := range harvested {
		if h.Tag != "script" && !strings.HasSuffix(strings.ToLower(h.URL), ".css") {
			continue
		}
		summary.assetCount++

		result, err := pipeline.ProcessBundle(ctx, h.URL, strings.HasSuffix(strings.ToLower(h.URL), ".css"))
		if err != nil {
			summary.failed++
			a.Logger.Debug().Err(err).Str("bundle", h.URL).Msg("no source map extracted for bundle")
			continue
		}
		summary.found++
		summary.sourcesExtracted += result.ExtractedCount

		for _, src := range result.Sources {
			dest := filepath.Join(sourcesDir, filepath.FromSlash(src.Path))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				a.Logger.Warn().Err(err).Str("path", src.Path).Msg("failed to create source directory")
				continue
			}
			if err := os.WriteFile(dest, []byte(src.Content), 0o644); err != nil {
				a.Logger.Warn().Err(err).Str("path", src.Path).Msg("failed to write extracted source")
			}
		}
	}

	return summary, nil
}

func compilePatterns(patterns []string, logger arbor.ILogger) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", p).Msg("skipping invalid sourcemap exclude pattern")
			continue
		}
		out = append(out, re)
	}
	return out
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func buildManifest(sourceURL, finalURL string, cfg *config.Config, fixtures []*fixture.Fixture, assetCount int) *manifest.Manifest {
	name := finalURL
	if name == "" {
		name = sourceURL
	}

	return &manifest.Manifest{
		Name:       name,
		SourceURL:  sourceURL,
		CapturedAt: time.Now(),
		Server: manifest.Server{
			DefaultPort: cfg.Server.Port,
			CORS:        cfg.Server.CORS,
			Delay: manifest.Delay{
				Enabled: cfg.Server.Delay.Enabled,
				MinMs:   cfg.Server.Delay.MinMs,
				MaxMs:   cfg.Server.Delay.MaxMs,
			},
		},
		Routes: manifest.Routes{
			API:    len(fixtures) > 0,
			Static: cfg.Crawl.CaptureStatic,
		},
		Fixtures: manifest.Fixtures{
			Count:     len(fixtures),
			IndexFile: "fixtures/_index.json",
		},
		Static: manifest.Static{
			Enabled:    cfg.Crawl.CaptureStatic,
			Entrypoint: "index.html",
			AssetCount: assetCount,
			PathPrefix: pathPrefixOf(finalURL),
		},
	}
}

// pathPrefixOf returns finalURL's path when the capture's entrypoint lived
// under a subpath (spec §4.10 step 5's root-prefix redirect needs this to
// know where "/" should redirect to), "" when it was served from the root.
func pathPrefixOf(finalURL string) string {
	u, err := url.Parse(finalURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return u.Path
}
