// Package crawl implements the Crawl Worker (spec §4.6) and the Capture
// Orchestrator (spec §2 "wires workers, interceptors, state, manifest
// generation"). Grounded on the teacher's Service/workerLoop shape
// (internal/services/crawler/service.go, worker.go): a WaitGroup of
// goroutines pulling from one shared queue, each logging through a
// context-scoped arbor logger and reporting back through a shared
// progress/result surface — generalized here from Colly HTTP fetches to
// one owned browser.Page per worker, and from "save markdown" to
// "accumulate fixtures/assets and discover links".
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/webreplica/internal/browser"
	"github.com/ternarybob/webreplica/internal/crawlqueue"
	"github.com/ternarybob/webreplica/internal/fsutil"
	"github.com/ternarybob/webreplica/internal/intercept"
	"github.com/ternarybob/webreplica/internal/progress"
	"github.com/ternarybob/webreplica/internal/staticcap"
)

// Config mirrors the Crawl Worker knobs of spec §4.6/§6 (config.CrawlConfig
// is not imported directly so this package stays independent of the config
// package's TOML tags).
type Config struct {
	Concurrency         int
	MaxDepth            int
	MaxPages            int
	PageRetries         int
	PageTimeout         time.Duration
	RateLimitDelay      time.Duration
	NetworkIdleTimeout  time.Duration
	NetworkIdleTime     time.Duration
	ScrollDelay         time.Duration
	PageSettleTime      time.Duration
	AutoScroll          bool
	MaxScrolls          int
	ScrollStepPixels    int
	CaptureStatic       bool
	CaptureRenderedHTML bool
	BackoffBaseMs       int
	BackoffCapMs        int
}

// SharedState is the tiny cross-worker record spec §4.6 names: "Only the
// Crawl Queue and a tiny record {htmlCaptured, finalUrl, firstPageHandled}
// guarded by the queue's synchronization." We give it its own mutex rather
// than folding it into crawlqueue.Queue, since it is conceptually distinct
// from the three URL sets and only one worker ever claims it.
type SharedState struct {
	mu               sync.Mutex
	htmlCaptured     bool
	finalURL         string
	firstPageHandled bool
	redirects        []browser.RedirectInfo
}

// ClaimFirstPage atomically claims "first completed page" status. Only the
// first caller receives claimed=true and records its finalURL; later calls
// change nothing and return false.
func (s *SharedState) ClaimFirstPage(finalURL string) (claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstPageHandled {
		return false
	}
	s.firstPageHandled = true
	s.finalURL = finalURL
	return true
}

// FinalURL returns the seed's resolved URL once the first page has
// completed, or "" before that.
func (s *SharedState) FinalURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalURL
}

// AddRedirect records one capture-time redirect hop (spec §4.5), observed by
// whichever worker's page happened to navigate through it.
func (s *SharedState) AddRedirect(r browser.RedirectInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects = append(s.redirects, r)
}

// Redirects returns every redirect hop observed across the whole run.
func (s *SharedState) Redirects() []browser.RedirectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]browser.RedirectInfo, len(s.redirects))
	copy(out, s.redirects)
	return out
}

// backoffDuration implements spec §4.6 step 8 / §5: min(base*2^retries, cap).
func backoffDuration(baseMs, capMs, retries int) time.Duration {
	delay := baseMs
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay >= capMs {
			delay = capMs
			break
		}
	}
	if delay > capMs {
		delay = capMs
	}
	return time.Duration(delay) * time.Millisecond
}

// sameOrigin reports whether candidate shares scheme+host with base.
func sameOrigin(base, candidate string) bool {
	b, err1 := url.Parse(base)
	c, err2 := url.Parse(candidate)
	if err1 != nil || err2 != nil {
		return false
	}
	return strings.EqualFold(b.Scheme, c.Scheme) && strings.EqualFold(b.Host, c.Host)
}

// Worker drives queue items through one owned browser.Page (spec §4.6,
// §5: "each Worker owns one Page").
type Worker struct {
	id          int
	adapter     browser.Adapter
	queue       *crawlqueue.Queue
	interceptor *intercept.Interceptor
	shared      *SharedState
	cfg         Config
	logger      arbor.ILogger
	broadcaster *progress.Broadcaster
	staticRoot  string

	limiter *rate.Limiter
}

// NewWorker builds one Crawl Worker. staticRoot is the directory static
// assets and the captured document are written under (ignored when
// cfg.CaptureStatic is false).
func NewWorker(id int, adapter browser.Adapter, queue *crawlqueue.Queue, ic *intercept.Interceptor, shared *SharedState, cfg Config, logger arbor.ILogger, broadcaster *progress.Broadcaster, staticRoot string) *Worker {
	w := &Worker{
		id:          id,
		adapter:     adapter,
		queue:       queue,
		interceptor: ic,
		shared:      shared,
		cfg:         cfg,
		logger:      logger,
		broadcaster: broadcaster,
		staticRoot:  staticRoot,
	}
	if cfg.RateLimitDelay > 0 {
		w.limiter = rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1)
	}
	return w
}

// Run drives the worker loop until the queue reports done (spec §4.6 step
// 1: "take(); if null, yield/sleep briefly and retry; exit when isDone()").
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if w.queue.IsDone() {
			return
		}

		if w.limiter != nil {
			_ = w.limiter.Wait(ctx)
		}

		item := w.queue.Take()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		w.processItem(ctx, item)
	}
}

func (w *Worker) emit(eventType progress.EventType, payload interface{}) {
	if w.broadcaster != nil {
		w.broadcaster.Emit(eventType, payload)
	}
}

func (w *Worker) processItem(ctx context.Context, item *crawlqueue.Item) {
	w.emit(progress.EventPageProgress, progress.PageProgressPayload{
		URL: item.URL, Depth: item.Depth, Phase: progress.PhaseNavigating, Retries: item.Retries,
	})

	page, err := w.adapter.NewPage(ctx)
	if err != nil {
		w.fail(item, fmt.Errorf("creating page: %w", err))
		return
	}
	defer w.adapter.ClosePage(page)

	navCtx, cancel := context.WithTimeout(ctx, w.cfg.PageTimeout)
	defer cancel()

	stopDrain := make(chan struct{})
	var drainWG sync.WaitGroup
	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		events := w.adapter.Events(page)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Redirect != nil {
					w.shared.AddRedirect(*ev.Redirect)
				}
				w.interceptor.Observe(ev, item.URL)
			case <-stopDrain:
				return
			}
		}
	}()

	finalURL, err := w.adapter.Navigate(page, navCtx, item.URL)
	if err != nil {
		close(stopDrain)
		drainWG.Wait()
		w.fail(item, fmt.Errorf("navigating: %w", err))
		return
	}

	if err := w.adapter.WaitNetworkIdle(page, w.cfg.NetworkIdleTime, w.cfg.NetworkIdleTimeout); err != nil {
		close(stopDrain)
		drainWG.Wait()
		w.fail(item, fmt.Errorf("waiting network idle: %w", err))
		return
	}
	w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseNetworkIdle})

	if w.cfg.AutoScroll {
		w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseScrolling})
		if err := w.adapter.AutoScroll(page, w.cfg.ScrollStepPixels, w.cfg.ScrollDelay, w.cfg.MaxScrolls); err != nil {
			w.logger.Warn().Err(err).Str("url", item.URL).Msg("auto-scroll failed, continuing")
		}
	}

	w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseSettling})
	time.Sleep(w.cfg.PageSettleTime)

	if w.shared.ClaimFirstPage(finalURL) && w.cfg.CaptureStatic {
		w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseCapturingHTML})
		w.captureDocument(page, finalURL)
	}

	w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseExtractingLinks})
	if item.Depth < w.cfg.MaxDepth {
		links, err := w.adapter.ExtractLinks(page, finalURL)
		if err != nil {
			w.logger.Warn().Err(err).Str("url", item.URL).Msg("link extraction failed, continuing")
		} else {
			discovered := 0
			for _, link := range links {
				if !sameOrigin(finalURL, link) {
					continue
				}
				if w.queue.Add(link, item.Depth+1) {
					discovered++
				}
			}
			if discovered > 0 {
				w.logger.Debug().Int("worker", w.id).Str("from", item.URL).Int("discovered", discovered).Msg("links enqueued")
			}
		}
	}

	if w.shared.ClaimFirstPage(finalURL) && w.cfg.CaptureStatic {
		w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseCapturingHTML})
		w.captureDocument(page, finalURL)
	}

	close(stopDrain)
	drainWG.Wait()

	w.queue.Complete(item.URL)
	w.emit(progress.EventPageProgress, progress.PageProgressPayload{URL: item.URL, Depth: item.Depth, Phase: progress.PhaseCompleted})
}

// captureDocument implements spec §4.5's document capture: read the
// rendered (or original, per CaptureRenderedHTML) HTML, harvest
// sub-resource URLs, and write the document under staticRoot as
// index.html. Sub-resources are only harvested: their count is logged, and
// nothing in a capture run fetches or writes them, so index.html is the
// only file this step stores.
func (w *Worker) captureDocument(page *browser.Page, baseURL string) {
	html, err := w.adapter.DocumentHTML(page)
	if err != nil {
		w.logger.Warn().Err(err).Str("url", baseURL).Msg("document capture failed")
		return
	}

	harvested, err := staticcap.HarvestHTML(html, baseURL)
	if err != nil {
		w.logger.Warn().Err(err).Str("url", baseURL).Msg("sub-resource harvest failed")
	}

	result, err := fsutil.WriteFile(w.staticRoot, "index.html", []byte(html))
	if err != nil {
		w.logger.Error().Err(err).Str("url", baseURL).Msg("writing captured document failed")
		return
	}
	if result.Written {
		w.emit(progress.EventAssetCapture, progress.AssetCapturePayload{
			URL: baseURL, LocalPath: "index.html", Size: int64(result.BytesSize), ContentType: "text/html",
		})
	} else {
		w.emit(progress.EventDuplicateSkipped, progress.DuplicateSkippedPayload{Path: "index.html"})
	}

	w.logger.Debug().Str("url", baseURL).Int("harvested", len(harvested)).Msg("sub-resources harvested from first page")
}

func (w *Worker) fail(item *crawlqueue.Item, cause error) {
	accepted := w.queue.Retry(item, w.cfg.PageRetries)
	if accepted {
		delay := backoffDuration(w.cfg.BackoffBaseMs, w.cfg.BackoffCapMs, item.Retries)
		w.emit(progress.EventPageProgress, progress.PageProgressPayload{
			URL: item.URL, Depth: item.Depth, Phase: progress.PhaseBackingOff, Retries: item.Retries, Error: cause.Error(),
		})
		w.logger.Warn().Err(cause).Str("url", item.URL).Int("retries", item.Retries).Dur("backoff", delay).Msg("page failed, retrying after backoff")
		time.Sleep(delay)
		return
	}

	w.emit(progress.EventPageProgress, progress.PageProgressPayload{
		URL: item.URL, Depth: item.Depth, Phase: progress.PhaseError, Retries: item.Retries, Error: cause.Error(),
	})
	w.logger.Error().Err(cause).Str("url", item.URL).Int("retries", item.Retries).Msg("page failed permanently, marked skipped")
}

// Orchestrator wires the Crawl Queue, N Crawl Workers, the API Interceptor,
// and the Static Capturer into one capture run (spec §2 "Capture
// Orchestrator"). It holds the single Browser Adapter instance all workers
// share; the caller that created the adapter closes it.
type Orchestrator struct {
	adapter     browser.Adapter
	queue       *crawlqueue.Queue
	interceptor *intercept.Interceptor
	shared      *SharedState
	cfg         Config
	logger      arbor.ILogger
	broadcaster *progress.Broadcaster
	siteRoot    string
}

// NewOrchestrator assembles an Orchestrator. siteRoot is the capture's
// output directory (spec §6's `<site>/`); its `_server/static` subdirectory
// is where captured documents/assets land.
func NewOrchestrator(adapter browser.Adapter, ic *intercept.Interceptor, cfg Config, logger arbor.ILogger, broadcaster *progress.Broadcaster, siteRoot string) *Orchestrator {
	return &Orchestrator{
		adapter:     adapter,
		queue:       crawlqueue.New(cfg.MaxDepth, cfg.MaxPages),
		interceptor: ic,
		shared:      &SharedState{},
		cfg:         cfg,
		logger:      logger,
		broadcaster: broadcaster,
		siteRoot:    siteRoot,
	}
}

// Queue exposes the orchestrator's Crawl Queue for WAL replay/resume to
// re-seed pending/visited state before Run starts.
func (o *Orchestrator) Queue() *crawlqueue.Queue { return o.queue }

// Run seeds the queue with seedURL and blocks until every worker finds the
// queue done, per the concurrency model of spec §5.
func (o *Orchestrator) Run(ctx context.Context, seedURL string) {
	o.queue.Add(seedURL, 0)

	if o.broadcaster != nil {
		o.broadcaster.Emit(progress.EventLifecycle, progress.LifecyclePayload{Stage: "capture:started", Message: seedURL})
	}

	staticRoot := filepath.Join(o.siteRoot, "_server", "static")

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Concurrency; i++ {
		w := NewWorker(i, o.adapter, o.queue, o.interceptor, o.shared, o.cfg, o.logger, o.broadcaster, staticRoot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()

	if o.broadcaster != nil {
		o.broadcaster.Emit(progress.EventLifecycle, progress.LifecyclePayload{Stage: "capture:completed"})
	}
}

// Stats returns the final Crawl Queue counters for the completed run.
func (o *Orchestrator) Stats() crawlqueue.Stats {
	return o.queue.Stats()
}

// FinalURL returns the seed's resolved URL (after redirects) once the
// first page has completed; "" if the crawl never got that far.
func (o *Orchestrator) FinalURL() string {
	return o.shared.FinalURL()
}

// Redirects returns every capture-time redirect hop observed across every
// worker's page during Run, for the manifest's Redirects list (spec §4.5).
func (o *Orchestrator) Redirects() []browser.RedirectInfo {
	return o.shared.Redirects()
}
