// Package browser abstracts browser launch, page creation, navigation,
// request/response event subscription, DOM scroll, and link extraction
// behind the Adapter interface, grounded on the teacher's ChromeDPPool
// (internal/services/crawler/chromedp_pool.go) and worker.go.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// resolveURL resolves href against base, lowercasing scheme/host and
// stripping the fragment, matching the teacher's link-normalization rules
// (internal/services/crawler/worker.go extractLinksFromHTML).
func resolveURL(base, href string) (string, bool) {
	baseU, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	refU, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := baseU.ResolveReference(refU)
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Fragment = ""
	return resolved.String(), true
}

// NetworkEvent is a single intercepted request/response pair, handed to an
// API Interceptor (spec §4.4).
type NetworkEvent struct {
	RequestID    string
	Method       string
	URL          string
	ResourceType string
	RequestBody  string
	StatusCode   int
	StatusText   string
	ReqHeaders   map[string]string
	RespHeaders  map[string]string
	ResponseBody []byte
	StartedAt    time.Time
	FinishedAt   time.Time
	Redirect     *RedirectInfo
}

// RedirectInfo records a single observed redirect hop (spec §4.5).
type RedirectInfo struct {
	From   string
	To     string
	Status int
}

// Page is one browser tab owned exclusively by one Crawl Worker (spec §3:
// "each Worker owns one Page").
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan NetworkEvent
	mu      sync.Mutex
	pending map[network.RequestID]*inflightRequest
	logger  arbor.ILogger
}

type inflightRequest struct {
	method    string
	url       string
	startedAt time.Time
}

// Adapter abstracts the browser engine so the Crawl Worker never talks to
// chromedp directly (spec §3 component table: "Browser Adapter").
type Adapter interface {
	NewPage(ctx context.Context) (*Page, error)
	ClosePage(p *Page)
	Navigate(p *Page, navCtx context.Context, url string) (finalURL string, err error)
	WaitNetworkIdle(p *Page, idleTime, overallTimeout time.Duration) error
	AutoScroll(p *Page, stepPixels int, delay time.Duration, maxScrolls int) error
	ExtractLinks(p *Page, baseURL string) ([]string, error)
	DocumentHTML(p *Page) (string, error)
	Events(p *Page) <-chan NetworkEvent
	Close()
}

// ChromeAdapter is the chromedp-backed Adapter implementation.
type ChromeAdapter struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	userAgent   string
	logger      arbor.ILogger
}

// Config mirrors the subset of chromedp launch flags the teacher's
// ChromeDPPoolConfig exposed, generalized to a single shared browser rather
// than a fixed-size instance pool (each Page is its own chromedp tab context,
// which is cheaper than a full browser process per worker).
type Config struct {
	Headless   bool
	DisableGPU bool
	NoSandbox  bool
	UserAgent  string
}

// NewChromeAdapter launches a single headless Chrome instance that Pages are
// created against as tabs, grounded on NewChromeDPPool/InitBrowserPool.
func NewChromeAdapter(cfg Config, logger arbor.ILogger) (*ChromeAdapter, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "WebReplica-Capture/1.0"
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.DisableGPU),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx)

	testCtx, testCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("browser startup test failed: %w", err)
	}

	logger.Info().Str("user_agent", cfg.UserAgent).Bool("headless", cfg.Headless).Msg("browser adapter launched")

	return &ChromeAdapter{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		userAgent:   cfg.UserAgent,
		logger:      logger,
	}, nil
}

// NewPage creates a new tab context and wires Network.* event subscriptions
// into a per-page channel (spec §4.4 step 1/2).
func (a *ChromeAdapter) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(a.rootCtx)

	p := &Page{
		ctx:     tabCtx,
		cancel:  tabCancel,
		events:  make(chan NetworkEvent, 256),
		pending: make(map[network.RequestID]*inflightRequest),
		logger:  a.logger,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		p.handleNetworkEvent(tabCtx, ev)
	})

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("enabling network domain: %w", err)
	}

	return p, nil
}

func (p *Page) handleNetworkEvent(ctx context.Context, ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.pending[e.RequestID] = &inflightRequest{
			method:    e.Request.Method,
			url:       e.Request.URL,
			startedAt: time.Now(),
		}
		p.mu.Unlock()

		if e.RedirectResponse != nil {
			select {
			case p.events <- NetworkEvent{
				Method:     e.Request.Method,
				URL:        e.Request.URL,
				StatusCode: int(e.RedirectResponse.Status),
				Redirect: &RedirectInfo{
					From:   e.RedirectResponse.URL,
					To:     e.Request.URL,
					Status: int(e.RedirectResponse.Status),
				},
			}:
			default:
			}
		}

	case *network.EventResponseReceived:
		p.mu.Lock()
		inflight, ok := p.pending[e.RequestID]
		if ok {
			delete(p.pending, e.RequestID)
		}
		p.mu.Unlock()
		if !ok {
			return
		}

		go func(reqID network.RequestID, method, rawURL, resourceType string, status int64, statusText string, headers network.Headers, started time.Time) {
			body, _ := network.GetResponseBody(reqID).Do(ctx)
			reqHeaders := map[string]string{}
			respHeaders := make(map[string]string, len(headers))
			for k, v := range headers {
				respHeaders[k] = fmt.Sprintf("%v", v)
			}
			select {
			case p.events <- NetworkEvent{
				RequestID:    string(reqID),
				Method:       method,
				URL:          rawURL,
				ResourceType: resourceType,
				StatusCode:   int(status),
				StatusText:   statusText,
				ReqHeaders:   reqHeaders,
				RespHeaders:  respHeaders,
				ResponseBody: body,
				StartedAt:    started,
				FinishedAt:   time.Now(),
			}:
			default:
			}
		}(e.RequestID, inflight.method, e.Response.URL, string(e.Type), e.Response.Status, e.Response.StatusText, e.Response.Headers, inflight.startedAt)
	}
}

// Events exposes the Page's intercepted-request stream to an API
// Interceptor.
func (a *ChromeAdapter) Events(p *Page) <-chan NetworkEvent {
	return p.events
}

// Navigate loads url on Page p within navCtx's deadline and returns the
// final URL reached (handles seed redirects, spec §4.6 step 6).
func (a *ChromeAdapter) Navigate(p *Page, navCtx context.Context, rawURL string) (string, error) {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := navCtx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(navCtx, cancel)
	defer stop()

	var finalURL string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return finalURL, nil
}

// WaitNetworkIdle polls the Page's pending-request map until it has been
// empty for idleTime or overallTimeout elapses, per spec §4.6 step 3.
func (a *ChromeAdapter) WaitNetworkIdle(p *Page, idleTime, overallTimeout time.Duration) error {
	deadline := time.Now().Add(overallTimeout)
	lastBusy := time.Now()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		busy := len(p.pending) > 0
		p.mu.Unlock()

		if busy {
			lastBusy = time.Now()
		} else if time.Since(lastBusy) >= idleTime {
			return nil
		}

		if time.Now().After(deadline) {
			return nil
		}
		<-ticker.C
	}
}

// AutoScroll scrolls the document in stepPixels increments every delay until
// the document height stops growing or maxScrolls is reached (spec §4.6
// step 4).
func (a *ChromeAdapter) AutoScroll(p *Page, stepPixels int, delay time.Duration, maxScrolls int) error {
	var lastHeight, height int64
	for i := 0; i < maxScrolls; i++ {
		err := chromedp.Run(p.ctx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d); document.body.scrollHeight", stepPixels), &height),
		)
		if err != nil {
			return fmt.Errorf("auto-scroll step %d: %w", i, err)
		}
		if height <= lastHeight && i > 0 {
			return nil
		}
		lastHeight = height
		time.Sleep(delay)
	}
	return nil
}

// ExtractLinks returns absolute hrefs discovered in the rendered DOM,
// resolved against baseURL.
func (a *ChromeAdapter) ExtractLinks(p *Page, baseURL string) ([]string, error) {
	var raw []string
	script := `Array.from(document.querySelectorAll('a[href]')).map(a => a.getAttribute('href'))`
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, fmt.Errorf("extract links: %w", err)
	}

	out := make([]string, 0, len(raw))
	for _, href := range raw {
		resolved, ok := resolveHref(baseURL, href)
		if ok {
			out = append(out, resolved)
		}
	}
	return out, nil
}

func resolveHref(baseURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "data:") || strings.HasPrefix(href, "#") {
		return "", false
	}
	return resolveURL(baseURL, href)
}

// DocumentHTML returns the current page's outer HTML (spec §4.6 step 6:
// capture the document, rendered or original per config).
func (a *ChromeAdapter) DocumentHTML(p *Page) (string, error) {
	var html string
	if err := chromedp.Run(p.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("document html: %w", err)
	}
	return html, nil
}

// ClosePage tears down a single tab context.
func (a *ChromeAdapter) ClosePage(p *Page) {
	p.cancel()
}

// Close tears down the shared browser and its allocator.
func (a *ChromeAdapter) Close() {
	a.rootCancel()
	a.allocCancel()
}
