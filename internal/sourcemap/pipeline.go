package sourcemap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// Pipeline ties discovery, HTTP fetch, cache lookup, parsing, and
// extraction into the single per-bundle operation spec §4.7 describes.
// The individual steps (Discover/Fetch/Parse/Extract) stay decoupled from
// any HTTP client, per their own doc comments; Pipeline is where an actual
// net/http.Client is introduced, grounded on the teacher's service-layer
// convention of a thin orchestration type wrapping pure building blocks
// plus one side-effecting client field.
type Pipeline struct {
	client  *http.Client
	cache   *Cache
	opts    ExtractOptions
	maxSize int64
	timeout time.Duration
	logger  arbor.ILogger
}

// NewPipeline builds a Pipeline. cache may be nil, in which case every
// bundle is fetched fresh.
func NewPipeline(cache *Cache, opts ExtractOptions, maxSize int64, timeout time.Duration, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		opts:    opts,
		maxSize: maxSize,
		timeout: timeout,
		logger:  logger,
	}
}

// ProcessBundle fetches bundleURL, discovers its source map, fetches
// (or reuses a cached copy of) the map, parses and extracts it, per spec
// §4.7 steps 1-4.
func (p *Pipeline) ProcessBundle(ctx context.Context, bundleURL string, isCSS bool) (Result, error) {
	bundle, err := p.fetchBundle(ctx, bundleURL, isCSS)
	if err != nil {
		return Result{BundleURL: bundleURL}, err
	}

	mapURL, err := Discover(bundle)
	if err != nil {
		return Result{BundleURL: bundleURL}, err
	}

	raw, cached := "", false
	if p.cache != nil {
		raw, cached = p.cache.Get(mapURL)
	}
	if !cached {
		raw, err = p.fetchMap(ctx, mapURL)
		if err != nil {
			return Result{BundleURL: bundleURL, MapURL: mapURL}, err
		}
		if p.cache != nil {
			if err := p.cache.Put(mapURL, raw); err != nil {
				p.logger.Warn().Err(err).Str("mapUrl", mapURL).Msg("failed to cache source map")
			}
		}
	} else {
		p.logger.Debug().Str("mapUrl", mapURL).Msg("source map served from cache")
	}

	parsed, err := Parse(raw)
	if err != nil {
		return Result{BundleURL: bundleURL, MapURL: mapURL}, err
	}
	for _, w := range parsed.Warnings {
		p.logger.Warn().Str("mapUrl", mapURL).Str("warning", w.Message).Msg("source map validation warning")
	}

	result := Extract(parsed.Map, p.opts)
	result.BundleURL = bundleURL
	result.MapURL = mapURL
	return result, nil
}

func (p *Pipeline) fetchBundle(ctx context.Context, bundleURL string, isCSS bool) (BundleResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bundleURL, nil)
	if err != nil {
		return BundleResponse{}, fmt.Errorf("building bundle request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return BundleResponse{}, fmt.Errorf("fetching bundle %s: %w", bundleURL, err)
	}
	defer resp.Body.Close()

	body, err := Fetch(ctx, resp.Body, resp.ContentLength, p.maxSize)
	if err != nil {
		return BundleResponse{}, err
	}

	return BundleResponse{
		URL:     bundleURL,
		Headers: lowercaseHeaders(resp.Header),
		Body:    body,
		IsCSS:   isCSS,
	}, nil
}

func (p *Pipeline) fetchMap(ctx context.Context, mapURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mapURL, nil)
	if err != nil {
		return "", fmt.Errorf("building map request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching map %s: %w", mapURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s returned 404", ErrDiscoveryNotFound, mapURL)
	}
	if err := AcceptDiscoveryContentType(resp.Header.Get("Content-Type")); err != nil {
		return "", err
	}

	return Fetch(ctx, resp.Body, resp.ContentLength, p.maxSize)
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}
