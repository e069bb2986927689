// Package intercept implements the API Interceptor (spec §4.4): a
// per-page XHR/fetch observer that turns browser.NetworkEvent records
// into fixture.Fixture captures, filtered by URL glob and header
// denylist. Grounded on the teacher's per-job HTTP client/cookie
// plumbing (internal/services/crawler/worker.go extractCookiesFromClient)
// for the general "observe, filter, build typed record" shape.
package intercept

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/webreplica/internal/browser"
	"github.com/ternarybob/webreplica/internal/fixture"
)

// headerDenylist blocks cookies, auth, timing, and cache-identity headers
// from being persisted into a fixture (spec §4.4 step 2).
var headerDenylist = map[string]bool{
	"cookie":            true,
	"set-cookie":        true,
	"authorization":     true,
	"proxy-authorization": true,
	"server-timing":     true,
	"timing-allow-origin": true,
	"etag":              true,
	"last-modified":     true,
	"if-none-match":     true,
	"if-modified-since": true,
	"age":               true,
	"date":              true,
}

// Interceptor accumulates fixtures across every worker's page events. It is
// an append-only, per-orchestrator singleton per spec §5 ("API Interceptor
// ... per-orchestrator singletons; append-only from event callbacks") —
// since each Crawl Worker owns a real goroutine rather than a cooperative
// turn, Observe is guarded by mu so concurrent workers never race on
// fixtures/nextIndex.
type Interceptor struct {
	globs         []*regexp.Regexp
	captureBodies bool
	maxBodySize   int64

	logger arbor.ILogger

	mu        sync.Mutex
	fixtures  []*fixture.Fixture
	nextIndex int
}

// Config configures glob matching and body capture limits.
type Config struct {
	URLGlobs      []string
	CaptureBodies bool
	MaxBodySize   int64
}

// New compiles the configured globs into regexes and returns an empty
// Interceptor.
func New(cfg Config, logger arbor.ILogger) *Interceptor {
	ic := &Interceptor{
		captureBodies: cfg.CaptureBodies,
		maxBodySize:   cfg.MaxBodySize,
		logger:        logger,
	}
	for _, g := range cfg.URLGlobs {
		ic.globs = append(ic.globs, globToRegex(g))
	}
	return ic
}

// globToRegex compiles a URL glob to an anchored regex per spec §4.4:
// `**` -> `.*`, `*` -> `[^/]*`, `?` -> `.`.
func globToRegex(glob string) *regexp.Regexp {
	var out strings.Builder
	out.WriteByte('^')
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				out.WriteString(".*")
				i++
			} else {
				out.WriteString("[^/]*")
			}
		case '?':
			out.WriteString(".")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			out.WriteByte('\\')
			out.WriteRune(runes[i])
		default:
			out.WriteRune(runes[i])
		}
	}
	out.WriteByte('$')
	re, err := regexp.Compile(out.String())
	if err != nil {
		return regexp.MustCompile(`$.^`)
	}
	return re
}

func (ic *Interceptor) matchesAnyGlob(url string) bool {
	if len(ic.globs) == 0 {
		return true
	}
	for _, re := range ic.globs {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// isXHRLike reports whether resourceType corresponds to an XHR or fetch
// request, the only resource types the API Interceptor captures.
func isXHRLike(resourceType string) bool {
	rt := strings.ToLower(resourceType)
	return rt == "xhr" || rt == "fetch"
}

// Observe processes one completed NetworkEvent (request+response already
// joined by the Browser Adapter) and, if it matches, appends a fixture.
func (ic *Interceptor) Observe(ev browser.NetworkEvent, sourcePageURL string) {
	if !isXHRLike(ev.ResourceType) {
		return
	}
	if !ic.matchesAnyGlob(ev.URL) {
		return
	}

	extract := fixture.ExtractPattern(urlPath(ev.URL))

	req := fixture.Request{
		Method:     ev.Method,
		URL:        ev.URL,
		Path:       urlPath(ev.URL),
		Pattern:    extract.Pattern,
		PathParams: extract.PathParams,
		Headers:    filterHeaders(ev.ReqHeaders),
		Query:      parseQuery(ev.URL),
	}

	body, bodyType := ic.classifyBody(ev.RespHeaders, ev.ResponseBody)

	resp := fixture.Response{
		Status:     ev.StatusCode,
		StatusText: ev.StatusText,
		Headers:    filterHeaders(ev.RespHeaders),
		Body:       body,
		BodyType:   bodyType,
	}

	ic.mu.Lock()
	f := &fixture.Fixture{
		ID:             fixtureID(ic.nextIndex, ev.Method, extract.Pattern),
		Request:        req,
		Response:       resp,
		CapturedAt:     time.Now(),
		ResponseTimeMs: ev.FinishedAt.Sub(ev.StartedAt).Milliseconds(),
		SourcePageURL:  sourcePageURL,
		Priority:       extract.Priority,
	}
	ic.nextIndex++
	ic.fixtures = append(ic.fixtures, f)
	ic.mu.Unlock()

	ic.logger.Debug().
		Str("method", ev.Method).
		Str("url", ev.URL).
		Str("pattern", extract.Pattern).
		Int("status", ev.StatusCode).
		Msg("api fixture captured")
}

// classifyBody parses the response body by content-type per spec §4.4
// step 2: JSON -> parse-or-fallback-to-text; text/xml/javascript -> text;
// otherwise -> binary marker with byte length. Bodies exceeding
// maxBodySize are dropped entirely.
func (ic *Interceptor) classifyBody(headers map[string]string, body []byte) (interface{}, fixture.BodyType) {
	if !ic.captureBodies {
		return nil, fixture.BodyTypeText
	}
	if ic.maxBodySize > 0 && int64(len(body)) > ic.maxBodySize {
		return nil, fixture.BodyTypeText
	}

	contentType := strings.ToLower(headerLookup(headers, "content-type"))

	switch {
	case strings.Contains(contentType, "json"):
		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed, fixture.BodyTypeJSON
		}
		return string(body), fixture.BodyTypeText

	case strings.Contains(contentType, "text/"),
		strings.Contains(contentType, "xml"),
		strings.Contains(contentType, "javascript"):
		return string(body), fixture.BodyTypeText

	default:
		return binaryMarker(len(body)), fixture.BodyTypeBinary
	}
}

func binaryMarker(byteLen int) string {
	return fmt.Sprintf("<binary:%d bytes>", byteLen)
}

// urlPath returns the path component of a URL, with query/fragment
// stripped; an unparsable URL is returned unchanged.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// parseQuery flattens a URL's query string into a single-valued map,
// keeping the first value for any repeated key.
func parseQuery(rawURL string) map[string]string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	values := u.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func filterHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if headerDenylist[strings.ToLower(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

func headerLookup(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func fixtureID(index int, method, pattern string) string {
	slug := strings.Map(func(r rune) rune {
		if r == '/' || r == ':' {
			return '_'
		}
		return r
	}, strings.Trim(pattern, "/"))
	if slug == "" {
		slug = "root"
	}
	return fmt.Sprintf("%04d", index) + "_" + method + "_" + slug
}

// Fixtures returns all captured fixtures, deduplicated and sorted by
// descending priority (spec §4.4 "Dedup ... Priority sort").
func (ic *Interceptor) Fixtures() []*fixture.Fixture {
	ic.mu.Lock()
	captured := make([]*fixture.Fixture, len(ic.fixtures))
	copy(captured, ic.fixtures)
	ic.mu.Unlock()

	deduped := fixture.Dedup(captured)
	fixture.SortByPriority(deduped)
	return deduped
}
