package intercept

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/webreplica/internal/browser"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestGlobToRegexDoubleStarMatchesAcrossSegments(t *testing.T) {
	re := globToRegex("https://x.test/api/**")
	if !re.MatchString("https://x.test/api/v1/users/7") {
		t.Fatal("** should match across path segments")
	}
}

func TestGlobToRegexSingleStarStopsAtSlash(t *testing.T) {
	re := globToRegex("https://x.test/api/*/users")
	if re.MatchString("https://x.test/api/v1/extra/users") {
		t.Fatal("single * must not cross a slash")
	}
	if !re.MatchString("https://x.test/api/v1/users") {
		t.Fatal("single * should match one segment")
	}
}

func TestGlobToRegexQuestionMarkMatchesSingleChar(t *testing.T) {
	re := globToRegex("https://x.test/ab?")
	if !re.MatchString("https://x.test/abc") {
		t.Fatal("? should match exactly one character")
	}
	if re.MatchString("https://x.test/ab") {
		t.Fatal("? requires a character to be present")
	}
}

func TestIsXHRLikeAcceptsOnlyXHRAndFetch(t *testing.T) {
	if !isXHRLike("xhr") || !isXHRLike("Fetch") {
		t.Fatal("xhr/fetch should be accepted case-insensitively")
	}
	if isXHRLike("document") || isXHRLike("script") || isXHRLike("image") {
		t.Fatal("non-xhr/fetch resource types must be rejected")
	}
}

func TestFilterHeadersDropsDenylistedKeys(t *testing.T) {
	in := map[string]string{
		"Cookie":        "session=abc",
		"Authorization": "Bearer xyz",
		"ETag":          `"v1"`,
		"Content-Type":  "application/json",
		"X-Request-Id":  "r-1",
	}
	out := filterHeaders(in)
	for _, denied := range []string{"Cookie", "Authorization", "ETag"} {
		if _, present := out[denied]; present {
			t.Fatalf("%s should have been filtered", denied)
		}
	}
	if out["Content-Type"] != "application/json" || out["X-Request-Id"] != "r-1" {
		t.Fatal("non-denylisted headers must pass through unchanged")
	}
}

func TestClassifyBodyParsesValidJSON(t *testing.T) {
	ic := New(Config{CaptureBodies: true, MaxBodySize: 1 << 20}, testLogger())
	body, bodyType := ic.classifyBody(map[string]string{"content-type": "application/json"}, []byte(`{"id":7}`))
	if bodyType != "json" {
		t.Fatalf("bodyType = %v", bodyType)
	}
	m, ok := body.(map[string]interface{})
	if !ok || m["id"].(float64) != 7 {
		t.Fatalf("parsed body = %#v", body)
	}
}

func TestClassifyBodyFallsBackToTextOnInvalidJSON(t *testing.T) {
	ic := New(Config{CaptureBodies: true, MaxBodySize: 1 << 20}, testLogger())
	body, bodyType := ic.classifyBody(map[string]string{"content-type": "application/json"}, []byte(`not json`))
	if bodyType != "text" {
		t.Fatalf("bodyType = %v, want text fallback", bodyType)
	}
	if body.(string) != "not json" {
		t.Fatalf("body = %v", body)
	}
}

func TestClassifyBodyTextXMLAndJavascriptAreText(t *testing.T) {
	ic := New(Config{CaptureBodies: true, MaxBodySize: 1 << 20}, testLogger())

	_, t1 := ic.classifyBody(map[string]string{"content-type": "text/plain"}, []byte("hi"))
	_, t2 := ic.classifyBody(map[string]string{"content-type": "application/xml"}, []byte("<a/>"))
	_, t3 := ic.classifyBody(map[string]string{"content-type": "application/javascript"}, []byte("var x=1"))

	if t1 != "text" || t2 != "text" || t3 != "text" {
		t.Fatalf("expected text for plain/xml/javascript, got %v %v %v", t1, t2, t3)
	}
}

func TestClassifyBodyOtherContentTypesAreBinaryMarker(t *testing.T) {
	ic := New(Config{CaptureBodies: true, MaxBodySize: 1 << 20}, testLogger())
	body, bodyType := ic.classifyBody(map[string]string{"content-type": "image/png"}, []byte{0x89, 'P', 'N', 'G', 0, 0, 0})
	if bodyType != "binary" {
		t.Fatalf("bodyType = %v, want binary", bodyType)
	}
	marker, ok := body.(string)
	if !ok {
		t.Fatalf("binary body must be a marker string, got %#v", body)
	}
	if marker != "<binary:7 bytes>" {
		t.Fatalf("marker = %q, must encode the byte length", marker)
	}
}

func TestClassifyBodyDropsBodiesExceedingMaxBodySize(t *testing.T) {
	ic := New(Config{CaptureBodies: true, MaxBodySize: 3}, testLogger())
	body, bodyType := ic.classifyBody(map[string]string{"content-type": "application/json"}, []byte(`{"a":1}`))
	if body != nil {
		t.Fatalf("oversized body must be dropped, got %#v", body)
	}
	_ = bodyType
}

func TestObserveIgnoresNonXHRResourceTypes(t *testing.T) {
	ic := New(Config{CaptureBodies: true}, testLogger())
	ic.Observe(browser.NetworkEvent{
		Method:       "GET",
		URL:          "https://x.test/api/users/7",
		ResourceType: "document",
		StatusCode:   200,
	}, "https://x.test/")
	if len(ic.Fixtures()) != 0 {
		t.Fatal("non-xhr/fetch events must not produce fixtures")
	}
}

func TestObserveIgnoresNonMatchingGlob(t *testing.T) {
	ic := New(Config{URLGlobs: []string{"https://x.test/api/**"}}, testLogger())
	ic.Observe(browser.NetworkEvent{
		Method:       "GET",
		URL:          "https://x.test/assets/logo.png",
		ResourceType: "fetch",
		StatusCode:   200,
	}, "https://x.test/")
	if len(ic.Fixtures()) != 0 {
		t.Fatal("events not matching any glob must be dropped")
	}
}

func TestObserveCapturesMatchingXHRAsFixture(t *testing.T) {
	ic := New(Config{
		URLGlobs:     []string{"https://x.test/api/**"},
		CaptureBodies: true,
		MaxBodySize:  1 << 20,
	}, testLogger())

	start := time.Now()
	ic.Observe(browser.NetworkEvent{
		Method:       "GET",
		URL:          "https://x.test/api/users/7",
		ResourceType: "xhr",
		StatusCode:   200,
		StatusText:   "OK",
		RespHeaders:  map[string]string{"content-type": "application/json"},
		ResponseBody: []byte(`{"id":"7"}`),
		StartedAt:    start,
		FinishedAt:   start.Add(42 * time.Millisecond),
	}, "https://x.test/dashboard")

	fixtures := ic.Fixtures()
	if len(fixtures) != 1 {
		t.Fatalf("want 1 fixture, got %d", len(fixtures))
	}
	f := fixtures[0]
	if f.Request.Pattern != "/api/users/:userId" {
		t.Fatalf("pattern = %q", f.Request.Pattern)
	}
	if f.Response.Status != 200 || f.Response.BodyType != "json" {
		t.Fatalf("response = %+v", f.Response)
	}
	if f.ResponseTimeMs != 42 {
		t.Fatalf("responseTimeMs = %d", f.ResponseTimeMs)
	}
}

func TestFixturesDedupesByMethodAndPattern(t *testing.T) {
	ic := New(Config{}, testLogger())
	for i := 0; i < 3; i++ {
		ic.Observe(browser.NetworkEvent{
			Method:       "GET",
			URL:          "https://x.test/api/users/7",
			ResourceType: "xhr",
			StatusCode:   200,
		}, "https://x.test/")
	}
	if len(ic.Fixtures()) != 1 {
		t.Fatalf("expected dedup to keep exactly one fixture per (method,pattern), got %d", len(ic.Fixtures()))
	}
}

func TestObserveIsSafeForConcurrentWorkers(t *testing.T) {
	ic := New(Config{CaptureBodies: true, MaxBodySize: 1 << 20}, testLogger())

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ic.Observe(browser.NetworkEvent{
					Method:       "GET",
					URL:          fmt.Sprintf("https://x.test/api/items/%d", w*perWorker+i),
					ResourceType: "xhr",
					StatusCode:   200,
				}, "https://x.test/")
			}
		}(w)
	}
	wg.Wait()

	// All of these collapse to the single pattern /api/items/:itemId, so
	// dedup must still leave exactly one fixture despite concurrent writers.
	fixtures := ic.Fixtures()
	if len(fixtures) != 1 {
		t.Fatalf("expected concurrent Observe calls to dedup to 1 fixture, got %d", len(fixtures))
	}
}
