package replay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/webreplica/internal/fixture"
	"github.com/ternarybob/webreplica/internal/manifest"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// writeTestSite builds a minimal _server/ tree (manifest + fixtures +
// static) under a temp dir and returns the site root.
func writeTestSite(t *testing.T, m *manifest.Manifest, fixtures []*fixture.Fixture, staticFiles map[string]string) string {
	t.Helper()
	root := t.TempDir()
	serverDir := filepath.Join(root, "_server")

	if err := manifest.Write(filepath.Join(serverDir, "manifest.json"), m); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := fixture.SaveAll(filepath.Join(serverDir, "fixtures"), fixtures); err != nil {
		t.Fatalf("save fixtures: %v", err)
	}
	for name, content := range staticFiles {
		p := filepath.Join(serverDir, "static", name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write static file: %v", err)
		}
	}
	return root
}

func baseManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Name:      "example",
		SourceURL: "https://x.test/",
		Routes:    manifest.Routes{API: true, Static: true},
		Fixtures:  manifest.Fixtures{IndexFile: "_index.json"},
		Static:    manifest.Static{Enabled: true, Entrypoint: "index.html"},
	}
}

func TestReplayServesFixtureHitWithMockHeaders(t *testing.T) {
	f := &fixture.Fixture{
		ID: "fx-1",
		Request: fixture.Request{
			Method:  "GET",
			Path:    "/api/users/:userId",
			Pattern: "/api/users/:userId",
		},
		Response: fixture.Response{
			Status:   200,
			Body:     map[string]interface{}{"id": "7"},
			BodyType: fixture.BodyTypeJSON,
		},
	}
	root := writeTestSite(t, baseManifest(), []*fixture.Fixture{f}, nil)

	srv, err := Load(root, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/7", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Mock-Server") != "true" {
		t.Fatal("X-Mock-Server header missing")
	}
	if rec.Header().Get("X-Fixture-Id") != "fx-1" {
		t.Fatalf("X-Fixture-Id = %q", rec.Header().Get("X-Fixture-Id"))
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", rec.Header().Get("Content-Type"))
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "7" {
		t.Fatalf("body = %v", body)
	}
}

func TestReplayServesStaticFileThenSPAFallback(t *testing.T) {
	m := baseManifest()
	root := writeTestSite(t, m, nil, map[string]string{
		"index.html":    "<html>home</html>",
		"assets/app.js": "console.log(1)",
	})

	srv, err := Load(root, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "console.log(1)" {
		t.Fatalf("static file serving failed: status=%d body=%q", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/some/deep/spa/route", nil)
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK || rec2.Body.String() != "<html>home</html>" {
		t.Fatalf("SPA fallback failed: status=%d body=%q", rec2.Code, rec2.Body.String())
	}
}

func TestReplayReturns404JSONWhenNothingMatches(t *testing.T) {
	m := baseManifest()
	m.Static.Enabled = false
	m.Routes.Static = false
	root := writeTestSite(t, m, nil, nil)

	srv, err := Load(root, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/nothing/here", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 404 body: %v", err)
	}
	if body["error"] == "" || body["message"] == "" || body["hint"] == "" {
		t.Fatalf("404 body missing fields: %v", body)
	}
}

func TestReplayCapturedRedirectWins(t *testing.T) {
	m := baseManifest()
	m.Redirects = []manifest.Redirect{{From: "/old", To: "/new", Status: 301}}
	root := writeTestSite(t, m, nil, map[string]string{"index.html": "home"})

	srv, err := Load(root, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/old", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if rec.Header().Get("Location") != "/new" {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
}

func TestReplayRootPrefixRedirectsToSubpath(t *testing.T) {
	m := baseManifest()
	m.Static.PathPrefix = "/app"
	root := writeTestSite(t, m, nil, map[string]string{"app/index.html": "app home"})

	srv, err := Load(root, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if rec.Header().Get("Location") != "/app" {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
}

func TestReplayCORSAddsHeadersAndHandlesPreflight(t *testing.T) {
	m := baseManifest()
	m.Server.CORS = true
	root := writeTestSite(t, m, nil, map[string]string{"index.html": "home"})

	srv, err := Load(root, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header on preflight response")
	}
}
