// Package replay implements the Replay Server (spec §4.10): an HTTP
// server that loads a manifest and fixture set from disk and serves
// captured traffic back through a fixed middleware chain. Grounded on
// the teacher's net/http handler style (internal/handlers/helpers.go's
// WriteJSON/WriteError conventions) — generalized from "serve live data
// from a service" to "serve recorded fixtures from a Matcher".
package replay

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/webreplica/internal/fixture"
	"github.com/ternarybob/webreplica/internal/manifest"
)

// headersStrippedOnReplay are never copied from a fixture's captured
// response onto the live replay response (spec §4.10 step 6).
var headersStrippedOnReplay = map[string]bool{
	"content-encoding":  true,
	"transfer-encoding": true,
	"content-length":    true,
}

// Server is the Replay Server (spec §4.10). Zero value is not usable;
// use Load.
type Server struct {
	manifest   *manifest.Manifest
	matcher    *fixture.Matcher
	staticRoot string
	logger     arbor.ILogger
	rng        *rand.Rand
}

// Load reads manifest.json and the fixture set from siteRoot/_server and
// builds a ready-to-serve Server.
func Load(siteRoot string, logger arbor.ILogger) (*Server, error) {
	serverDir := filepath.Join(siteRoot, "_server")

	m, err := manifest.Load(filepath.Join(serverDir, "manifest.json"))
	if err != nil {
		return nil, err
	}

	var fixtures []*fixture.Fixture
	if m.Routes.API {
		fixtures, err = fixture.LoadAll(filepath.Join(serverDir, "fixtures"))
		if err != nil {
			return nil, err
		}
	}

	return &Server{
		manifest:   m,
		matcher:    fixture.NewMatcher(fixtures),
		staticRoot: filepath.Join(serverDir, "static"),
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Handler builds the fixed middleware chain of spec §4.10: logger → CORS
// → delay → captured-redirect → root-prefix-redirect → fixture matcher →
// static serving (SPA fallback) → 404 JSON.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.serveCore)
	h = s.withRootPrefixRedirect(h)
	h = s.withCapturedRedirects(h)
	h = s.withDelay(h)
	h = s.withCORS(h)
	h = s.withRequestLog(h)
	return h
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("duration", time.Since(start)).Msg("replay request")
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	if !s.manifest.Server.CORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withDelay(next http.Handler) http.Handler {
	d := s.manifest.Server.Delay
	if !d.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spread := d.MaxMs - d.MinMs
		wait := d.MinMs
		if spread > 0 {
			wait += s.rng.Intn(spread + 1)
		}
		time.Sleep(time.Duration(wait) * time.Millisecond)
		next.ServeHTTP(w, r)
	})
}

// withCapturedRedirects implements spec §4.10 step 4: first
// redirect.from==path with from != to wins.
func (s *Server) withCapturedRedirects(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, rdr := range s.manifest.Redirects {
			if rdr.From == r.URL.Path && rdr.From != rdr.To {
				http.Redirect(w, r, rdr.To, rdr.Status)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withRootPrefixRedirect implements spec §4.10 step 5: `/` -> pathPrefix
// when the original capture had a subpath.
func (s *Server) withRootPrefixRedirect(next http.Handler) http.Handler {
	prefix := s.manifest.Static.PathPrefix
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if prefix != "" && prefix != "/" && r.URL.Path == "/" {
			http.Redirect(w, r, prefix, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// serveCore implements spec §4.10 steps 6-8: fixture matcher, then static
// serving with SPA fallback, then 404 JSON.
func (s *Server) serveCore(w http.ResponseWriter, r *http.Request) {
	if match := s.matcher.Match(r.Method, r.URL.Path); match != nil {
		s.writeFixtureResponse(w, match)
		return
	}

	if s.manifest.Routes.Static {
		if served := s.serveStatic(w, r); served {
			return
		}
	}

	s.writeNotFound(w, r)
}

func (s *Server) writeFixtureResponse(w http.ResponseWriter, match *fixture.MatchResult) {
	f := match.Fixture
	for k, v := range f.Response.Headers {
		if headersStrippedOnReplay[strings.ToLower(k)] {
			continue
		}
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Mock-Server", "true")
	w.Header().Set("X-Fixture-Id", f.ID)

	if f.Response.BodyType == fixture.BodyTypeJSON && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}

	status := f.Response.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch f.Response.BodyType {
	case fixture.BodyTypeJSON:
		_ = json.NewEncoder(w).Encode(f.Response.Body)
	case fixture.BodyTypeText:
		if text, ok := f.Response.Body.(string); ok {
			_, _ = w.Write([]byte(text))
		}
	case fixture.BodyTypeBinary:
		if marker, ok := f.Response.Body.(string); ok {
			_, _ = w.Write([]byte(marker))
		}
	}
}

// serveStatic serves a file from staticRoot, falling back to the
// manifest's entrypoint for any path without a file extension (SPA
// fallback, spec §4.10 step 7). Returns false if nothing could be served
// (caller falls through to 404).
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	requested := filepath.Join(s.staticRoot, filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/")))

	if info, err := os.Stat(requested); err == nil && !info.IsDir() {
		http.ServeFile(w, r, requested)
		return true
	}

	if filepath.Ext(r.URL.Path) != "" {
		return false
	}

	entrypoint := s.manifest.Static.Entrypoint
	if entrypoint == "" {
		entrypoint = "index.html"
	}
	fallback := filepath.Join(s.staticRoot, entrypoint)
	if _, err := os.Stat(fallback); err != nil {
		return false
	}
	http.ServeFile(w, r, fallback)
	return true
}

func (s *Server) writeNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "not_found",
		"message": "no fixture or static file matched " + r.Method + " " + r.URL.Path,
		"hint":    "check that the fixture was captured for this exact method+path, or that static capture is enabled",
	})
}
