// Package fixture defines the captured request/response data model (spec §3),
// the URL-Pattern Extractor (spec §4.1) and the Fixture Matcher (spec §4.2).
package fixture

import "time"

// BodyType classifies how a captured body is represented on disk.
type BodyType string

const (
	BodyTypeJSON   BodyType = "json"
	BodyTypeText   BodyType = "text"
	BodyTypeBinary BodyType = "binary"
)

// Request is the captured, parameterized request half of a Fixture.
type Request struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Path       string            `json:"path"`
	Pattern    string            `json:"pattern"`
	PathParams []string          `json:"pathParams"`
	Query      map[string]string `json:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       interface{}       `json:"body,omitempty"`
}

// Response is the captured response half of a Fixture.
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       interface{}       `json:"body,omitempty"`
	BodyType   BodyType          `json:"bodyType"`
}

// Fixture is a captured request/response pair, persisted as one JSON file.
// Identity and uniqueness invariants live in spec.md §3.
type Fixture struct {
	ID             string    `json:"id"`
	Request        Request   `json:"request"`
	Response       Response  `json:"response"`
	CapturedAt     time.Time `json:"capturedAt"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	SourcePageURL  string    `json:"sourcePageUrl"`
	Priority       int       `json:"-"` // derived, not persisted; recomputed from Request.Path on load
}

// Asset is a captured static resource (spec §3).
type Asset struct {
	URL          string `json:"url"`
	LocalPath    string `json:"localPath"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	IsEntrypoint bool   `json:"isEntrypoint"`
}

// Redirect records an observed capture-time redirect (spec §4.5, §4.10).
type Redirect struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status int    `json:"status"`
}

// Index is the on-disk `_index.json` fixture index (spec §6).
type Index struct {
	Count     int      `json:"count"`
	FixtureIDs []string `json:"fixtureIds"`
}
