// Package sourcemap implements the Source-Map Extraction Pipeline (spec
// §4.7): discover → fetch → parse/validate → extract, for ECMA-426 v3
// source maps. Discovery order (headers, JS/CSS trailing comments, .map
// probe) and the overall fetch-then-process shape are grounded on the
// tsmap-crawl reference tool's processScript/discovery logic
// (other_examples/4f3eab6e_safepic-tsmap-extract__tsmap-crawl.go.go);
// logging and error-wrapping follow the teacher's conventions.
package sourcemap

import (
	"encoding/json"
	"errors"
)

// RawMap is the on-the-wire ECMA-426 v3 JSON shape.
type RawMap struct {
	Version        int            `json:"version"`
	File           string         `json:"file,omitempty"`
	SourceRoot     string         `json:"sourceRoot,omitempty"`
	Sources        []string       `json:"sources"`
	SourcesContent []*string      `json:"sourcesContent,omitempty"`
	Names          []string       `json:"names,omitempty"`
	Mappings       string         `json:"mappings"`
	IgnoreList     []int          `json:"ignoreList,omitempty"`
	Sections       []RawSection   `json:"sections,omitempty"`
}

// RawSection models an index-map section; sections are decoded but Parse
// does not validate them (index maps themselves are out of scope for extraction, since
// extraction works from sources/sourcesContent which index maps do not
// carry directly).
type RawSection struct {
	Offset struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"offset"`
	Map json.RawMessage `json:"map,omitempty"`
}

// ExtractedSource is one emitted (path, content) pair (spec §4.7 step 4).
type ExtractedSource struct {
	Path         string
	OriginalPath string
	Content      string
}

// Result is the outcome of running the full pipeline over one bundle.
type Result struct {
	BundleURL       string
	MapURL          string
	Sources         []ExtractedSource
	ExtractedCount  int
	NullContentCount int
	SkippedCount    int
	Errors          []error
}

// Error kinds (spec §7 taxonomy), restricted to the kinds this package can
// itself raise: Discovery, Size, Validation, VLQ/Mapping.
var (
	ErrDiscoveryNotFound  = errors.New("sourcemap: no source map discovered")
	ErrDiscoveryRejected  = errors.New("sourcemap: discovery response rejected (text/html content-type)")
	ErrSizeExceeded       = errors.New("sourcemap: response exceeds maxSize budget")
	ErrValidationVersion  = errors.New("sourcemap: version must be 3")
	ErrValidationSources  = errors.New("sourcemap: sources must be a string array")
	ErrValidationMappings = errors.New("sourcemap: mappings must be a string")
	ErrVLQMalformed       = errors.New("sourcemap: malformed VLQ segment")
	ErrVLQIndexOOB        = errors.New("sourcemap: VLQ segment references out-of-bounds source/name index")
)
