package sourcemap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

func TestDiscoverPrefersHeaderOverComment(t *testing.T) {
	got, err := Discover(BundleResponse{
		URL:     "https://x.test/app.js",
		Headers: map[string]string{"sourcemap": "/maps/app.js.map"},
		Body:    "//# sourceMappingURL=ignored.map",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://x.test/maps/app.js.map" {
		t.Fatalf("got %q", got)
	}
}

func TestDiscoverFallsBackToJSComment(t *testing.T) {
	got, err := Discover(BundleResponse{
		URL:  "https://x.test/static/app.js",
		Body: "console.log(1)\n//# sourceMappingURL=app.js.map\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://x.test/static/app.js.map" {
		t.Fatalf("got %q", got)
	}
}

func TestDiscoverUsesLastCommentOccurrence(t *testing.T) {
	got, err := Discover(BundleResponse{
		URL:  "https://x.test/app.js",
		Body: "//# sourceMappingURL=old.map\nfoo()\n//# sourceMappingURL=new.map\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://x.test/new.map" {
		t.Fatalf("got %q, want new.map to win (last occurrence)", got)
	}
}

func TestDiscoverProbesDotMapWhenNothingElseFound(t *testing.T) {
	got, err := Discover(BundleResponse{URL: "https://x.test/app.js", Body: "console.log(1)"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://x.test/app.js.map" {
		t.Fatalf("got %q", got)
	}
}

func TestAcceptDiscoveryContentTypeRejectsHTML(t *testing.T) {
	if err := AcceptDiscoveryContentType("text/html; charset=utf-8"); !errors.Is(err, ErrDiscoveryRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if err := AcceptDiscoveryContentType(""); err != nil {
		t.Fatalf("missing content-type should be accepted, got %v", err)
	}
	if err := AcceptDiscoveryContentType("application/json"); err != nil {
		t.Fatalf("json should be accepted, got %v", err)
	}
}

func TestFetchAcceptsExactlyMaxSizeRejectsOneByteOver(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 10)

	got, err := Fetch(context.Background(), bytes.NewReader(data), int64(len(data)), 10)
	if err != nil {
		t.Fatalf("exact maxSize should be accepted: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d bytes", len(got))
	}

	_, err = Fetch(context.Background(), bytes.NewReader(data), int64(len(data)), 9)
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("one byte over maxSize should be rejected, got %v", err)
	}
}

func TestFetchStreamingHandlesMultiByteRuneSplitAcrossChunks(t *testing.T) {
	// "é" is 2 bytes (0xC3 0xA9); contentLength -1 forces the streaming
	// path, and a one-byte-per-Read reader splits every "é" across two
	// chunks.
	text := strings.Repeat("héllo ", 1000)
	got, err := Fetch(context.Background(), iotest.OneByteReader(strings.NewReader(text)), -1, int64(len(text)+10))
	if err != nil {
		t.Fatal(err)
	}
	if got != text {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(text))
	}
}

func TestParseRejectsWrongVersion(t *testing.T) {
	_, err := Parse(`{"version":2,"sources":[],"mappings":""}`)
	if !errors.Is(err, ErrValidationVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestParseWarnsOnSourcesContentLengthMismatch(t *testing.T) {
	res, err := Parse(`{"version":3,"sources":["a.js","b.js"],"sourcesContent":["x"],"mappings":""}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(res.Warnings))
	}
}

func TestDecodeVLQSegmentSimpleValues(t *testing.T) {
	// "AAAA" decodes to four zero fields (A = 0 in the VLQ alphabet).
	fields, err := DecodeVLQSegment("AAAA")
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 4 {
		t.Fatalf("fields = %v", fields)
	}
	for _, f := range fields {
		if f != 0 {
			t.Fatalf("expected all-zero fields, got %v", fields)
		}
	}
}

func TestDecodeVLQSegmentRejectsInvalidDigit(t *testing.T) {
	_, err := DecodeVLQSegment("A A")
	if !errors.Is(err, ErrVLQMalformed) {
		t.Fatalf("expected malformed VLQ error, got %v", err)
	}
}

func TestDecodeMappingsRejectsOutOfBoundsSourceIndex(t *testing.T) {
	// Segment "AECA" decodes to field deltas [0, 2, 1, 0]; the sourceIndex
	// delta of +2 pushes sourceIndex from 0 to 2, out of bounds for a
	// sourceCount of 1.
	_, err := DecodeMappings("AECA", 1, 0)
	if !errors.Is(err, ErrVLQIndexOOB) {
		t.Fatalf("expected out-of-bounds error, got %v", err)
	}
}

func TestNormalizePathStripsWebpackSchemeAndNullMarker(t *testing.T) {
	got := normalizePath("", "webpack://my-app/\x00./src/App.tsx")
	if got != "src/App.tsx" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizePathResolvesDotDotWithoutEscapingRoot(t *testing.T) {
	got := normalizePath("", "../../../etc/passwd")
	if strings.Contains(got, "..") {
		t.Fatalf("normalized path must never contain .. segments: %q", got)
	}
}

func TestExtractCountsNullContentAndSkipped(t *testing.T) {
	content := "console.log(1)"
	m := RawMap{
		Version:        3,
		Sources:        []string{"webpack:///./src/app.js", "node_modules/foo/index.js"},
		SourcesContent: []*string{&content, nil},
	}
	res := Extract(m, ExtractOptions{})
	if res.ExtractedCount != 1 {
		t.Fatalf("extractedCount = %d, want 1", res.ExtractedCount)
	}
	if res.NullContentCount != 1 {
		t.Fatalf("nullContentCount = %d, want 1", res.NullContentCount)
	}
	if res.SkippedCount != 0 {
		t.Fatalf("skippedCount = %d, want 0 (a null-content source is not also counted as skipped)", res.SkippedCount)
	}
}

func TestExtractFiltersNodeModulesByDefault(t *testing.T) {
	a := "a"
	b := "b"
	m := RawMap{
		Version:        3,
		Sources:        []string{"src/app.js", "node_modules/lib/index.js"},
		SourcesContent: []*string{&a, &b},
	}
	res := Extract(m, ExtractOptions{})
	if res.ExtractedCount != 1 || res.SkippedCount != 1 {
		t.Fatalf("extracted=%d skipped=%d, want 1/1", res.ExtractedCount, res.SkippedCount)
	}
}
