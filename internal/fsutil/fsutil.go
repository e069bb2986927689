// Package fsutil implements Safe Filesystem Materialization (spec §4.8):
// path sanitization that can never escape a configured output root, and
// idempotent, content-hash-compared writes. Grounded on the teacher's
// image_storage.go (internal/services/crawler/image_storage.go), which
// hashes downloaded bytes and skips re-writing an already-stored file.
package fsutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fsUnsafeChars are replaced with "_" in every sanitized path segment.
var fsUnsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "|", "_", "?", "_", "*", "_",
)

// Sanitize implements spec §4.8's path-sanitization rule: strip null
// bytes, strip leading separators, scrub FS-unsafe characters per
// segment, and pop ".." segments without ever escaping the root. The
// result is a root-relative path using "/" as its separator.
//
// Idempotent: Sanitize(Sanitize(p)) == Sanitize(p).
func Sanitize(p string) string {
	p = strings.ReplaceAll(p, "\x00", "")
	p = strings.TrimLeft(p, "/\\")
	p = filepath.ToSlash(p)

	segments := strings.Split(p, "/")
	var stack []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			// a ".." that would climb above the root is dropped, never honored.
		default:
			stack = append(stack, fsUnsafeChars.Replace(seg))
		}
	}
	return strings.Join(stack, "/")
}

// ResolveUnderRoot sanitizes p and joins it to root, guaranteeing the
// result is root or a descendant of root regardless of p's content.
func ResolveUnderRoot(root, p string) string {
	return filepath.Join(root, filepath.FromSlash(Sanitize(p)))
}

// WriteResult reports whether WriteFile actually touched the filesystem.
type WriteResult struct {
	Path      string
	Written   bool // false when skipped because content was already identical
	BytesSize int
}

// WriteFile materializes data at ResolveUnderRoot(root, relPath),
// creating parent directories as needed. If the destination already
// exists with an identical content hash, the write is skipped (spec
// §4.8: "idempotent ... skipped and counted as unchanged").
func WriteFile(root, relPath string, data []byte) (WriteResult, error) {
	fullPath := ResolveUnderRoot(root, relPath)

	if existing, err := os.ReadFile(fullPath); err == nil {
		if sameContent(existing, data) {
			return WriteResult{Path: fullPath, Written: false, BytesSize: len(data)}, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return WriteResult{}, fmt.Errorf("create directory for %s: %w", fullPath, err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", fullPath, err)
	}

	return WriteResult{Path: fullPath, Written: true, BytesSize: len(data)}, nil
}

func sameContent(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return bytes.Equal(a, b)
}

// ContentHash returns a hex-encoded SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
