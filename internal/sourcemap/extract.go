package sourcemap

import (
	"path"
	"regexp"
	"strings"
)

// webpackSchemePrefix matches the `webpack://<name>/` prefix source paths
// commonly carry (e.g. `webpack:///./src/App.tsx`, `webpack://my-app/./x`).
var webpackSchemePrefix = regexp.MustCompile(`^webpack://[^/]*/`)

// ExtractOptions configures path filtering for Extract (spec §4.7 step 3).
type ExtractOptions struct {
	IncludeNodeModules bool
	InternalPackages   map[string]bool
	ExcludePatterns    []*regexp.Regexp
}

// Extract walks parsed.Map.Sources/SourcesContent, normalizing and
// filtering each path per spec §4.7 steps 1-4, and returns the extracted
// sources plus null/skip counters.
func Extract(m RawMap, opts ExtractOptions) Result {
	res := Result{}

	for i, src := range m.Sources {
		var content *string
		if i < len(m.SourcesContent) {
			content = m.SourcesContent[i]
		}
		if content == nil {
			res.NullContentCount++
			continue
		}

		normalized := normalizePath(m.SourceRoot, src)
		if shouldFilter(normalized, opts) {
			res.SkippedCount++
			continue
		}

		res.Sources = append(res.Sources, ExtractedSource{
			Path:         normalized,
			OriginalPath: src,
			Content:      *content,
		})
		res.ExtractedCount++
	}

	return res
}

// normalizePath implements spec §4.7 step 2: strip webpack://<name>/,
// strip leading \0 (virtual module marker), prepend sourceRoot when
// relative, drop leading ./, safely resolve .. without escaping the root.
func normalizePath(sourceRoot, src string) string {
	p := webpackSchemePrefix.ReplaceAllString(src, "")
	p = strings.TrimPrefix(p, "\x00")

	if sourceRoot != "" && !path.IsAbs(p) {
		p = path.Join(sourceRoot, p)
	}
	p = strings.TrimPrefix(p, "./")

	return resolveDotDotWithinRoot(p)
}

// resolveDotDotWithinRoot collapses ".." segments without ever climbing
// above the conceptual root, matching the Safe Filesystem Materialization
// invariant that a path can never escape the output root.
func resolveDotDotWithinRoot(p string) string {
	p = strings.TrimPrefix(p, "/")
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
			// a ".." that would escape the root is simply dropped.
		default:
			stack = append(stack, seg)
		}
	}
	return strings.Join(stack, "/")
}

// shouldFilter reports whether path should be excluded per step 3: empty,
// virtual-module-marked, node_modules (unless opted in), an internal
// package, or matching an exclude pattern.
func shouldFilter(normalized string, opts ExtractOptions) bool {
	if normalized == "" {
		return true
	}
	if strings.Contains(normalized, "\x00") {
		return true
	}
	if !opts.IncludeNodeModules && containsNodeModules(normalized) {
		return true
	}
	if opts.InternalPackages != nil {
		for pkg := range opts.InternalPackages {
			if strings.Contains(normalized, pkg) {
				return true
			}
		}
	}
	for _, re := range opts.ExcludePatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func containsNodeModules(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "node_modules" {
			return true
		}
	}
	return false
}
