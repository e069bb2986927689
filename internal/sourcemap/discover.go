package sourcemap

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// jsSourceMapComment matches the last `//# sourceMappingURL=...` trailing
// comment in a JS bundle; CSS uses the /*# ... */ block form instead.
// Grounded on tsmap-crawl's reSourceMapComment.
var jsSourceMapComment = regexp.MustCompile(`(?m)//[#@]\s*sourceMappingURL\s*=\s*(\S+)\s*$`)
var cssSourceMapComment = regexp.MustCompile(`/\*#\s*sourceMappingURL\s*=\s*(\S+)\s*\*/`)

// BundleResponse is the minimal information Discover needs about an
// already-fetched bundle (headers + body), decoupling discovery from any
// particular HTTP client.
type BundleResponse struct {
	URL     string
	Headers map[string]string // case-insensitive lookup expected pre-normalized to lower-case keys
	Body    string
	IsCSS   bool
}

// Discover finds the source-map reference for a bundle per spec §4.7's
// four-step discovery order, returning the (possibly relative) map
// reference resolved against the bundle URL.
func Discover(bundle BundleResponse) (string, error) {
	if ref := headerValue(bundle.Headers, "sourcemap"); ref != "" {
		return resolveRef(bundle.URL, ref)
	}
	if ref := headerValue(bundle.Headers, "x-sourcemap"); ref != "" {
		return resolveRef(bundle.URL, ref)
	}

	var re *regexp.Regexp
	if bundle.IsCSS {
		re = cssSourceMapComment
	} else {
		re = jsSourceMapComment
	}
	if matches := re.FindAllStringSubmatch(bundle.Body, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		ref := strings.Trim(strings.TrimSpace(last[1]), `"'`)
		return resolveRef(bundle.URL, ref)
	}

	// Probe: bundle URL + ".map" — the caller performs the actual HTTP
	// fetch; Discover only returns the candidate URL to try.
	probe, err := resolveRef(bundle.URL, bundle.URL+".map")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDiscoveryNotFound, bundle.URL)
	}
	return probe, nil
}

func headerValue(headers map[string]string, key string) string {
	if headers == nil {
		return ""
	}
	return strings.TrimSpace(headers[strings.ToLower(key)])
}

func resolveRef(bundleURL, ref string) (string, error) {
	base, err := url.Parse(bundleURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid bundle url %q", ErrDiscoveryNotFound, bundleURL)
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: invalid source map reference %q", ErrDiscoveryNotFound, ref)
	}
	return base.ResolveReference(rel).String(), nil
}

// AcceptDiscoveryContentType applies spec §4.7's content-type gate: JSON,
// octet-stream, text/plain, or missing entirely are accepted; text/html
// (SPA fallback) is rejected.
func AcceptDiscoveryContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "application/json", "application/octet-stream", "text/plain":
		return nil
	default:
		return fmt.Errorf("%w: content-type %q", ErrDiscoveryRejected, ct)
	}
}
