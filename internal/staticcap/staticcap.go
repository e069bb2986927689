// Package staticcap implements the Static Capturer's parsing side (spec
// §4.5): sub-resource URL harvesting from HTML and CSS (including srcset
// and image-set), and capture-origin URL rewriting. It parses markup only
// and does not fetch or write any file. Grounded on the teacher's DOM-walking
// style in ramkansal-gofang's internal/extractor/assets.go (goquery
// Find/Each over HTML attributes, per-tag asset classification,
// addAsset-style URL resolution against a base URL).
package staticcap

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/webreplica/internal/fixture"
)

// Redirect records a capture-time HTTP redirect (spec §4.5, §4.10).
type Redirect struct {
	From   string
	To     string
	Status int
}

// HarvestedURL is one URL discovered by HTML/CSS parsing, tagged with
// the tag/attribute it was found in for diagnostics.
type HarvestedURL struct {
	URL    string
	Tag    string
	Source string // "html" or "css"
}

// resourceSelectors enumerates every element/attribute pair the
// Static Capturer's sub-resource harvest walks, grounded on assets.go's
// per-tag addAsset calls.
var resourceSelectors = []struct {
	selector  string
	attr      string
	assetType string
}{
	{"img[src]", "src", "image"},
	{"script[src]", "src", "script"},
	{`link[rel="stylesheet"]`, "href", "stylesheet"},
	{`link[rel="preload"][as="font"]`, "href", "font"},
	{`link[rel="icon"], link[rel="shortcut icon"], link[rel="apple-touch-icon"]`, "href", "icon"},
	{"video[src]", "src", "video"},
	{"audio[src]", "src", "audio"},
	{"source[src]", "src", "video"},
	{"iframe[src]", "src", "document"},
}

// srcsetAttrSelectors enumerates elements whose srcset attribute needs
// the dedicated tokenizer (spec §4.5).
var srcsetAttrSelectors = []string{
	"img[srcset]",
	"source[srcset]",
}

// HarvestHTML parses html and returns every sub-resource URL reachable
// from plain attributes, srcset, and <source>/<picture> responsive
// markup, each resolved against baseURL (the "effective base URL" of
// the enclosing document, per spec §4.5).
func HarvestHTML(html, baseURL string) ([]HarvestedURL, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var out []HarvestedURL
	seen := make(map[string]bool)
	add := func(raw, tag, source string) {
		resolved := ResolveAgainstBase(base, raw)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, HarvestedURL{URL: resolved, Tag: tag, Source: source})
	}

	for _, sel := range resourceSelectors {
		doc.Find(sel.selector).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(sel.attr)
			if !ok {
				return
			}
			add(v, sel.assetType, "html")
		})
	}

	for _, sel := range srcsetAttrSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr("srcset")
			if !ok {
				return
			}
			for _, u := range ParseSrcset(v) {
				add(u, "srcset", "html")
			}
		})
	}

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, u := range ParseImageSet(s.Text()) {
			add(u, "image-set", "css")
		}
		for _, u := range parseCSSURLFuncs(s.Text()) {
			add(u, "css-url", "css")
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, u := range ParseImageSet(style) {
			add(u, "image-set", "html")
		}
		for _, u := range parseCSSURLFuncs(style) {
			add(u, "css-url", "html")
		}
	})

	return out, nil
}

// HarvestCSS parses a standalone CSS file (not inline) for image-set and
// url(...) references, resolved against the CSS file's own URL.
func HarvestCSS(css, baseURL string) ([]HarvestedURL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	var out []HarvestedURL
	seen := make(map[string]bool)
	add := func(raw, tag string) {
		resolved := ResolveAgainstBase(base, raw)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, HarvestedURL{URL: resolved, Tag: tag, Source: "css"})
	}
	for _, u := range ParseImageSet(css) {
		add(u, "image-set")
	}
	for _, u := range parseCSSURLFuncs(css) {
		add(u, "css-url")
	}
	return out, nil
}

// ResolveAgainstBase resolves raw (possibly relative, protocol-relative,
// or already absolute) against base, per spec §4.5's "effective base
// URL" rule. data: URLs are always excluded.
func ResolveAgainstBase(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// ParseSrcset implements spec §4.5's srcset tokenizer: each candidate's
// URL runs up to the next whitespace (so a comma inside a data: URL stays
// part of it), and its descriptor (`Nw` / `Nx`) runs up to the next comma
// and is dropped.
func ParseSrcset(srcset string) []string {
	var urls []string
	s := srcset
	for {
		s = strings.TrimLeft(s, " \t\n\r\f,")
		if s == "" {
			return urls
		}
		end := strings.IndexAny(s, " \t\n\r\f")
		if end == -1 {
			end = len(s)
		}
		raw := s[:end]
		s = s[end:]
		u := strings.TrimRight(raw, ",")
		if u == raw {
			if i := strings.IndexByte(s, ','); i >= 0 {
				s = s[i+1:]
			} else {
				s = ""
			}
		}
		if u != "" && !strings.HasPrefix(u, "data:") {
			urls = append(urls, u)
		}
	}
}

var (
	imageSetFuncRe = regexp.MustCompile(`(?i)(?:-webkit-)?image-set\(((?:[^()]|\([^()]*\))*)\)`)
	imageSetTermRe = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)|['"]([^'"]+)['"]`)
	cssURLFuncRe   = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)
)

// ParseImageSet implements spec §4.5's image-set tokenizer: locate
// `image-set(...)`/`-webkit-image-set(...)` calls (whose arguments may
// contain url(...) calls), and extract every url(...) or quoted URL term
// from their argument list. Terms are matched whole rather than split on
// commas, so a comma inside a data: URL does not break a term.
func ParseImageSet(css string) []string {
	var urls []string
	for _, fn := range imageSetFuncRe.FindAllStringSubmatch(css, -1) {
		args := fn[1]
		for _, m := range imageSetTermRe.FindAllStringSubmatch(args, -1) {
			u := m[1]
			if u == "" {
				u = m[2]
			}
			if u != "" && !strings.HasPrefix(u, "data:") {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// parseCSSURLFuncs extracts every url("..."), url('...'), and bare
// url(...) reference outside of image-set (spec §4.5).
func parseCSSURLFuncs(css string) []string {
	var urls []string
	for _, m := range cssURLFuncRe.FindAllStringSubmatch(css, -1) {
		u := strings.TrimSpace(m[1])
		if u != "" && !strings.HasPrefix(u, "data:") {
			urls = append(urls, u)
		}
	}
	return urls
}

// rewritableAttrs are the attributes RewriteCaptureOriginURLs walks, on
// every element that carries them (anchors included, which HarvestHTML
// does not read).
var rewritableAttrs = []string{"src", "href"}

// RewriteCaptureOriginURLs post-processes captured HTML, replacing
// URLs whose origin (after resolving relative ones against captureOrigin)
// equals captureOrigin with local paths
// relative to the static root (spec §4.5 "Rewriting"). localPathFor
// resolves an absolute URL to its on-disk local path; URLs it doesn't
// recognize (ok == false) are left untouched.
func RewriteCaptureOriginURLs(html, captureOrigin string, localPathFor func(absoluteURL string) (string, bool)) (string, error) {
	origin, err := url.Parse(captureOrigin)
	if err != nil {
		return html, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html, err
	}

	rewriteOne := func(raw string) (string, bool) {
		resolved := ResolveAgainstBase(origin, raw)
		if resolved == "" {
			return "", false
		}
		if u, err := url.Parse(resolved); err != nil || !strings.EqualFold(u.Scheme, origin.Scheme) || !strings.EqualFold(u.Host, origin.Host) {
			return "", false
		}
		local, ok := localPathFor(resolved)
		if !ok {
			return "", false
		}
		return local, true
	}

	for _, attr := range rewritableAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(attr)
			if !ok {
				return
			}
			if local, matched := rewriteOne(v); matched {
				s.SetAttr(attr, local)
			}
		})
	}

	doc.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr("srcset")
		if !ok {
			return
		}
		s.SetAttr("srcset", rewriteSrcset(v, rewriteOne))
	})

	out, err := doc.Html()
	if err != nil {
		return html, err
	}
	return out, nil
}

// rewriteSrcset rewrites each URL in a srcset attribute value in place,
// preserving each entry's trailing descriptor.
func rewriteSrcset(srcset string, rewriteOne func(string) (string, bool)) string {
	entries := strings.Split(srcset, ",")
	for i, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if local, ok := rewriteOne(fields[0]); ok {
			fields[0] = local
		}
		entries[i] = strings.Join(fields, " ")
	}
	return strings.Join(entries, ", ")
}

// Asset builds a fixture.Asset record for one captured sub-resource.
func Asset(rawURL, localPath, contentType string, size int64, isEntrypoint bool) fixture.Asset {
	return fixture.Asset{
		URL:          rawURL,
		LocalPath:    localPath,
		ContentType:  contentType,
		Size:         size,
		IsEntrypoint: isEntrypoint,
	}
}
