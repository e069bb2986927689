package fixture

import (
	"regexp"
	"sort"
	"strings"
)

// MatchResult is the outcome of a successful Matcher lookup.
type MatchResult struct {
	Fixture *Fixture
	Params  map[string]string
}

// Matcher maps (method, path) to the best matching fixture, per spec §4.2.
// Fixtures are grouped by method and, within a method, sorted by descending
// priority (stable on capture order) once at build time; matching itself is
// a single linear scan, never re-sorted per request.
type Matcher struct {
	byMethod map[string][]compiledFixture
}

type compiledFixture struct {
	fixture *Fixture
	regex   *regexp.Regexp
}

// NewMatcher builds a Matcher from a set of already-deduplicated fixtures.
func NewMatcher(fixtures []*Fixture) *Matcher {
	byMethod := make(map[string][]*Fixture)
	for _, f := range fixtures {
		byMethod[f.Request.Method] = append(byMethod[f.Request.Method], f)
	}

	m := &Matcher{byMethod: make(map[string][]compiledFixture)}
	for method, group := range byMethod {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Priority > group[j].Priority
		})
		compiled := make([]compiledFixture, 0, len(group))
		for _, f := range group {
			compiled = append(compiled, compiledFixture{
				fixture: f,
				regex:   patternToRegex(f.Request.Pattern),
			})
		}
		m.byMethod[method] = compiled
	}
	return m
}

// Match finds the best fixture for (method, path), per spec §4.2: an exact
// path match wins outright; otherwise the first pattern regex hit (already
// sorted by descending priority) wins.
func (m *Matcher) Match(method, path string) *MatchResult {
	group, ok := m.byMethod[method]
	if !ok {
		return nil
	}

	for _, cf := range group {
		if cf.fixture.Request.Path == path {
			return &MatchResult{Fixture: cf.fixture, Params: map[string]string{}}
		}
	}

	for _, cf := range group {
		sub := cf.regex.FindStringSubmatch(path)
		if sub == nil {
			continue
		}
		params := make(map[string]string, len(cf.fixture.Request.PathParams))
		for i, name := range cf.fixture.Request.PathParams {
			if i+1 < len(sub) {
				params[name] = sub[i+1]
			}
		}
		return &MatchResult{Fixture: cf.fixture, Params: params}
	}

	return nil
}

var regexMetaEscaper = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`, `(`, `\(`, `)`, `\)`,
	`[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `^`, `\^`, `$`, `\$`, `|`, `\|`,
)

// patternToRegex escapes all regex metacharacters in a pattern, then turns
// escaped `:name` placeholders into capturing groups, fully anchored.
func patternToRegex(pattern string) *regexp.Regexp {
	escaped := regexMetaEscaper.Replace(pattern)

	var out strings.Builder
	out.WriteByte('^')
	runes := []rune(escaped)
	for i := 0; i < len(runes); i++ {
		if runes[i] == ':' {
			j := i + 1
			for j < len(runes) && isParamNameRune(runes[j]) {
				j++
			}
			if j > i+1 {
				out.WriteString(`([^/]+)`)
				i = j - 1
				continue
			}
		}
		out.WriteRune(runes[i])
	}
	out.WriteByte('$')

	re, err := regexp.Compile(out.String())
	if err != nil {
		// A pattern that fails to compile can never match; fall back to a
		// regex that matches nothing rather than panicking at request time.
		return regexp.MustCompile(`$.^`)
	}
	return re
}

func isParamNameRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Dedup keeps the first fixture per (method, pattern), per spec §4.4.
func Dedup(fixtures []*Fixture) []*Fixture {
	seen := make(map[string]bool, len(fixtures))
	out := make([]*Fixture, 0, len(fixtures))
	for _, f := range fixtures {
		key := f.Request.Method + " " + f.Request.Pattern
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// SortByPriority sorts fixtures by descending priority, stable on capture
// (slice) order, per spec §4.4.
func SortByPriority(fixtures []*Fixture) {
	sort.SliceStable(fixtures, func(i, j int) bool {
		return fixtures[i].Priority > fixtures[j].Priority
	})
}
