package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/webreplica/internal/config"
	"github.com/ternarybob/webreplica/internal/fixture"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestFixturesByMethodCountsPerMethod(t *testing.T) {
	fixtures := []*fixture.Fixture{
		{Request: fixture.Request{Method: "GET"}},
		{Request: fixture.Request{Method: "GET"}},
		{Request: fixture.Request{Method: "POST"}},
	}
	counts := fixturesByMethod(fixtures)
	assert.Equal(t, 2, counts["GET"])
	assert.Equal(t, 1, counts["POST"])
}

func TestToSetBuildsMembershipMapOrNilWhenEmpty(t *testing.T) {
	assert.Nil(t, toSet(nil), "expected nil set for empty input")

	set := toSet([]string{"lodash", "react"})
	assert.True(t, set["lodash"])
	assert.True(t, set["react"])
	assert.False(t, set["vue"])
}

func TestCompilePatternsSkipsInvalidRegex(t *testing.T) {
	patterns := []string{`^/vendor/`, `(unclosed`}
	compiled := compilePatterns(patterns, testLogger())
	assert.Len(t, compiled, 1, "expected only the valid pattern to compile")
	assert.True(t, compiled[0].MatchString("/vendor/jquery.js"))
}

func TestBuildManifestReflectsFixturesAndConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Server.CORS = true
	fixtures := []*fixture.Fixture{{ID: "0001_GET_x"}}

	m := buildManifest("https://x.test/", "https://x.test/home", cfg, fixtures, 3)

	assert.Equal(t, "https://x.test/home", m.Name)
	assert.True(t, m.Routes.API, "expected Routes.API true when fixtures were captured")
	assert.Equal(t, 1, m.Fixtures.Count)
	assert.Equal(t, 3, m.Static.AssetCount)
	assert.True(t, m.Server.CORS, "expected Server.CORS to carry through from config")
	assert.Equal(t, "/home", m.Static.PathPrefix, "expected PathPrefix from finalURL's non-root path")
}

func TestPathPrefixOfReturnsEmptyForRootPaths(t *testing.T) {
	assert.Equal(t, "", pathPrefixOf("https://x.test/"))
	assert.Equal(t, "", pathPrefixOf("https://x.test"))
	assert.Equal(t, "", pathPrefixOf(""))
	assert.Equal(t, "/app/dashboard", pathPrefixOf("https://x.test/app/dashboard"))
}

func TestBuildManifestFallsBackToSourceURLWhenFinalURLEmpty(t *testing.T) {
	cfg := config.NewDefault()
	m := buildManifest("https://x.test/", "", cfg, nil, 0)
	assert.Equal(t, "https://x.test/", m.Name, "expected fallback to sourceURL")
	assert.False(t, m.Routes.API, "expected Routes.API false with no fixtures")
}
