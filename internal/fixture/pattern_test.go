package fixture

import "testing"

func TestExtractPatternUserPosts(t *testing.T) {
	res := ExtractPattern("/api/users/4f8e2a3b-1c5d-4e6f-8a9b-0c1d2e3f4a5b/posts/42")
	if res.Pattern != "/api/users/:userId/posts/:postId" {
		t.Fatalf("pattern = %q", res.Pattern)
	}
	if len(res.PathParams) != 2 || res.PathParams[0] != "userId" || res.PathParams[1] != "postId" {
		t.Fatalf("params = %v", res.PathParams)
	}
}

func TestExtractPatternWidget(t *testing.T) {
	res := ExtractPattern("/api/widgets/abcdef")
	if res.Pattern != "/api/widgets/:widgetId" {
		t.Fatalf("pattern = %q", res.Pattern)
	}
}

func TestExtractPatternDeterministic(t *testing.T) {
	a := ExtractPattern("/api/orders/123")
	b := ExtractPattern("/api/orders/123")
	if a.Pattern != b.Pattern {
		t.Fatalf("pattern extraction is not a pure function of path: %q vs %q", a.Pattern, b.Pattern)
	}
}

func TestExtractPatternPriorityOrdering(t *testing.T) {
	userPosts := ExtractPattern("/api/users/42/posts/7")
	userOnly := ExtractPattern("/api/users/42")
	if userPosts.Priority <= userOnly.Priority {
		t.Fatalf("expected deeper path to have strictly greater priority: %d vs %d", userPosts.Priority, userOnly.Priority)
	}
}

func TestExtractPatternUnknownSegmentFallsBackToParamN(t *testing.T) {
	res := ExtractPattern("/download/123456")
	if res.Pattern != "/download/:param0" {
		t.Fatalf("pattern = %q", res.Pattern)
	}
}

func TestExtractPatternRoot(t *testing.T) {
	res := ExtractPattern("/")
	if res.Pattern != "/" {
		t.Fatalf("pattern = %q", res.Pattern)
	}
}

func TestExtractPatternISODate(t *testing.T) {
	res := ExtractPattern("/reports/2024-01-15")
	if res.Pattern != "/reports/:param0" {
		t.Fatalf("pattern = %q", res.Pattern)
	}
}
