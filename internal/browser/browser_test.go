package browser

import "testing"

func TestResolveHrefSkipsNonNavigableSchemes(t *testing.T) {
	cases := []string{
		"javascript:void(0)",
		"mailto:a@b.com",
		"tel:+123456",
		"data:text/plain;base64,aGVsbG8=",
		"#section",
		"",
		"   ",
	}
	for _, href := range cases {
		if _, ok := resolveHref("https://example.test/page", href); ok {
			t.Fatalf("expected %q to be rejected", href)
		}
	}
}

func TestResolveHrefResolvesRelativeAndNormalizes(t *testing.T) {
	got, ok := resolveHref("https://Example.test/dir/page", "../other?b=2#frag")
	if !ok {
		t.Fatal("expected relative href to resolve")
	}
	want := "https://example.test/other?b=2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveHrefAbsoluteLowercasesSchemeAndHost(t *testing.T) {
	got, ok := resolveHref("https://example.test/", "HTTPS://Other.Test/Path")
	if !ok {
		t.Fatal("expected absolute href to resolve")
	}
	if got != "https://other.test/Path" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveURLRejectsUnparsableBase(t *testing.T) {
	if _, ok := resolveURL("://bad", "/x"); ok {
		t.Fatal("expected unparsable base URL to be rejected")
	}
}
