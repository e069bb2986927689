package crawl

import (
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/webreplica/internal/browser"
)

func TestBackoffDurationDoublesUntilCap(t *testing.T) {
	cases := []struct {
		retries int
		want    time.Duration
	}{
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
	}
	for _, c := range cases {
		got := backoffDuration(1000, 30000, c.retries)
		if got != c.want {
			t.Fatalf("backoffDuration(1000, 30000, %d) = %v, want %v", c.retries, got, c.want)
		}
	}
}

func TestBackoffDurationNeverExceedsCap(t *testing.T) {
	got := backoffDuration(1000, 5000, 10)
	if got != 5000*time.Millisecond {
		t.Fatalf("backoffDuration must saturate at cap, got %v", got)
	}
}

func TestSameOriginComparesSchemeAndHost(t *testing.T) {
	if !sameOrigin("https://x.test/a", "https://x.test/b") {
		t.Fatal("same scheme+host must be same-origin")
	}
	if sameOrigin("https://x.test/a", "http://x.test/b") {
		t.Fatal("differing scheme must not be same-origin")
	}
	if sameOrigin("https://x.test/a", "https://other.test/b") {
		t.Fatal("differing host must not be same-origin")
	}
}

func TestClaimFirstPageOnlyOneWinnerUnderConcurrency(t *testing.T) {
	shared := &SharedState{}
	const n = 50
	var wg sync.WaitGroup
	claims := make([]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claims[i] = shared.ClaimFirstPage("https://x.test/")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, c := range claims {
		if c {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one ClaimFirstPage winner, got %d", wins)
	}
	if shared.FinalURL() != "https://x.test/" {
		t.Fatalf("FinalURL = %q", shared.FinalURL())
	}
}

func TestClaimFirstPageRejectsAfterFirstClaim(t *testing.T) {
	shared := &SharedState{}
	if !shared.ClaimFirstPage("https://x.test/") {
		t.Fatal("first claim must succeed")
	}
	if shared.ClaimFirstPage("https://x.test/other") {
		t.Fatal("second claim must be rejected")
	}
	if shared.FinalURL() != "https://x.test/" {
		t.Fatalf("FinalURL must retain the first claimant's url, got %q", shared.FinalURL())
	}
}

func TestAddRedirectAccumulatesAcrossWorkersAndReturnsACopy(t *testing.T) {
	shared := &SharedState{}
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			shared.AddRedirect(browser.RedirectInfo{From: "https://x.test/old", To: "https://x.test/new", Status: 301})
		}(i)
	}
	wg.Wait()

	redirects := shared.Redirects()
	if len(redirects) != n {
		t.Fatalf("len(redirects) = %d, want %d", len(redirects), n)
	}

	redirects[0].To = "mutated"
	if shared.Redirects()[0].To == "mutated" {
		t.Fatal("Redirects() must return a copy, not the internal slice")
	}
}
