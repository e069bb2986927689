package crawlqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsDuplicatesAndVisited(t *testing.T) {
	q := New(5, 100)

	assert.True(t, q.Add("https://x.test/a", 0), "first add should succeed")
	assert.False(t, q.Add("https://x.test/a", 0), "duplicate pending add should be rejected")

	item := q.Take()
	require.NotNil(t, item)
	assert.False(t, q.Add(item.URL, 0), "in-progress url should be rejected")

	q.Complete(item.URL)
	assert.False(t, q.Add(item.URL, 0), "visited url should never be re-enqueued")
}

func TestAddRejectsBeyondMaxDepth(t *testing.T) {
	q := New(0, 100)
	assert.True(t, q.Add("https://x.test/seed", 0), "seed at depth 0 should be accepted")
	assert.False(t, q.Add("https://x.test/child", 1), "depth 1 should be rejected when maxDepth is 0")
	assert.True(t, q.Stats().MaxDepthReached, "expected MaxDepthReached to be set")
}

func TestTakeReturnsNilWhenMaxPagesHit(t *testing.T) {
	q := New(5, 0)
	assert.Nil(t, q.Take(), "expected no item when queue is empty")
	assert.True(t, q.Stats().MaxPagesReached, "maxPages=0 should report MaxPagesReached immediately")
}

func TestRetryExhaustionMarksVisitedFailedAndSkipped(t *testing.T) {
	q := New(5, 100)
	q.Add("https://x.test/flaky", 0)
	item := q.Take()

	assert.True(t, q.Retry(item, 2), "first retry should be accepted")
	item = q.Take()
	assert.True(t, q.Retry(item, 2), "second retry should be accepted")
	item = q.Take()
	assert.False(t, q.Retry(item, 2), "third retry should exhaust maxRetries")

	stats := q.Stats()
	assert.Equal(t, 1, stats.Skipped)
	assert.False(t, q.Add("https://x.test/flaky", 0), "exhausted-retry url should be visited(failed), never re-enqueued")
}

func TestIsDoneEmptyQueue(t *testing.T) {
	q := New(5, 100)
	assert.True(t, q.IsDone(), "empty queue with no in-progress items should be done")
	q.Add("https://x.test/a", 0)
	assert.False(t, q.IsDone(), "queue with pending items should not be done")
}

func TestNormalizeSortsQueryStripsFragmentAndDefaultPort(t *testing.T) {
	a := Normalize("https://X.test:443/path?b=2&a=1#frag")
	b := Normalize("https://x.test/path?a=1&b=2")
	assert.Equal(t, b, a)
}

func TestSnapshotRestoreReseedsVisitedAndPending(t *testing.T) {
	q := New(5, 100)
	q.Add("https://x.test/seed", 0)
	seed := q.Take()
	q.Add("https://x.test/child", 1)
	q.Complete(seed.URL)

	visited, pending := q.Snapshot()
	assert.Len(t, visited, 1)
	assert.Len(t, pending, 1)

	r := New(5, 100)
	r.Restore(visited, pending)

	assert.False(t, r.Add("https://x.test/seed", 0), "restored visited url should not be re-addable")
	assert.Equal(t, 1, r.Stats().Completed)
	assert.Equal(t, 1, r.Len())
}

func TestCrawlWithRetriesScenario(t *testing.T) {
	// spec.md §8 scenario 3: maxPages=3, maxRetries=2.
	q := New(5, 3)
	q.Add("https://x.test/seed", 0)
	seed := q.Take()
	q.Add("https://x.test/l1", 1)
	q.Add("https://x.test/l2", 1)
	q.Complete(seed.URL)

	l1 := q.Take()
	l2 := q.Take()
	q.Complete(l2.URL)

	for i := 0; i < 2; i++ {
		assert.True(t, q.Retry(l1, 2), "retry %d should be accepted", i)
		l1 = q.Take()
	}
	assert.False(t, q.Retry(l1, 2), "third failure should exhaust retries")

	stats := q.Stats()
	assert.Equal(t, 2, stats.Completed, "want seed + l2")
	assert.Equal(t, 1, stats.Skipped)
	assert.False(t, stats.MaxPagesReached, "only 2 completed of 3 allowed")
}
