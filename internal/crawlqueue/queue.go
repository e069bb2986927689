// Package crawlqueue implements the Crawl Queue (spec §3, §4.3): a bounded,
// thread-safe work queue with three disjoint URL sets (pending, in-progress,
// visited), retry bookkeeping, and depth/page caps.
//
// Spec §5 models queue operations as non-suspending and single-threaded
// cooperative; this implementation instead protects the three sets with a
// single mutex so real goroutines can call Add/Take/Complete/Retry
// concurrently while preserving the same invariants, matching the teacher's
// URLQueue (internal/services/crawler/queue.go).
package crawlqueue

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Item is a single crawl-queue entry (spec §3 QueueItem).
type Item struct {
	URL     string
	Depth   int
	Retries int
	addedAt time.Time
}

// Stats mirrors the counters and flags spec §3 requires the queue to track.
type Stats struct {
	Completed        int
	Skipped          int
	LinksDiscovered  int
	MaxDepthReached  bool
	MaxPagesReached  bool
}

// Queue is the Crawl Queue. Zero value is not usable; use New.
type Queue struct {
	mu sync.Mutex

	maxDepth int
	maxPages int

	pending    []*Item // FIFO
	pendingSet map[string]bool
	inProgress map[string]*Item
	visited    map[string]bool

	stats Stats
}

// New creates a Crawl Queue bounded by maxDepth and maxPages. maxPages is an
// inclusive cap on completed pages: maxPages == 0 means the crawl finishes
// immediately with zero pages visited (spec §8's boundary case), matching
// Take/IsDone's unconditional completed >= maxPages check below.
func New(maxDepth, maxPages int) *Queue {
	return &Queue{
		maxDepth:   maxDepth,
		maxPages:   maxPages,
		pendingSet: make(map[string]bool),
		inProgress: make(map[string]*Item),
		visited:    make(map[string]bool),
	}
}

// Add normalizes url and enqueues it at depth, rejecting duplicates and
// depth-capped URLs per spec §4.3.
func (q *Queue) Add(rawURL string, depth int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	norm := Normalize(rawURL)

	if q.visited[norm] {
		return false
	}
	if _, ok := q.inProgress[norm]; ok {
		return false
	}
	if q.pendingSet[norm] {
		return false
	}

	if depth > q.maxDepth {
		q.stats.MaxDepthReached = true
		return false
	}

	q.stats.LinksDiscovered++
	q.pendingSet[norm] = true
	q.pending = append(q.pending, &Item{URL: rawURL, Depth: depth, Retries: 0, addedAt: time.Now()})
	return true
}

// Take pops the oldest pending item into in-progress, or returns nil when
// the queue is exhausted or the page cap has been hit (spec §4.3).
func (q *Queue) Take() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stats.Completed >= q.maxPages {
		q.stats.MaxPagesReached = true
		return nil
	}
	if len(q.pending) == 0 {
		return nil
	}

	item := q.pending[0]
	q.pending = q.pending[1:]
	norm := Normalize(item.URL)
	delete(q.pendingSet, norm)
	q.inProgress[norm] = item
	return item
}

// Complete marks url visited (success) and increments the completed counter.
func (q *Queue) Complete(rawURL string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	norm := Normalize(rawURL)
	delete(q.inProgress, norm)
	q.visited[norm] = true
	q.stats.Completed++
}

// Retry either re-enqueues item with Retries+1 (returns true) or, once
// maxRetries is exhausted, marks it visited-failed and counts it skipped
// (returns false), per spec §4.3.
func (q *Queue) Retry(item *Item, maxRetries int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	norm := Normalize(item.URL)
	delete(q.inProgress, norm)

	if item.Retries >= maxRetries {
		q.visited[norm] = true
		q.stats.Skipped++
		return false
	}

	item.Retries++
	item.addedAt = time.Now()
	q.pendingSet[norm] = true
	q.pending = append(q.pending, item)
	return true
}

// IsDone reports whether the crawl should stop: the page cap was hit, or
// both the pending queue and the in-progress set are empty.
func (q *Queue) IsDone() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stats.Completed >= q.maxPages {
		return true
	}
	return len(q.pending) == 0 && len(q.inProgress) == 0
}

// Stats returns a snapshot of the queue's counters and flags.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Len returns the current pending-queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// URLState is one queue entry as persisted by the State Manager (spec
// §4.9 resume): just enough to re-seed a Queue without replaying network
// activity.
type URLState struct {
	URL   string
	Depth int
}

// Snapshot captures the queue's visited and pending URLs for WAL
// compaction, so a resumed run can restore queue membership without
// re-fetching already-completed pages.
func (q *Queue) Snapshot() (visited []URLState, pending []URLState) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for norm := range q.visited {
		visited = append(visited, URLState{URL: norm, Depth: 0})
	}
	for _, item := range q.pending {
		pending = append(pending, URLState{URL: item.URL, Depth: item.Depth})
	}
	return visited, pending
}

// Restore re-seeds the queue from a prior Snapshot: visited URLs are
// replayed through Add+Take+Complete so they count toward Stats without
// being re-crawled; pending URLs are simply re-added.
func (q *Queue) Restore(visited, pending []URLState) {
	for _, v := range visited {
		if q.Add(v.URL, v.Depth) {
			if item := q.Take(); item != nil {
				q.Complete(item.URL)
			}
		}
	}
	for _, p := range pending {
		q.Add(p.URL, p.Depth)
	}
}

// Normalize canonicalizes a URL for set membership: lowercases scheme+host,
// strips the fragment and default ports, and sorts query parameters, per
// spec §3 ("scheme+host+path, query sorted, fragment stripped, default
// ports removed"). Grounded on the teacher's normalizeURL
// (internal/services/crawler/queue.go).
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		if idx := strings.LastIndex(u.Host, ":"); idx != -1 {
			u.Host = u.Host[:idx]
		}
	}

	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}

	return u.String()
}
