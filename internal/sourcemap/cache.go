package sourcemap

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// cacheEntry is one cached map fetch, keyed by the resolved map URL so a
// resumed run never refetches a bundle it already processed. Grounded on
// the teacher's badgerhold storage pattern (internal/storage/badger), one
// struct per entity with badgerhold handling the on-disk encoding.
type cacheEntry struct {
	MapURL    string `badgerholdKey:"MapURL"`
	RawMap    string
	FetchedAt time.Time
}

// Cache is a badgerhold-backed dedup cache for source-map fetches across a
// resumed capture run (spec §4.7's "dedup bundle refetch" concern; no
// equivalent exists in the spec's own pipeline description, introduced
// here since the teacher pack carries badger/badgerhold specifically for
// this kind of content-addressed cache).
type Cache struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// OpenCache opens (or creates) a badgerhold store rooted at dir.
func OpenCache(dir string, logger arbor.ILogger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sourcemap cache dir: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening sourcemap cache: %w", err)
	}

	return &Cache{store: store, logger: logger}, nil
}

// Get returns the cached raw map JSON for mapURL, if present.
func (c *Cache) Get(mapURL string) (string, bool) {
	var entry cacheEntry
	if err := c.store.Get(mapURL, &entry); err != nil {
		return "", false
	}
	return entry.RawMap, true
}

// Put stores raw map JSON for mapURL, overwriting any existing entry.
func (c *Cache) Put(mapURL, raw string) error {
	entry := cacheEntry{MapURL: mapURL, RawMap: raw, FetchedAt: time.Now()}
	if err := c.store.Upsert(mapURL, &entry); err != nil {
		return fmt.Errorf("caching sourcemap %s: %w", mapURL, err)
	}
	return nil
}

// Close releases the underlying badger handles.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// cachePath is the conventional cache directory under a capture's siteRoot.
func cachePath(siteRoot string) string {
	return filepath.Join(siteRoot, "_server", "sourcemap-cache")
}

// OpenSiteCache opens the cache at the conventional path under siteRoot.
func OpenSiteCache(siteRoot string, logger arbor.ILogger) (*Cache, error) {
	return OpenCache(cachePath(siteRoot), logger)
}
