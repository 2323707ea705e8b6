// Package fpcache persists content fingerprints between scans so
// unchanged files are not re-hashed. An entry is served only while the
// file's size and mtime match what was recorded at hash time; anything
// else is a miss and the caller re-hashes.
package fpcache

import (
	"time"
)

// Cache provides high-level fingerprint caching over a Store.
type Cache struct {
	store *Store
}

// Stats summarizes cache contents for reporting.
type Stats struct {
	Entries    int
	SizeOnDisk int64
}

// Open opens or creates a cache at the given path. Entries expire ttl
// after they were last written when ttl > 0.
func Open(path string, ttl time.Duration) (*Cache, error) {
	store, err := OpenStore(path, ttl)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Lookup returns the cached fingerprint for path if the file's current
// size and mtime still match the recorded ones.
func (c *Cache) Lookup(path string, size int64, mtime time.Time) (string, bool) {
	entry, err := c.store.Get(path)
	if err != nil {
		return "", false
	}
	if entry.Size != size || entry.Mtime != mtime.UnixNano() {
		return "", false
	}
	return entry.Fingerprint, true
}

// Remember stores a fingerprint together with the stat fields that
// validate it.
func (c *Cache) Remember(path string, size int64, mtime time.Time, fingerprint string) error {
	return c.store.Put(path, &Entry{
		Size:        size,
		Mtime:       mtime.UnixNano(),
		Fingerprint: fingerprint,
	})
}

// RememberBatch stores many fingerprints in one write batch.
func (c *Cache) RememberBatch(entries map[string]*Entry) error {
	return c.store.PutBatch(entries)
}

// Forget removes the entry for path.
func (c *Cache) Forget(path string) error {
	return c.store.Delete(path)
}

// Clear removes all entries.
func (c *Cache) Clear() error {
	return c.store.Clear()
}

// Stats reports entry count and on-disk size.
func (c *Cache) Stats() (Stats, error) {
	n, err := c.store.Count()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Entries: n, SizeOnDisk: c.store.SizeOnDisk()}, nil
}
