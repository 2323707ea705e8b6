package fpcache

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a cache entry doesn't exist.
var ErrNotFound = errors.New("fingerprint cache entry not found")

// Store wraps Badger for fingerprint cache operations. Keys are
// canonical absolute paths.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenStore opens or creates a cache store at the given path. Entries
// written with ttl > 0 expire on their own; Badger reclaims them during
// compaction.
func OpenStore(path string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a cached entry by canonical path.
func (s *Store) Get(path string) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(entry.Decode)
	})

	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores a cached entry.
func (s *Store) Put(path string, entry *Entry) error {
	value, err := entry.Encode()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.newBadgerEntry([]byte(path), value))
	})
}

// PutBatch stores multiple entries efficiently in a single write batch.
func (s *Store) PutBatch(entries map[string]*Entry) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for path, entry := range entries {
		value, err := entry.Encode()
		if err != nil {
			return err
		}
		if err := wb.SetEntry(s.newBadgerEntry([]byte(path), value)); err != nil {
			return err
		}
	}

	return wb.Flush()
}

// Delete removes a cached entry.
func (s *Store) Delete(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(path))
	})
}

// Clear removes all cached entries.
func (s *Store) Clear() error {
	return s.db.DropAll()
}

// Count returns the number of live entries.
func (s *Store) Count() (int, error) {
	var n int

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})

	return n, err
}

// SizeOnDisk returns the total bytes Badger holds for the cache.
func (s *Store) SizeOnDisk() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

func (s *Store) newBadgerEntry(key, value []byte) *badger.Entry {
	e := badger.NewEntry(key, value)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}
