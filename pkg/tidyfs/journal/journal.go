// Package journal is the durable record of everything the engine has
// done: execution records, the per-operation rollback entries that
// undo them, and the tag sets retag operations maintain. Entries are
// written as operations commit and never mutated afterwards, so an
// interrupted run leaves a journal that still rolls back cleanly.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// Key prefixes for the journal's keyspaces.
const (
	prefixExecution = "x:" // execution records, x:<execution id>
	prefixRollback  = "r:" // rollback entries, r:<execution id>:<seq>
	prefixTags      = "t:" // path tag sets, t:<path>
	keySchema       = "m:schema"
)

// schemaVersion is bumped when the key or value layout changes.
const schemaVersion uint32 = 1

// ErrNotFound indicates the requested record is not in the journal.
var ErrNotFound = errors.New("not found in journal")

// ErrEntryExists indicates a rollback entry was recorded twice for the
// same operation.
var ErrEntryExists = errors.New("rollback entry already recorded")

// ErrSchemaTooNew indicates the journal was written by a newer build.
var ErrSchemaTooNew = errors.New("journal schema is newer than this build supports")

// Journal is the Badger-backed execution journal.
type Journal struct {
	db *badger.DB
}

// Open opens or creates the journal at the given directory. Badger's
// directory lock makes the journal single-process; a second tidyfs
// process mutating the same tree fails here before touching anything.
func Open(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	// Rollback entries must survive a run interrupted mid-execution.
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ensureSchema stamps a fresh journal and refuses one stamped by a
// newer build.
func (j *Journal) ensureSchema() error {
	return j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySchema))
		if errors.Is(err, badger.ErrKeyNotFound) {
			val := make([]byte, 4)
			binary.BigEndian.PutUint32(val, schemaVersion)
			return txn.Set([]byte(keySchema), val)
		}
		if err != nil {
			return fmt.Errorf("read schema marker: %w", err)
		}
		return item.Value(func(val []byte) error {
			if len(val) != 4 {
				return fmt.Errorf("corrupt schema marker (%d bytes)", len(val))
			}
			if v := binary.BigEndian.Uint32(val); v > schemaVersion {
				return fmt.Errorf("%w: journal v%d, build supports v%d", ErrSchemaTooNew, v, schemaVersion)
			}
			return nil
		})
	})
}

// PutExecution inserts or updates an execution record. The engine
// calls this at creation, at batch checkpoints, and at the terminal
// transition.
func (j *Journal) PutExecution(rec *types.ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", rec.ID, err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(executionKey(rec.ID), data)
	})
}

// GetExecution retrieves an execution record by ID.
func (j *Journal) GetExecution(id string) (*types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(executionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return &rec, nil
}

// ListExecutions returns every execution record, most recent first.
func (j *Journal) ListExecutions() ([]*types.ExecutionRecord, error) {
	var out []*types.ExecutionRecord
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixExecution)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec types.ExecutionRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID > out[k].ID
	})
	return out, nil
}

// AppendRollback records the inverse of one committed operation.
// Entries are write-once; recording the same sequence twice fails.
func (j *Journal) AppendRollback(entry *types.RollbackEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal rollback entry: %w", err)
	}

	key := rollbackKey(entry.ExecutionID, entry.Seq)
	return j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: execution %s seq %d", ErrEntryExists, entry.ExecutionID, entry.Seq)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// RollbackEntries returns an execution's rollback entries in the order
// the operations committed. The big-endian sequence suffix makes key
// order the commit order, so no sort is needed.
func (j *Journal) RollbackEntries(executionID string) ([]*types.RollbackEntry, error) {
	var out []*types.RollbackEntry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRollback + executionID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry types.RollbackEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				out = append(out, &entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rollback entries for %s: %w", executionID, err)
	}
	return out, nil
}

// Tags returns the tag set recorded for a path, nil when none.
func (j *Journal) Tags(path string) ([]string, error) {
	var tags []string
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tagsKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tags)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tags for %s: %w", path, err)
	}
	return tags, nil
}

// SetTags replaces the tag set for a path. An empty set removes the key.
func (j *Journal) SetTags(path string, tags []string) error {
	if len(tags) == 0 {
		return j.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(tagsKey(path))
		})
	}

	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags for %s: %w", path, err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tagsKey(path), data)
	})
}

func executionKey(id string) []byte {
	return []byte(prefixExecution + id)
}

func rollbackKey(executionID string, seq int) []byte {
	key := make([]byte, 0, len(prefixRollback)+len(executionID)+5)
	key = append(key, prefixRollback...)
	key = append(key, executionID...)
	key = append(key, ':')
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(seq))
	return append(key, buf[:]...)
}

func tagsKey(path string) []byte {
	return []byte(prefixTags + path)
}
