// Package retain is the dated holding area deleted and compressed-away
// files move into instead of being unlinked. Each entry lives in its
// own directory under <root>/YYYY/MM/DD/<id>/ next to a meta.json
// sidecar, so a rollback can put the exact bytes back and an expired
// entry can be purged without consulting any other state.
package retain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/fsatomic"
)

// metaFile is the sidecar name inside each entry directory.
const metaFile = "meta.json"

// ErrNotRetained indicates a path that does not live under the
// retention root.
var ErrNotRetained = errors.New("path is not inside the retention area")

// Entry describes one retained file or directory.
type Entry struct {
	// ID is the entry's unique identifier, also its directory name.
	ID string `json:"id"`

	// OriginalPath is where the payload lived before retention.
	OriginalPath string `json:"original_path"`

	// RetainedPath is where the payload lives now.
	RetainedPath string `json:"retained_path"`

	// ExecutionID is the execution that retained the payload.
	ExecutionID string `json:"execution_id"`

	// Seq is the sequence index of the retaining operation.
	Seq int `json:"seq"`

	// Size is the payload size at retention time.
	Size int64 `json:"size"`

	// RetainedAt is when the payload was moved in.
	RetainedAt time.Time `json:"retained_at"`
}

// PurgeStats summarizes one purge pass.
type PurgeStats struct {
	// Removed is the number of entries deleted.
	Removed int `json:"removed"`

	// BytesFreed is the total payload size of removed entries.
	BytesFreed int64 `json:"bytes_freed"`
}

// Store is a retention area rooted at one directory.
type Store struct {
	root string
}

// Open opens the retention area at root, creating it if needed.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create retention root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the retention root directory.
func (s *Store) Root() string { return s.root }

// Put moves src into a fresh dated entry directory and writes the
// sidecar. If the sidecar cannot be written the payload is moved back,
// so a failed Put never strands the file.
func (s *Store) Put(src, executionID string, seq int) (*Entry, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return nil, fmt.Errorf("retain %s: %w", src, err)
	}

	id := xid.New().String()
	name := filepath.Base(src)
	if name == metaFile {
		// Keep a payload literally named meta.json clear of the sidecar.
		name = "_" + name
	}

	now := time.Now().UTC()
	dir := filepath.Join(s.root, now.Format("2006/01/02"), id)
	entry := &Entry{
		ID:           id,
		OriginalPath: src,
		RetainedPath: filepath.Join(dir, name),
		ExecutionID:  executionID,
		Seq:          seq,
		Size:         info.Size(),
		RetainedAt:   now,
	}

	if err := fsatomic.Move(src, entry.RetainedPath); err != nil {
		return nil, fmt.Errorf("retain %s: %w", src, err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, s.undoPut(entry, err)
	}
	if err := fsatomic.WriteFile(filepath.Join(dir, metaFile), data, 0o644); err != nil {
		return nil, s.undoPut(entry, err)
	}

	return entry, nil
}

// undoPut moves a payload back out after a failed sidecar write.
func (s *Store) undoPut(entry *Entry, cause error) error {
	if mvErr := fsatomic.Move(entry.RetainedPath, entry.OriginalPath); mvErr != nil {
		return fmt.Errorf("write sidecar: %v (moving payload back also failed: %w)", cause, mvErr)
	}
	os.Remove(filepath.Dir(entry.RetainedPath))
	return fmt.Errorf("write sidecar: %w", cause)
}

// Restore moves a retained payload back to its destination and removes
// the emptied entry directory. from must be inside the retention area;
// the destination must not already exist.
func (s *Store) Restore(from, to string) error {
	if !s.contains(from) {
		return fmt.Errorf("%w: %s", ErrNotRetained, from)
	}

	if err := fsatomic.Move(from, to); err != nil {
		return fmt.Errorf("restore %s: %w", to, err)
	}

	dir := filepath.Dir(from)
	os.Remove(filepath.Join(dir, metaFile))
	os.Remove(dir)
	return nil
}

// List returns every parsable entry, newest first. Sidecars that are
// missing or tampered are skipped rather than failing the listing.
func (s *Store) List() ([]*Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*", "*", "*", metaFile))
	if err != nil {
		return nil, fmt.Errorf("list retention area: %w", err)
	}

	entries := make([]*Entry, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].RetainedAt.Equal(entries[j].RetainedAt) {
			return entries[i].RetainedAt.After(entries[j].RetainedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries, nil
}

// Purge removes entries retained longer than olderThan ago and prunes
// emptied date directories. Failures on individual entries do not stop
// the pass; they are joined into the returned error.
func (s *Store) Purge(olderThan time.Duration) (PurgeStats, error) {
	entries, err := s.List()
	if err != nil {
		return PurgeStats{}, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var stats PurgeStats
	var errs []error
	for _, e := range entries {
		if !e.RetainedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Dir(e.RetainedPath)); err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", e.ID, err))
			continue
		}
		stats.Removed++
		stats.BytesFreed += e.Size
	}

	s.pruneEmptyDirs()
	return stats, errors.Join(errs...)
}

// pruneEmptyDirs removes emptied id and date directories, deepest
// level first. Non-empty directories stay, so an orphaned payload
// without a sidecar is never touched.
func (s *Store) pruneEmptyDirs() {
	for _, pattern := range []string{"*/*/*/*", "*/*/*", "*/*", "*"} {
		dirs, _ := filepath.Glob(filepath.Join(s.root, pattern))
		for _, d := range dirs {
			info, err := os.Stat(d)
			if err != nil || !info.IsDir() {
				continue
			}
			os.Remove(d)
		}
	}
}

// contains reports whether path lives under the retention root.
func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
