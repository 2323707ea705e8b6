// Package fsatomic provides the atomic filesystem primitives the engine
// and retention store are built on: rename-based moves with a
// cross-device copy fallback, and durable whole-file writes.
package fsatomic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
)

// ErrDestinationExists indicates the move destination is already occupied.
var ErrDestinationExists = errors.New("destination already exists")

// ErrSourceNotFound indicates the move source does not exist.
var ErrSourceNotFound = errors.New("source not found")

// MoveError describes a failed move with the step that failed.
type MoveError struct {
	Op  string // step being performed
	Src string
	Dst string
	Err error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s: %q -> %q: %v", e.Op, e.Src, e.Dst, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// Move moves src to dst, creating dst's parent directory as needed.
// It renames when possible and falls back to copy-then-delete for
// cross-device moves. The destination must not exist.
func Move(src, dst string) error {
	if _, err := os.Lstat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return &MoveError{Op: "stat_source", Src: src, Dst: dst, Err: err}
	}

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	} else if !os.IsNotExist(err) {
		return &MoveError{Op: "stat_destination", Src: src, Dst: dst, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &MoveError{Op: "create_parent", Src: src, Dst: dst, Err: err}
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	return copyAndDelete(src, dst)
}

// copyAndDelete copies src to dst preserving metadata, then removes src.
func copyAndDelete(src, dst string) error {
	opts := cp.Options{
		OnSymlink: func(string) cp.SymlinkAction {
			return cp.Deep
		},
		PreserveTimes: true,
		PreserveOwner: true,
		Sync:          true,
	}

	if err := cp.Copy(src, dst, opts); err != nil {
		return &MoveError{Op: "copy", Src: src, Dst: dst, Err: err}
	}

	if err := os.RemoveAll(src); err != nil {
		// Roll the copy back so exactly one of the two paths survives.
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			return &MoveError{
				Op: "cleanup", Src: src, Dst: dst,
				Err: fmt.Errorf("failed to remove both source and destination: %v, %v", err, rmErr),
			}
		}
		return &MoveError{Op: "remove_source", Src: src, Dst: dst, Err: err}
	}

	return nil
}

// IsDestinationExists reports whether err means the destination existed.
func IsDestinationExists(err error) bool {
	return errors.Is(err, ErrDestinationExists)
}

// IsSourceNotFound reports whether err means the source was missing.
func IsSourceNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound)
}
