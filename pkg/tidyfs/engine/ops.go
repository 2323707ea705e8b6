package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/fingerprint"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/fsatomic"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/retain"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// opEffect is what a successful apply leaves behind: the rollback
// entry to journal, if the operation has one, and the bytes freed.
type opEffect struct {
	entry      *types.RollbackEntry
	bytesFreed int64
}

func (e *Engine) applyOp(op *types.Operation, mut fileMutator) (opEffect, error) {
	switch op.Kind {
	case types.OpMove:
		return e.applyMove(op, mut)
	case types.OpDelete:
		return e.applyDelete(op, mut)
	case types.OpCreateDir:
		return e.applyCreateDir(op, mut)
	case types.OpCompress:
		return e.applyCompress(op, mut)
	case types.OpRetag:
		return e.applyRetag(op, mut)
	default:
		return opEffect{}, fmt.Errorf("%w: unknown kind %q", types.ErrMalformedOp, op.Kind)
	}
}

func (e *Engine) applyMove(op *types.Operation, mut fileMutator) (opEffect, error) {
	if _, err := mut.Stat(op.Source); err != nil {
		return opEffect{}, fmt.Errorf("%w: source %s: %v", ErrPrecondition, op.Source, err)
	}
	if _, err := mut.Stat(op.Destination); err == nil {
		return opEffect{}, fmt.Errorf("%w: destination %s already exists", ErrPrecondition, op.Destination)
	}
	if err := e.checkParent(mut, filepath.Dir(op.Destination)); err != nil {
		return opEffect{}, err
	}

	if err := e.guard(func() error { return mut.Move(op.Source, op.Destination) }); err != nil {
		return opEffect{}, err
	}

	return opEffect{entry: &types.RollbackEntry{
		Op:      *op,
		Inverse: &types.Operation{Kind: types.OpMove, Source: op.Destination, Destination: op.Source},
	}}, nil
}

func (e *Engine) applyDelete(op *types.Operation, mut fileMutator) (opEffect, error) {
	info, err := mut.Stat(op.Path)
	if err != nil {
		return opEffect{}, fmt.Errorf("%w: %s: %v", ErrPrecondition, op.Path, err)
	}

	if op.VerifySource != "" {
		if _, err := mut.Stat(op.VerifySource); err != nil {
			return opEffect{}, fmt.Errorf("%w: verification source %s: %v", ErrPrecondition, op.VerifySource, err)
		}
		ctx, cancel := e.ioContext()
		eq, err := fingerprint.Equal(ctx, op.Path, op.VerifySource)
		cancel()
		if err != nil {
			return opEffect{}, fmt.Errorf("verifying %s against %s: %w", op.Path, op.VerifySource, err)
		}
		if !eq {
			return opEffect{}, fmt.Errorf("%w: %s no longer matches %s", ErrVerifyMismatch, op.Path, op.VerifySource)
		}
	}

	size := payloadSize(op.Path, info)

	if e.retain != nil && size <= e.ceiling {
		var entry *retain.Entry
		err := e.guard(func() error {
			var rerr error
			entry, rerr = mut.Retain(op.Path, op.Seq)
			return rerr
		})
		if err != nil {
			return opEffect{}, fmt.Errorf("retaining %s: %w", op.Path, err)
		}
		return opEffect{
			entry: &types.RollbackEntry{
				Op:      *op,
				Inverse: &types.Operation{Kind: types.OpMove, Source: entry.RetainedPath, Destination: op.Path},
			},
			bytesFreed: size,
		}, nil
	}

	if err := e.guard(func() error { return mut.Remove(op.Path) }); err != nil {
		return opEffect{}, err
	}

	reason := "retention disabled"
	if e.retain != nil {
		reason = fmt.Sprintf("size %s exceeds retention ceiling %s",
			types.FormatSize(size), types.FormatSize(e.ceiling))
	}
	return opEffect{
		entry:      &types.RollbackEntry{Op: *op, Unrecoverable: true, Reason: reason},
		bytesFreed: size,
	}, nil
}

func (e *Engine) applyCreateDir(op *types.Operation, mut fileMutator) (opEffect, error) {
	if info, err := mut.Stat(op.Path); err == nil {
		if info.IsDir() {
			// Already present. Nothing to undo.
			return opEffect{}, nil
		}
		return opEffect{}, fmt.Errorf("%w: %s exists and is not a directory", ErrPrecondition, op.Path)
	}
	if err := e.checkParent(mut, filepath.Dir(op.Path)); err != nil {
		return opEffect{}, err
	}

	if err := e.guard(func() error { return mut.MkDir(op.Path) }); err != nil {
		return opEffect{}, err
	}

	return opEffect{entry: &types.RollbackEntry{
		Op:      *op,
		Inverse: &types.Operation{Kind: types.OpDelete, Path: op.Path},
	}}, nil
}

func (e *Engine) applyCompress(op *types.Operation, mut fileMutator) (opEffect, error) {
	var total int64
	for _, path := range op.Paths {
		info, err := mut.Stat(path)
		if err != nil {
			return opEffect{}, fmt.Errorf("%w: input %s: %v", ErrPrecondition, path, err)
		}
		if !info.Mode().IsRegular() {
			return opEffect{}, fmt.Errorf("%w: input %s is not a regular file", ErrPrecondition, path)
		}
		total += info.Size()
	}
	if _, err := mut.Stat(op.ArchivePath); err == nil {
		return opEffect{}, fmt.Errorf("%w: archive %s already exists", ErrPrecondition, op.ArchivePath)
	}
	if err := e.checkParent(mut, filepath.Dir(op.ArchivePath)); err != nil {
		return opEffect{}, err
	}

	ctx, cancel := e.ioContext()
	written, err := mut.Compress(ctx, op.Paths, op.ArchivePath)
	cancel()
	if err != nil {
		return opEffect{}, err
	}

	freed := total - written
	if freed < 0 {
		// An archive can outgrow already-compressed inputs.
		freed = 0
	}

	// The inputs leave their original paths only after the archive has
	// been written and read back whole.
	if e.retain == nil {
		for _, path := range op.Paths {
			if err := e.guard(func() error { return mut.Remove(path) }); err != nil {
				return opEffect{}, fmt.Errorf("removing archived input %s: %w", path, err)
			}
		}
		return opEffect{
			entry: &types.RollbackEntry{
				Op:            *op,
				Inverse:       &types.Operation{Kind: types.OpDelete, Path: op.ArchivePath},
				Unrecoverable: true,
				Reason:        "retention disabled; archived originals were not retained",
			},
			bytesFreed: freed,
		}, nil
	}

	restores := make([]types.Restore, 0, len(op.Paths))
	for _, path := range op.Paths {
		var entry *retain.Entry
		err := e.guard(func() error {
			var rerr error
			entry, rerr = mut.Retain(path, op.Seq)
			return rerr
		})
		if err != nil {
			// Put back what was already retained and drop the archive;
			// a compress either lands whole or leaves the tree as found.
			for _, r := range restores {
				if rerr := mut.Restore(r.From, r.To); rerr != nil {
					e.log.Error("restore after failed retain", "path", r.To, "error", rerr)
				}
			}
			if rerr := mut.Remove(op.ArchivePath); rerr != nil {
				e.log.Error("removing archive after failed retain", "archive", op.ArchivePath, "error", rerr)
			}
			return opEffect{}, fmt.Errorf("retaining %s: %w", path, err)
		}
		restores = append(restores, types.Restore{From: entry.RetainedPath, To: path})
	}

	return opEffect{
		entry: &types.RollbackEntry{
			Op:       *op,
			Inverse:  &types.Operation{Kind: types.OpDelete, Path: op.ArchivePath},
			Restores: restores,
		},
		bytesFreed: freed,
	}, nil
}

func (e *Engine) applyRetag(op *types.Operation, mut fileMutator) (opEffect, error) {
	if _, err := mut.Stat(op.Path); err != nil {
		return opEffect{}, fmt.Errorf("%w: %s: %v", ErrPrecondition, op.Path, err)
	}
	prev, err := mut.Tags(op.Path)
	if err != nil {
		return opEffect{}, fmt.Errorf("reading tags for %s: %w", op.Path, err)
	}
	if err := mut.SetTags(op.Path, op.Tags); err != nil {
		return opEffect{}, fmt.Errorf("tagging %s: %w", op.Path, err)
	}

	// A nil previous set makes the inverse clear the tags again.
	return opEffect{entry: &types.RollbackEntry{
		Op:      *op,
		Inverse: &types.Operation{Kind: types.OpRetag, Path: op.Path, Tags: prev},
	}}, nil
}

// checkParent verifies the directory an operation is about to create an
// entry in exists, is a directory, and is writable.
func (e *Engine) checkParent(mut fileMutator, parent string) error {
	info, err := mut.Stat(parent)
	if err != nil {
		return fmt.Errorf("%w: parent %s: %v", ErrPrecondition, parent, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: parent %s is not a directory", ErrPrecondition, parent)
	}
	if !mut.Writable(parent) {
		return fmt.Errorf("%w: parent %s is not writable", ErrPrecondition, parent)
	}
	return nil
}

// payloadSize is the regular-file byte count a delete reclaims. For a
// directory this walks the real tree; unreadable entries count as zero.
func payloadSize(path string, info fs.FileInfo) int64 {
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}

// applyInverse undoes one committed operation during rollback.
func (e *Engine) applyInverse(entry *types.RollbackEntry) error {
	if entry.Unrecoverable {
		return fmt.Errorf("%w: %s", ErrUnrecoverable, entry.Reason)
	}

	for _, r := range entry.Restores {
		if err := e.restoreRetained(r.From, r.To); err != nil {
			return fmt.Errorf("restoring %s: %w", r.To, err)
		}
	}
	if entry.Inverse == nil {
		return nil
	}

	inv := entry.Inverse
	switch inv.Kind {
	case types.OpMove:
		if entry.Op.Kind == types.OpDelete {
			// The source is a retained copy; putting it back also
			// clears its retention bookkeeping.
			return e.restoreRetained(inv.Source, inv.Destination)
		}
		return e.guard(func() error { return fsatomic.Move(inv.Source, inv.Destination) })
	case types.OpDelete:
		// Undoing a mkdir or dropping an archive. os.Remove refuses a
		// non-empty directory, so content placed there after the run
		// survives and the step fails instead.
		return e.guard(func() error { return os.Remove(inv.Path) })
	case types.OpRetag:
		return e.journal.SetTags(inv.Path, inv.Tags)
	default:
		return fmt.Errorf("%w: unknown inverse kind %q", types.ErrMalformedOp, inv.Kind)
	}
}

// restoreRetained puts a retained payload back, falling back to a plain
// move when no retention store is configured.
func (e *Engine) restoreRetained(from, to string) error {
	if e.retain != nil {
		return e.guard(func() error { return e.retain.Restore(from, to) })
	}
	return e.guard(func() error { return fsatomic.Move(from, to) })
}

// guard bounds one filesystem call with the configured I/O timeout.
// The call itself is never interrupted; a timeout abandons the wait
// and fails the operation.
func (e *Engine) guard(fn func() error) error {
	if e.ioTimeout <= 0 {
		return fn()
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(e.ioTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("after %s: %w", e.ioTimeout, os.ErrDeadlineExceeded)
	}
}

// ioContext is the deadline for one streaming operation. It is
// detached from the run's context: cancellation is honored between
// operations, never inside one.
func (e *Engine) ioContext() (context.Context, context.CancelFunc) {
	if e.ioTimeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), e.ioTimeout)
}
