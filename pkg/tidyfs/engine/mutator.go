package engine

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/fsatomic"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/retain"
)

// fileMutator is the capability an execution runs through. Dry-run and
// commit share every precheck and every code path; only the mutator
// differs, so a dry-run exercises exactly the decisions a commit
// would make.
type fileMutator interface {
	// Stat observes a path, seeing the effects of earlier operations
	// in the same execution.
	Stat(path string) (fs.FileInfo, error)

	// Writable reports whether new entries can be created in dir.
	Writable(dir string) bool

	Move(src, dst string) error
	Remove(path string) error
	MkDir(path string) error

	// Compress writes and verifies a tar+zstd archive of inputs,
	// returning its size on disk.
	Compress(ctx context.Context, inputs []string, archive string) (int64, error)

	// Retain moves a path into the retention area.
	Retain(src string, seq int) (*retain.Entry, error)

	// Restore moves a retained copy back to its original path.
	Restore(from, to string) error

	Tags(path string) ([]string, error)
	SetTags(path string, tags []string) error
}

// osMutator commits operations to the real filesystem.
type osMutator struct {
	journal *journal.Journal
	retain  *retain.Store
	execID  string
}

func (m *osMutator) Stat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

func (m *osMutator) Writable(dir string) bool {
	return unix.Access(dir, unix.W_OK) == nil
}

func (m *osMutator) Move(src, dst string) error {
	return fsatomic.Move(src, dst)
}

func (m *osMutator) Remove(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

func (m *osMutator) MkDir(path string) error {
	return os.Mkdir(path, 0o755)
}

func (m *osMutator) Retain(src string, seq int) (*retain.Entry, error) {
	return m.retain.Put(src, m.execID, seq)
}

func (m *osMutator) Restore(from, to string) error {
	return m.retain.Restore(from, to)
}

func (m *osMutator) Tags(path string) ([]string, error) {
	return m.journal.Tags(path)
}

func (m *osMutator) SetTags(path string, tags []string) error {
	return m.journal.SetTags(path, tags)
}

func (m *osMutator) Compress(ctx context.Context, inputs []string, archive string) (int64, error) {
	if err := writeArchive(ctx, inputs, archive); err != nil {
		return 0, err
	}
	if err := verifyArchive(ctx, archive, len(inputs)); err != nil {
		os.Remove(archive)
		return 0, fmt.Errorf("verifying archive: %w", err)
	}
	info, err := os.Stat(archive)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// writeArchive streams inputs into a fresh tar+zstd archive. A partial
// archive never survives failure.
func writeArchive(ctx context.Context, inputs []string, archive string) (err error) {
	f, err := os.OpenFile(archive, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(archive)
		}
	}()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			tw.Close()
			zw.Close()
			return err
		}
		if err := addArchiveEntry(ctx, tw, path); err != nil {
			tw.Close()
			zw.Close()
			return fmt.Errorf("archiving %s: %w", path, err)
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func addArchiveEntry(ctx context.Context, tw *tar.Writer, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	// Full path without the leading separator, tar convention. Keeps
	// entries unique when inputs from different directories share a
	// basename.
	hdr.Name = strings.TrimPrefix(path, string(filepath.Separator))

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, &deadlineReader{ctx: ctx, r: src})
	return err
}

// verifyArchive reads the whole archive back and checks the entry
// count. Originals are only released to retention after this passes.
func verifyArchive(ctx context.Context, archive string, want int) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, &deadlineReader{ctx: ctx, r: tr}); err != nil {
			return err
		}
		entries++
	}
	if entries != want {
		return fmt.Errorf("archive holds %d entries, want %d", entries, want)
	}
	return nil
}

// deadlineReader fails a streaming copy once its context expires, so a
// hung device converts to an operation failure instead of a stalled
// execution.
type deadlineReader struct {
	ctx context.Context
	r   io.Reader
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.ctx.Err(); err != nil {
		return 0, err
	}
	return d.r.Read(p)
}

// simMutator validates operations against an overlay of simulated
// effects. Later operations in the same dry-run see earlier creates,
// moves, and deletes, so a dry-run and a commit on identical trees
// reach identical per-operation outcomes.
type simMutator struct {
	journal *journal.Journal
	execID  string

	deleted map[string]bool
	created map[string]fs.FileInfo
	tags    map[string][]string
	tagged  map[string]bool
}

func newSimMutator(j *journal.Journal, execID string) *simMutator {
	return &simMutator{
		journal: j,
		execID:  execID,
		deleted: make(map[string]bool),
		created: make(map[string]fs.FileInfo),
		tags:    make(map[string][]string),
		tagged:  make(map[string]bool),
	}
}

func (m *simMutator) Stat(path string) (fs.FileInfo, error) {
	if m.deleted[path] {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
	}
	if info, ok := m.created[path]; ok {
		return info, nil
	}
	return os.Lstat(path)
}

func (m *simMutator) Writable(dir string) bool {
	if m.deleted[dir] {
		return false
	}
	if _, ok := m.created[dir]; ok {
		return true
	}
	return unix.Access(dir, unix.W_OK) == nil
}

func (m *simMutator) Move(src, dst string) error {
	info, err := m.Stat(src)
	if err != nil {
		return err
	}
	m.markRemoved(src)
	m.markCreated(dst, &simFileInfo{
		name:    filepath.Base(dst),
		size:    info.Size(),
		mode:    info.Mode(),
		modTime: info.ModTime(),
	})
	return nil
}

func (m *simMutator) Remove(path string) error {
	m.markRemoved(path)
	return nil
}

func (m *simMutator) MkDir(path string) error {
	m.markCreated(path, &simFileInfo{
		name:    filepath.Base(path),
		mode:    fs.ModeDir | 0o755,
		modTime: time.Now(),
	})
	return nil
}

func (m *simMutator) Compress(_ context.Context, inputs []string, archive string) (int64, error) {
	for _, path := range inputs {
		if _, err := m.Stat(path); err != nil {
			return 0, err
		}
	}
	m.markCreated(archive, &simFileInfo{
		name:    filepath.Base(archive),
		mode:    0o644,
		modTime: time.Now(),
	})
	return 0, nil
}

func (m *simMutator) Retain(src string, seq int) (*retain.Entry, error) {
	info, err := m.Stat(src)
	if err != nil {
		return nil, err
	}
	m.markRemoved(src)
	return &retain.Entry{
		OriginalPath: src,
		ExecutionID:  m.execID,
		Seq:          seq,
		Size:         info.Size(),
		RetainedAt:   time.Now().UTC(),
	}, nil
}

func (m *simMutator) Restore(from, to string) error {
	m.markRemoved(from)
	m.markCreated(to, &simFileInfo{name: filepath.Base(to), modTime: time.Now()})
	return nil
}

func (m *simMutator) Tags(path string) ([]string, error) {
	if m.tagged[path] {
		return m.tags[path], nil
	}
	return m.journal.Tags(path)
}

func (m *simMutator) SetTags(path string, tags []string) error {
	m.tags[path] = tags
	m.tagged[path] = true
	return nil
}

func (m *simMutator) markRemoved(path string) {
	m.deleted[path] = true
	delete(m.created, path)
}

func (m *simMutator) markCreated(path string, info fs.FileInfo) {
	m.created[path] = info
	delete(m.deleted, path)
}

// simFileInfo is the stat result for a simulated entry.
type simFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (s *simFileInfo) Name() string       { return s.name }
func (s *simFileInfo) Size() int64        { return s.size }
func (s *simFileInfo) Mode() fs.FileMode  { return s.mode }
func (s *simFileInfo) ModTime() time.Time { return s.modTime }
func (s *simFileInfo) IsDir() bool        { return s.mode.IsDir() }
func (s *simFileInfo) Sys() any           { return nil }
