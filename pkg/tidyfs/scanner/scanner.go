package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/category"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/fingerprint"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/fpcache"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/tuner"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// errScanStopped aborts a walk without recording a failure. It is
// returned from walk callbacks on cancellation or truncation and
// filtered out before errors reach the caller.
var errScanStopped = errors.New("scan stopped")

// fileKey identifies a directory across paths for cycle detection.
type fileKey struct {
	dev uint64
	ino uint64
}

type exclusion struct {
	base glob.Glob
	full glob.Glob
}

// Scanner walks a tree and collects scan records.
type Scanner struct {
	opts       Options
	exclusions []exclusion

	// Atomic counters for thread-safe progress reporting.
	dirsScanned   atomic.Int64
	filesScanned  atomic.Int64
	bytesScanned  atomic.Int64
	fingerprinted atomic.Int64
	cacheHits     atomic.Int64
	recordCount   atomic.Int64
	truncated     atomic.Bool

	// currentPath is the path most recently visited (for progress).
	currentPath atomic.Value

	// records collects observed entries. Fingerprint workers fill in
	// rec.Fingerprint until the pool drains; nothing reads records
	// before then.
	records   []*types.ScanRecord
	recordsMu sync.Mutex

	// errs collects per-path errors without stopping the scan.
	errs   []types.ScanError
	errsMu sync.Mutex

	// cacheEntries collects fingerprints for a batched cache update.
	cacheEntries   map[string]*fpcache.Entry
	cacheEntriesMu sync.Mutex

	// visited holds dev/inode keys of walked directories when
	// following symlinks; re-entering one is a cycle.
	visited   map[fileKey]struct{}
	visitedMu sync.Mutex

	// root is the resolved absolute path being scanned.
	root string
}

// New creates a new Scanner with the given options.
// Options are validated and defaults are applied.
func New(opts Options) *Scanner {
	_ = opts.Validate()

	s := &Scanner{
		opts:       opts,
		exclusions: compileExclusions(opts.Exclude),
	}
	s.currentPath.Store("")
	return s
}

// Scan walks the root and returns the collected result. It blocks
// until traversal and fingerprinting complete or ctx is cancelled.
// Per-path failures are recorded in the result; only an unusable root
// fails the scan as a whole, in which case the returned result carries
// status failed alongside the error.
func (s *Scanner) Scan(ctx context.Context) (*types.ScanResult, error) {
	start := time.Now()
	result := &types.ScanResult{
		ID:        uuid.NewString(),
		Root:      s.opts.Root,
		StartedAt: start,
	}

	root, err := s.validateRoot()
	if err != nil {
		result.Status = types.ScanFailed
		result.Errors = []types.ScanError{{
			Path:    s.opts.Root,
			Kind:    types.ClassifyError(err),
			Message: err.Error(),
		}}
		result.FinishedAt = time.Now()
		result.Elapsed = result.FinishedAt.Sub(start)
		return result, err
	}
	s.root = root
	result.Root = root

	if s.opts.FollowSymlinks {
		s.visited = make(map[fileKey]struct{})
	}
	if s.opts.Cache != nil {
		s.cacheEntries = make(map[string]*fpcache.Entry)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.hashWorkers())

	s.currentPath.Store(root)
	s.reportProgress()

	if walkErr := s.walk(ctx, g, gctx, root, root, 0); walkErr != nil {
		s.addError(root, walkErr)
	}

	// Fingerprint jobs never return errors; Wait only drains the pool.
	_ = g.Wait()

	s.flushCacheEntries()

	status := types.ScanCompleted
	switch {
	case ctx.Err() != nil:
		status = types.ScanCancelled
	case len(s.errs) > 0:
		status = types.ScanCompletedWithErrors
	}

	sort.Slice(s.records, func(i, j int) bool {
		return s.records[i].Path < s.records[j].Path
	})
	records := make([]types.ScanRecord, len(s.records))
	for i, r := range s.records {
		records[i] = *r
	}

	result.Records = records
	result.Errors = s.errs
	result.DirsScanned = s.dirsScanned.Load()
	result.FilesScanned = s.filesScanned.Load()
	result.TotalSize = s.bytesScanned.Load()
	result.Fingerprinted = s.fingerprinted.Load()
	result.CacheHits = s.cacheHits.Load()
	result.Truncated = s.truncated.Load()
	result.Status = status
	result.FinishedAt = time.Now()
	result.Elapsed = result.FinishedAt.Sub(start)

	s.reportProgress()

	return result, nil
}

// hashWorkers resolves the fingerprint pool size, autotuning when no
// explicit count is configured.
func (s *Scanner) hashWorkers() int {
	if s.opts.HashWorkers > 0 {
		return s.opts.HashWorkers
	}
	resources, err := tuner.Detect()
	if err != nil {
		return 4
	}
	return tuner.Calculate(resources).HashWorkers
}

// validateRoot resolves the root path and verifies it is a readable
// directory. Anything short of that fails the whole scan.
func (s *Scanner) validateRoot() (string, error) {
	var root string
	var err error

	if s.opts.Resolver != nil {
		root, err = s.opts.Resolver.Resolve(s.opts.Root)
	} else {
		root, err = filepath.Abs(s.opts.Root)
		if err == nil {
			root, err = filepath.EvalSymlinks(root)
		}
	}
	if err != nil {
		return "", err
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("scan root %s is not a directory", root)
	}

	// Stat succeeds on directories we cannot list; probe with a read.
	f, err := os.Open(root)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	return root, nil
}

// walk runs fastwalk over realBase, reporting records under
// logicalBase. baseDepth is the depth of realBase itself; nested walks
// of symlinked directories pass the symlink's depth so MaxDepth keeps
// counting from the scan root.
func (s *Scanner) walk(ctx context.Context, g *errgroup.Group, gctx context.Context, realBase, logicalBase string, baseDepth int) error {
	conf := fastwalk.Config{
		Follow: false, // Symlink handling is ours.
	}

	err := fastwalk.Walk(&conf, realBase, s.walkCallback(ctx, g, gctx, realBase, logicalBase, baseDepth))
	if err != nil && !errors.Is(err, errScanStopped) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// walkCallback returns the callback function for fastwalk.Walk.
func (s *Scanner) walkCallback(ctx context.Context, g *errgroup.Group, gctx context.Context, realBase, logicalBase string, baseDepth int) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil || s.truncated.Load() {
			return errScanStopped
		}

		logical := swapBase(path, realBase, logicalBase)

		// Handle errors gracefully - log and continue.
		if err != nil {
			s.addError(logical, err)
			return nil
		}

		// The base of a nested walk was already recorded as the
		// symlink entry; only the scan root records itself.
		if path == realBase {
			if realBase == s.root && d.IsDir() {
				s.recordDir(logical, d)
			}
			return nil
		}

		name := d.Name()
		if !s.opts.IncludeHidden && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if s.isExcluded(logical, name) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		depth := baseDepth + relDepth(realBase, path)

		switch {
		case d.IsDir():
			s.recordDir(logical, d)
			if depth >= s.opts.MaxDepth {
				return fastwalk.SkipDir
			}
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			return s.handleSymlink(ctx, g, gctx, logical, path, depth)
		case d.Type().IsRegular():
			s.processEntry(g, gctx, logical, path, d)
			return nil
		default:
			// Sockets, fifos and devices are not managed.
			return nil
		}
	}
}

// recordDir records a directory entry and marks it visited for cycle
// detection.
func (s *Scanner) recordDir(logical string, d fs.DirEntry) {
	info, err := d.Info()
	if err != nil {
		s.addError(logical, err)
		return
	}

	s.dirsScanned.Add(1)
	s.markVisited(info)

	s.addRecord(&types.ScanRecord{
		Path:       logical,
		Name:       filepath.Base(logical),
		IsDir:      true,
		ModTime:    info.ModTime(),
		CreateTime: getCreateTime(info),
	})
}

// processEntry stats a regular file entry and hands it to processFile.
func (s *Scanner) processEntry(g *errgroup.Group, gctx context.Context, logical, real string, d fs.DirEntry) {
	info, err := d.Info()
	if err != nil {
		s.addError(logical, err)
		return
	}
	s.processFile(g, gctx, logical, real, info, false)
}

// processFile records a file entry and schedules fingerprinting.
// real is where the bytes live, which differs from logical when the
// file was reached through a symlink.
func (s *Scanner) processFile(g *errgroup.Group, gctx context.Context, logical, real string, info os.FileInfo, viaSymlink bool) {
	for {
		cur := s.filesScanned.Load()
		if cur >= int64(s.opts.MaxFiles) {
			s.truncated.Store(true)
			return
		}
		if s.filesScanned.CompareAndSwap(cur, cur+1) {
			break
		}
	}

	size := info.Size()
	s.bytesScanned.Add(size)

	name := filepath.Base(logical)
	rec := &types.ScanRecord{
		Path:       logical,
		Name:       name,
		Ext:        strings.ToLower(filepath.Ext(name)),
		Size:       size,
		IsSymlink:  viaSymlink || info.Mode()&fs.ModeSymlink != 0,
		ModTime:    info.ModTime(),
		CreateTime: getCreateTime(info),
		Category:   category.Classify(name),
	}

	if s.fingerprintEligible(info) {
		s.scheduleFingerprint(g, gctx, rec, real, info)
	}

	s.addRecord(rec)
}

// fingerprintEligible reports whether a file gets a fingerprint:
// regular content at or under the size ceiling.
func (s *Scanner) fingerprintEligible(info os.FileInfo) bool {
	if !info.Mode().IsRegular() {
		return false
	}
	if c := s.opts.FingerprintCeiling; c > 0 && info.Size() > c {
		return false
	}
	return true
}

// scheduleFingerprint serves the fingerprint from cache or queues a
// hash job on the bounded pool. Hash failures become scan errors, not
// pool failures.
func (s *Scanner) scheduleFingerprint(g *errgroup.Group, gctx context.Context, rec *types.ScanRecord, real string, info os.FileInfo) {
	if s.opts.Cache != nil {
		if sum, ok := s.opts.Cache.Lookup(real, info.Size(), info.ModTime()); ok {
			rec.Fingerprint = sum
			s.cacheHits.Add(1)
			s.fingerprinted.Add(1)
			return
		}
	}

	g.Go(func() error {
		sum, err := fingerprint.File(gctx, real, s.opts.FingerprintCeiling)
		if err != nil {
			if !fingerprint.IsTooLarge(err) && gctx.Err() == nil {
				s.addError(rec.Path, err)
			}
			return nil
		}
		rec.Fingerprint = sum
		s.fingerprinted.Add(1)
		s.collectCacheEntry(real, info, sum)
		return nil
	})
}

// handleSymlink records a symlink entry, following it when configured.
func (s *Scanner) handleSymlink(ctx context.Context, g *errgroup.Group, gctx context.Context, logical, real string, depth int) error {
	if !s.opts.FollowSymlinks {
		info, err := os.Lstat(real)
		if err != nil {
			s.addError(logical, err)
			return nil
		}
		s.processFile(g, gctx, logical, real, info, true)
		return nil
	}

	target, err := filepath.EvalSymlinks(real)
	if err != nil {
		s.addError(logical, err)
		return nil
	}
	if s.opts.Resolver != nil && !s.opts.Resolver.Within(target) {
		s.addError(logical, sandbox.ErrOutOfSandbox)
		return nil
	}

	info, err := os.Stat(target)
	if err != nil {
		s.addError(logical, err)
		return nil
	}

	if info.Mode().IsRegular() {
		s.processFile(g, gctx, logical, target, info, true)
		return nil
	}
	if !info.IsDir() {
		return nil
	}

	if !s.visit(info) {
		s.addScanError(logical, types.ErrKindSymlinkLoop, "symlink cycle via "+target)
		return nil
	}

	s.dirsScanned.Add(1)
	s.addRecord(&types.ScanRecord{
		Path:       logical,
		Name:       filepath.Base(logical),
		IsDir:      true,
		IsSymlink:  true,
		ModTime:    info.ModTime(),
		CreateTime: getCreateTime(info),
	})

	if depth >= s.opts.MaxDepth {
		return nil
	}

	if werr := s.walk(ctx, g, gctx, target, logical, depth); werr != nil {
		s.addError(logical, werr)
	}
	return nil
}

// visit marks a directory as walked, reporting false when it already
// was. Used only on symlink targets; genuine tree positions never
// collide.
func (s *Scanner) visit(info os.FileInfo) bool {
	if s.visited == nil {
		return true
	}
	key, ok := fileKeyOf(info)
	if !ok {
		return true
	}

	s.visitedMu.Lock()
	defer s.visitedMu.Unlock()
	if _, seen := s.visited[key]; seen {
		return false
	}
	s.visited[key] = struct{}{}
	return true
}

// markVisited adds a directory to the visited set without checking.
func (s *Scanner) markVisited(info os.FileInfo) {
	if s.visited == nil {
		return
	}
	key, ok := fileKeyOf(info)
	if !ok {
		return
	}
	s.visitedMu.Lock()
	s.visited[key] = struct{}{}
	s.visitedMu.Unlock()
}

// addRecord appends a record, resolves its tags and emits throttled
// progress.
func (s *Scanner) addRecord(rec *types.ScanRecord) {
	if s.opts.Tags != nil {
		if tags, err := s.opts.Tags.Tags(rec.Path); err == nil && len(tags) > 0 {
			rec.Tags = tags
		}
	}

	s.recordsMu.Lock()
	s.records = append(s.records, rec)
	s.recordsMu.Unlock()

	s.currentPath.Store(rec.Path)
	if n := s.recordCount.Add(1); n%int64(s.opts.ProgressEvery) == 0 {
		s.reportProgress()
	}
}

// collectCacheEntry stages a fingerprint for the batched cache update.
func (s *Scanner) collectCacheEntry(real string, info os.FileInfo, sum string) {
	if s.cacheEntries == nil {
		return
	}
	s.cacheEntriesMu.Lock()
	s.cacheEntries[real] = &fpcache.Entry{
		Size:        info.Size(),
		Mtime:       info.ModTime().UnixNano(),
		Fingerprint: sum,
	}
	s.cacheEntriesMu.Unlock()
}

// flushCacheEntries writes collected fingerprints to the cache.
func (s *Scanner) flushCacheEntries() {
	if s.opts.Cache == nil || len(s.cacheEntries) == 0 {
		return
	}
	if err := s.opts.Cache.RememberBatch(s.cacheEntries); err != nil {
		s.addError("cache update", err)
	}
}

// addError records a classified per-path error thread-safely.
func (s *Scanner) addError(path string, err error) {
	s.addScanError(path, types.ClassifyError(err), err.Error())
}

func (s *Scanner) addScanError(path string, kind types.ErrorKind, msg string) {
	s.errsMu.Lock()
	s.errs = append(s.errs, types.ScanError{Path: path, Kind: kind, Message: msg})
	s.errsMu.Unlock()
}

// reportProgress calls the progress callback with current counters.
func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}
	currentPath, _ := s.currentPath.Load().(string)

	s.opts.OnProgress(Progress{
		DirsScanned:   s.dirsScanned.Load(),
		FilesScanned:  s.filesScanned.Load(),
		BytesScanned:  s.bytesScanned.Load(),
		Fingerprinted: s.fingerprinted.Load(),
		CacheHits:     s.cacheHits.Load(),
		CurrentPath:   currentPath,
	})
}

// isExcluded checks a path against the compiled exclusion patterns.
func (s *Scanner) isExcluded(path, name string) bool {
	for _, e := range s.exclusions {
		if e.base != nil && e.base.Match(name) {
			return true
		}
		if e.full != nil && e.full.Match(path) {
			return true
		}
	}
	return false
}

func compileExclusions(patterns []string) []exclusion {
	out := make([]exclusion, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		var e exclusion
		if g, err := glob.Compile(p); err == nil {
			e.base = g
		}
		if g, err := glob.Compile(p, filepath.Separator); err == nil {
			e.full = g
		}
		if e.base == nil && e.full == nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// relDepth is the depth of path relative to base; base itself is 0.
func relDepth(base, path string) int {
	if path == base {
		return 0
	}
	rel := strings.TrimPrefix(path, base)
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	if rel == "" {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// swapBase rewrites path from realBase to logicalBase so records in
// symlinked subtrees report the path they were reached by.
func swapBase(path, realBase, logicalBase string) string {
	if realBase == logicalBase {
		return path
	}
	if path == realBase {
		return logicalBase
	}
	return logicalBase + strings.TrimPrefix(path, realBase)
}
