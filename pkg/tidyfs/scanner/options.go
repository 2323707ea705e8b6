// Package scanner walks a directory tree inside the sandbox and
// produces scan records with content fingerprints. Traversal uses
// fastwalk's parallel walker; fingerprints are computed by a bounded
// worker pool so large files never stall the walk.
package scanner

import (
	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/fpcache"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
)

// TagSource supplies user tags for scanned paths. Implementations must
// be safe for concurrent use.
type TagSource interface {
	Tags(path string) ([]string, error)
}

// Progress is a point-in-time snapshot of a running scan.
type Progress struct {
	// DirsScanned is the number of directories traversed so far.
	DirsScanned int64

	// FilesScanned is the number of files examined so far.
	FilesScanned int64

	// BytesScanned is the total size of files examined so far.
	BytesScanned int64

	// Fingerprinted is the number of fingerprints computed or served
	// from cache so far.
	Fingerprinted int64

	// CacheHits is the number of fingerprints served from cache.
	CacheHits int64

	// CurrentPath is the path most recently visited.
	CurrentPath string
}

// Options configures scanner behavior.
type Options struct {
	// Root is the starting directory for the scan.
	Root string

	// Resolver confines the scan to the sandbox. When nil the root is
	// only canonicalized, not containment-checked; callers that accept
	// external input must set it.
	Resolver *sandbox.Resolver

	// MaxDepth bounds traversal depth. The root is depth 0;
	// directories at MaxDepth are recorded but not descended into.
	MaxDepth int

	// MaxFiles caps the number of file records. When the cap is hit
	// the scan stops and the result is marked truncated.
	MaxFiles int

	// IncludeHidden includes dot-prefixed entries. When false they
	// are skipped entirely, including their subtrees.
	IncludeHidden bool

	// FollowSymlinks resolves symlinks and walks symlinked
	// directories, with cycle detection. When false, symlink entries
	// are recorded as such and never followed.
	FollowSymlinks bool

	// FingerprintCeiling is the largest file size in bytes that gets
	// fingerprinted. Zero disables the ceiling.
	FingerprintCeiling int64

	// ProgressEvery emits a progress callback after every N records.
	ProgressEvery int

	// HashWorkers bounds the fingerprint pool. Zero or negative means
	// autotune from detected system resources.
	HashWorkers int

	// Exclude contains glob patterns for paths to skip. Patterns are
	// matched against the base name and the full path.
	Exclude []string

	// Cache is an optional fingerprint cache for speeding up repeat
	// scans. If nil, caching is disabled.
	Cache *fpcache.Cache

	// Tags is an optional tag source consulted per record.
	Tags TagSource

	// OnProgress is called with progress snapshots. It must be safe
	// to call from multiple goroutines.
	OnProgress func(Progress)
}

// DefaultOptions returns options with the stock limits applied.
func DefaultOptions() Options {
	return Options{
		Root:               ".",
		MaxDepth:           config.DefaultMaxDepth,
		MaxFiles:           config.DefaultMaxFiles,
		FingerprintCeiling: config.MustParseSize(config.DefaultFingerprintCeiling),
		ProgressEvery:      config.DefaultProgressEvery,
		Exclude:            config.DefaultExclusions,
	}
}

// Validate fills in defaults for out-of-range values.
func (o *Options) Validate() error {
	if o.Root == "" {
		o.Root = "."
	}
	if o.MaxDepth < 1 {
		o.MaxDepth = config.DefaultMaxDepth
	}
	if o.MaxFiles < 1 {
		o.MaxFiles = config.DefaultMaxFiles
	}
	if o.ProgressEvery < 1 {
		o.ProgressEvery = config.DefaultProgressEvery
	}
	return nil
}
