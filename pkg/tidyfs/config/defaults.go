// Package config provides configuration management for tidyfs.
package config

import (
	"fmt"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// Default configuration values for tidyfs.
const (
	// DefaultMaxDepth is the default recursion bound for scans.
	// Directories at the bound are recorded but not descended into.
	DefaultMaxDepth = 10

	// DefaultMaxFiles is the default ceiling on records per scan.
	DefaultMaxFiles = 100_000

	// DefaultFingerprintCeiling is the largest file that gets fingerprinted.
	DefaultFingerprintCeiling = "100MB"

	// DefaultProgressEvery is how many records pass between progress reports.
	DefaultProgressEvery = 100

	// DefaultBatchSize is the default execution batch size.
	DefaultBatchSize = 100

	// MaxBatchSize is the hard ceiling on execution batch size.
	MaxBatchSize = 1000

	// DefaultIOTimeout bounds each individual filesystem call.
	DefaultIOTimeout = "30s"

	// DefaultRetentionCeiling is the largest delete that is retained for
	// rollback. Larger deletes are permanent and unrecoverable.
	DefaultRetentionCeiling = "1MB"

	// DefaultRetentionKeep is how long retained files are kept before purge.
	DefaultRetentionKeep = "30 days"

	// DefaultCacheTTL is how long fingerprint cache entries are kept.
	DefaultCacheTTL = "7 days"
)

// DefaultExclusions contains name patterns excluded from scanning by default.
var DefaultExclusions = []string{
	"node_modules",
	"__pycache__",
	".git",
}

// MustParseSize parses a size literal, panicking on malformed input.
// It exists for wiring package-level defaults that are known good.
func MustParseSize(s string) int64 {
	n, err := types.ParseSize(s)
	if err != nil {
		panic(fmt.Sprintf("config: bad size literal %q: %v", s, err))
	}
	return n
}
