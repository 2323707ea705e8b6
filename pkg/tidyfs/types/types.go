// Package types provides the core data model shared across the tidyfs
// scanner, planner, execution engine, and journal. It defines filesystem
// scan records, primitive operations, execution records, and rollback
// entries, along with utility functions for parsing and formatting sizes.
package types

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Category classifies a file by its content type.
type Category string

// File categories assigned during scanning.
const (
	CategoryDocument      Category = "document"
	CategoryImage         Category = "image"
	CategoryVideo         Category = "video"
	CategoryAudio         Category = "audio"
	CategoryCode          Category = "code"
	CategoryArchive       Category = "archive"
	CategoryData          Category = "data"
	CategoryBuildArtifact Category = "build_artifact"
	CategoryTemporary     Category = "temporary"
	CategoryOther         Category = "other"
)

// Categories returns all known categories in display order.
func Categories() []Category {
	return []Category{
		CategoryDocument, CategoryImage, CategoryVideo, CategoryAudio,
		CategoryCode, CategoryArchive, CategoryData, CategoryBuildArtifact,
		CategoryTemporary, CategoryOther,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ScanRecord describes one filesystem entry observed during a scan.
// The path is canonical and unique within a scan. The fingerprint is
// present only for regular files at or under the fingerprint ceiling
// that were read without error.
type ScanRecord struct {
	// Path is the canonical absolute path of the entry.
	Path string `json:"path"`

	// Name is the base name of the entry.
	Name string `json:"name"`

	// Ext is the lowercase extension including the leading dot, if any.
	Ext string `json:"ext,omitempty"`

	// Size is the entry size in bytes.
	Size int64 `json:"size"`

	// IsDir indicates a directory entry.
	IsDir bool `json:"is_dir"`

	// IsSymlink indicates a symbolic link entry.
	IsSymlink bool `json:"is_symlink"`

	// ModTime is the last modification time.
	ModTime time.Time `json:"mod_time"`

	// CreateTime is the creation time (may be zero on some systems).
	CreateTime time.Time `json:"create_time,omitempty"`

	// Fingerprint is the 16-hex-digit content hash, when computed.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Category is the detected content category.
	Category Category `json:"category"`

	// Tags is the free-form tag set attached to the path.
	Tags []string `json:"tags,omitempty"`
}

// HumanSize returns the record size formatted as a human-readable string.
func (r *ScanRecord) HumanSize() string {
	return FormatSize(r.Size)
}

// ErrorKind classifies a per-item scan or execution error.
type ErrorKind string

// Error kinds recorded during scanning.
const (
	ErrKindPermission  ErrorKind = "permission-denied"
	ErrKindNotFound    ErrorKind = "not-found"
	ErrKindSymlinkLoop ErrorKind = "symlink-loop"
	ErrKindIO          ErrorKind = "io-error"
	ErrKindTimeout     ErrorKind = "timeout"
)

// ClassifyError maps a Go error to the error kind recorded for it.
func ClassifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return ErrKindPermission
	case errors.Is(err, fs.ErrNotExist):
		return ErrKindNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrKindTimeout
	default:
		return ErrKindIO
	}
}

// ScanError records a non-fatal error encountered at one path during a scan.
type ScanError struct {
	// Path is the file or directory path where the error occurred.
	Path string `json:"path"`

	// Kind classifies the error.
	Kind ErrorKind `json:"kind"`

	// Message is the error message describing what went wrong.
	Message string `json:"message"`
}

// ScanStatus is the terminal status of a scan.
type ScanStatus string

// Terminal scan statuses.
const (
	ScanCompleted           ScanStatus = "completed"
	ScanCompletedWithErrors ScanStatus = "completed_with_errors"
	ScanCancelled           ScanStatus = "cancelled"
	ScanFailed              ScanStatus = "failed"
)

// ScanResult contains the aggregated output of one scan: the observed
// records, per-item errors, and counters. A scan with errors is not
// failed; only an unreadable root fails the scan as a whole.
type ScanResult struct {
	// ID uniquely identifies the scan.
	ID string `json:"id"`

	// Root is the canonical root the scan started from.
	Root string `json:"root"`

	// Records contains all observed entries.
	Records []ScanRecord `json:"records"`

	// Errors contains per-item errors encountered during scanning.
	Errors []ScanError `json:"errors,omitempty"`

	// DirsScanned is the total number of directories traversed.
	DirsScanned int64 `json:"dirs_scanned"`

	// FilesScanned is the total number of files examined.
	FilesScanned int64 `json:"files_scanned"`

	// TotalSize is the sum of all regular file sizes in bytes.
	TotalSize int64 `json:"total_size"`

	// Fingerprinted is the number of files that received a fingerprint.
	Fingerprinted int64 `json:"fingerprinted"`

	// CacheHits is the number of fingerprints served from the cache.
	CacheHits int64 `json:"cache_hits,omitempty"`

	// Truncated indicates the scan hit its file-count ceiling.
	Truncated bool `json:"truncated,omitempty"`

	// Status is the terminal scan status.
	Status ScanStatus `json:"status"`

	// StartedAt is when scanning began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when scanning reached its terminal state.
	FinishedAt time.Time `json:"finished_at"`

	// Elapsed is the total time taken to complete the scan.
	Elapsed time.Duration `json:"elapsed"`
}

// RecommendationKind names the shape of an approved recommendation.
type RecommendationKind string

// Recommendation kinds accepted by the planner.
const (
	RecReorganize  RecommendationKind = "reorganize"
	RecDeduplicate RecommendationKind = "deduplicate"
	RecCleanup     RecommendationKind = "cleanup"
	RecArchive     RecommendationKind = "archive"
	RecCategorize  RecommendationKind = "categorize"
	RecRetag       RecommendationKind = "retag"
)

// Valid reports whether k is a known recommendation kind.
func (k RecommendationKind) Valid() bool {
	switch k {
	case RecReorganize, RecDeduplicate, RecCleanup, RecArchive, RecCategorize, RecRetag:
		return true
	}
	return false
}

// RecommendationParams carries the kind-specific parameters of a
// recommendation.
type RecommendationParams struct {
	// Destination is the target directory for reorganize and categorize.
	Destination string `json:"destination,omitempty"`

	// ArchivePath is the archive file to create for archive recommendations.
	ArchivePath string `json:"archive_path,omitempty"`

	// Tags is the tag set to apply for retag recommendations.
	Tags []string `json:"tags,omitempty"`

	// VerifyAgainst maps a deduplicate target to the retained copy whose
	// content it must still match before deletion.
	VerifyAgainst map[string]string `json:"verify_against,omitempty"`
}

// Recommendation is one approved, untrusted reorganization suggestion.
// It is produced by an external analysis layer and re-validated in full
// by the planner before any operation is derived from it.
type Recommendation struct {
	// ID identifies the recommendation, when the producer assigned one.
	ID string `json:"id,omitempty"`

	// Kind selects the expansion rule.
	Kind RecommendationKind `json:"kind"`

	// Targets are the paths the recommendation applies to.
	Targets []string `json:"targets"`

	// Params carries kind-specific parameters.
	Params RecommendationParams `json:"params,omitempty"`
}

// OpKind is the tag of a primitive operation variant.
type OpKind string

// Primitive operation kinds. The set is closed: adding a kind means
// adding an expansion rule in the planner and an inverse-construction
// rule in the engine.
const (
	OpMove      OpKind = "move"
	OpDelete    OpKind = "delete"
	OpCreateDir OpKind = "create_directory"
	OpCompress  OpKind = "compress"
	OpRetag     OpKind = "retag"
)

// ErrMalformedOp indicates an operation is missing fields its kind requires.
var ErrMalformedOp = errors.New("malformed operation")

// Operation is one atomic primitive filesystem mutation within a plan.
// Exactly the fields relevant to Kind are set; Validate enforces this.
type Operation struct {
	// Seq is the stable sequence index within the plan.
	Seq int `json:"seq"`

	// Kind selects the operation variant.
	Kind OpKind `json:"kind"`

	// Source is the path being moved (move only).
	Source string `json:"source,omitempty"`

	// Destination is the path being moved to (move only).
	Destination string `json:"destination,omitempty"`

	// Path is the operand path (delete, create_directory, retag).
	Path string `json:"path,omitempty"`

	// Paths are the archive inputs (compress only).
	Paths []string `json:"paths,omitempty"`

	// ArchivePath is the archive to create (compress only).
	ArchivePath string `json:"archive_path,omitempty"`

	// Tags is the tag set to apply (retag only).
	Tags []string `json:"tags,omitempty"`

	// VerifySource, when set on a delete, names a path whose content must
	// still byte-match the operand before the delete proceeds.
	VerifySource string `json:"verify_source,omitempty"`
}

// Validate checks that the fields required by the operation kind are set.
func (o *Operation) Validate() error {
	switch o.Kind {
	case OpMove:
		if o.Source == "" || o.Destination == "" {
			return fmt.Errorf("%w: move requires source and destination", ErrMalformedOp)
		}
	case OpDelete:
		if o.Path == "" {
			return fmt.Errorf("%w: delete requires path", ErrMalformedOp)
		}
	case OpCreateDir:
		if o.Path == "" {
			return fmt.Errorf("%w: create_directory requires path", ErrMalformedOp)
		}
	case OpCompress:
		if len(o.Paths) == 0 || o.ArchivePath == "" {
			return fmt.Errorf("%w: compress requires paths and archive_path", ErrMalformedOp)
		}
	case OpRetag:
		if o.Path == "" {
			return fmt.Errorf("%w: retag requires path", ErrMalformedOp)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedOp, o.Kind)
	}
	return nil
}

// Touches returns every path the operation reads or writes, used for
// advisory locking. Moves touch both endpoints.
func (o *Operation) Touches() []string {
	var paths []string
	switch o.Kind {
	case OpMove:
		paths = []string{o.Source, o.Destination}
	case OpDelete:
		paths = []string{o.Path}
		if o.VerifySource != "" {
			paths = append(paths, o.VerifySource)
		}
	case OpCreateDir, OpRetag:
		paths = []string{o.Path}
	case OpCompress:
		paths = append(append(paths, o.Paths...), o.ArchivePath)
	}
	return paths
}

// String renders the operation for logs and plan previews.
func (o *Operation) String() string {
	switch o.Kind {
	case OpMove:
		return fmt.Sprintf("move %s -> %s", o.Source, o.Destination)
	case OpDelete:
		return fmt.Sprintf("delete %s", o.Path)
	case OpCreateDir:
		return fmt.Sprintf("mkdir %s", o.Path)
	case OpCompress:
		return fmt.Sprintf("compress %d files -> %s", len(o.Paths), o.ArchivePath)
	case OpRetag:
		return fmt.Sprintf("retag %s [%s]", o.Path, strings.Join(o.Tags, " "))
	default:
		return string(o.Kind)
	}
}

// Plan is the ordered, validated list of primitive operations derived
// from one approved recommendation. A plan is inert: building one never
// touches the filesystem.
type Plan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// RecommendationID links back to the recommendation, when it had one.
	RecommendationID string `json:"recommendation_id,omitempty"`

	// Kind is the recommendation kind the plan was expanded from.
	Kind RecommendationKind `json:"kind"`

	// Ops are the operations in execution order.
	Ops []Operation `json:"ops"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Touches returns the sorted, deduplicated union of every path the plan
// touches.
func (p *Plan) Touches() []string {
	seen := make(map[string]struct{})
	for i := range p.Ops {
		for _, path := range p.Ops[i].Touches() {
			seen[path] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// OpOutcome is the per-operation result within an execution.
type OpOutcome string

// Per-operation outcomes.
const (
	OutcomePending   OpOutcome = "pending"
	OutcomeSucceeded OpOutcome = "succeeded"
	OutcomeFailed    OpOutcome = "failed"
	OutcomeSkipped   OpOutcome = "skipped"
)

// OperationResult pairs an operation with its outcome in one execution.
type OperationResult struct {
	Operation

	// Outcome is the per-operation result.
	Outcome OpOutcome `json:"outcome"`

	// Message describes the failure or skip reason, when any.
	Message string `json:"message,omitempty"`
}

// ExecStatus is the lifecycle status of an execution.
type ExecStatus string

// Execution statuses. An execution becomes immutable once terminal,
// except for the completed -> rolled_back transition, which is recorded
// alongside a fresh execution record for the inverse run.
const (
	ExecPending    ExecStatus = "pending"
	ExecRunning    ExecStatus = "running"
	ExecCompleted  ExecStatus = "completed"
	ExecFailed     ExecStatus = "failed"
	ExecCancelled  ExecStatus = "cancelled"
	ExecRolledBack ExecStatus = "rolled_back"
)

// Terminal reports whether the status is a terminal state.
func (s ExecStatus) Terminal() bool {
	switch s {
	case ExecCompleted, ExecFailed, ExecCancelled, ExecRolledBack:
		return true
	}
	return false
}

// ExecCounters aggregates per-operation outcomes for an execution.
type ExecCounters struct {
	// Attempted is the number of operations that were started.
	Attempted int `json:"attempted"`

	// Succeeded is the number of operations that completed.
	Succeeded int `json:"succeeded"`

	// Failed is the number of operations that failed.
	Failed int `json:"failed"`

	// Skipped is the number of operations never attempted.
	Skipped int `json:"skipped"`

	// BytesFreed is the total bytes reclaimed by deletes and compression.
	BytesFreed int64 `json:"bytes_freed"`
}

// ExecutionRecord is the full account of one execution (or rollback)
// run. History is append-only: rolling back appends a new record rather
// than rewriting the original.
type ExecutionRecord struct {
	// ID uniquely identifies the execution.
	ID string `json:"id"`

	// PlanID links to the executed plan.
	PlanID string `json:"plan_id"`

	// Kind is the recommendation kind of the plan.
	Kind RecommendationKind `json:"kind,omitempty"`

	// DryRun indicates the execution validated without mutating.
	DryRun bool `json:"dry_run"`

	// Ops are the operations with their outcomes, in plan order.
	Ops []OperationResult `json:"ops"`

	// Counters aggregates the outcomes.
	Counters ExecCounters `json:"counters"`

	// Status is the lifecycle status.
	Status ExecStatus `json:"status"`

	// RollbackAvailable indicates rollback entries exist for this execution.
	RollbackAvailable bool `json:"rollback_available"`

	// RollbackOf names the execution this record is the inverse run of.
	RollbackOf string `json:"rollback_of,omitempty"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the run left pending.
	StartedAt time.Time `json:"started_at,omitempty"`

	// FinishedAt is when the run reached a terminal status.
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Restore names one retained copy to put back during rollback.
type Restore struct {
	// From is the retained copy location.
	From string `json:"from"`

	// To is the original path to restore to.
	To string `json:"to"`
}

// RollbackEntry records the inverse of one committed operation. Entries
// are written once, immediately after the operation commits, and never
// mutated. An unrecoverable entry (permanent delete with no retained
// copy) is reported during rollback, never silently skipped.
type RollbackEntry struct {
	// ExecutionID is the execution the entry belongs to.
	ExecutionID string `json:"execution_id"`

	// Seq is the sequence index of the committed operation.
	Seq int `json:"seq"`

	// Op is the operation as committed.
	Op Operation `json:"op"`

	// Inverse is the primitive that undoes Op, when one exists.
	Inverse *Operation `json:"inverse,omitempty"`

	// Restores are retained copies to put back in addition to Inverse.
	Restores []Restore `json:"restores,omitempty"`

	// Unrecoverable marks an operation whose effect cannot be undone.
	Unrecoverable bool `json:"unrecoverable,omitempty"`

	// Reason explains why the entry is unrecoverable.
	Reason string `json:"reason,omitempty"`
}

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in
// bytes. Suffixes are interpreted as binary (IEC) units, so "100MB",
// "100MiB" and "100M" all mean 100 * 1024 * 1024. Plain integers are
// bytes. Returns ErrInvalidSize for unrecognized input and
// ErrNegativeSize for negative values.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return n, nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units for consistency with common filesystem tools.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
