// Package output renders the documents the CLI produces (scan results,
// duplicate groups, plans, execution records, history and cache
// statistics) in the formats it exposes.
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.FormatScan(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// ScanReport carries one finished scan for rendering. Rows is the
// selection to display, already filtered and ordered by the caller;
// Result keeps the full counters and per-path errors.
type ScanReport struct {
	Result *types.ScanResult
	Rows   []types.ScanRecord
}

// DupeGroup is one set of byte-identical files. Paths lists the keeper
// first.
type DupeGroup struct {
	// Fingerprint is the shared content hash.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Size is the size of one copy in bytes.
	Size int64 `json:"size" yaml:"size"`

	// Paths are the identical files, keeper first.
	Paths []string `json:"paths" yaml:"paths"`

	// Wasted is the bytes held by the copies beyond the keeper.
	Wasted int64 `json:"wasted" yaml:"wasted"`
}

// DupeReport carries the duplicate groups found under one root.
type DupeReport struct {
	// Root is the scanned root.
	Root string

	// FilesExamined is the number of files the scan looked at.
	FilesExamined int64

	// Groups are the duplicate sets, largest waste first.
	Groups []DupeGroup

	// TotalWasted is the reclaimable bytes across all groups.
	TotalWasted int64

	// Elapsed is the total scan and grouping time.
	Elapsed time.Duration
}

// PlanReport carries one expanded plan.
type PlanReport struct {
	Plan *types.Plan
}

// ExecutionReport carries one execution record, fresh from a run or
// loaded from history.
type ExecutionReport struct {
	Record *types.ExecutionRecord
}

// HistoryReport carries execution records, newest first.
type HistoryReport struct {
	Records []types.ExecutionRecord
}

// CacheReport carries fingerprint cache statistics.
type CacheReport struct {
	// Path is the cache location on disk.
	Path string

	// Entries is the number of live cache entries.
	Entries int

	// SizeOnDisk is the cache footprint in bytes.
	SizeOnDisk int64

	// Cleared indicates the cache was just emptied.
	Cleared bool
}

// Formatter is the interface that all output formatters must implement.
// Each method writes one report kind to the buffer and returns an error
// if formatting fails.
type Formatter interface {
	FormatScan(w *bytes.Buffer, r *ScanReport) error
	FormatDupes(w *bytes.Buffer, r *DupeReport) error
	FormatPlan(w *bytes.Buffer, r *PlanReport) error
	FormatExecution(w *bytes.Buffer, r *ExecutionReport) error
	FormatHistory(w *bytes.Buffer, r *HistoryReport) error
	FormatCache(w *bytes.Buffer, r *CacheReport) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// operandSummary renders the operand portion of an operation, without
// the verb. The verb lives in its own column.
func operandSummary(op *types.Operation) string {
	switch op.Kind {
	case types.OpMove:
		return op.Source + " -> " + op.Destination
	case types.OpDelete:
		return op.Path
	case types.OpCreateDir:
		return op.Path
	case types.OpCompress:
		return fmt.Sprintf("%d inputs -> %s", len(op.Paths), op.ArchivePath)
	case types.OpRetag:
		return fmt.Sprintf("%s [%s]", op.Path, strings.Join(op.Tags, " "))
	default:
		return ""
	}
}

// modeLabel names the execution mode for display.
func modeLabel(dryRun bool) string {
	if dryRun {
		return "dry-run"
	}
	return "commit"
}

// execDuration returns how long a finished run took, or zero while it
// is still in flight.
func execDuration(rec *types.ExecutionRecord) time.Duration {
	if rec.StartedAt.IsZero() || rec.FinishedAt.IsZero() {
		return 0
	}
	return rec.FinishedAt.Sub(rec.StartedAt)
}
