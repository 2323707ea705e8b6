package filter

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/lo"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// Filter defines criteria for narrowing, sorting, and limiting scan records.
// All criteria combine with AND; within a repeated criterion (categories,
// extensions, name patterns) any one value may match. The zero value
// matches every record and sorts by path ascending.
type Filter struct {
	// MinSize is the inclusive minimum size in bytes. Zero means no bound.
	MinSize int64

	// MaxSize is the exclusive upper size bound in bytes. Zero means no bound.
	MaxSize int64

	// Categories restricts results to records in any listed category.
	Categories []types.Category

	// Extensions restricts results to records with any listed extension
	// (e.g. ".png", ".pdf").
	Extensions []string

	// Tags lists tags a record must all carry.
	Tags []string

	// Names contains glob patterns matched against the base name. If
	// non-empty, records must match at least one.
	Names []string

	// Paths contains glob patterns matched against the full path with
	// '/' as separator. If non-empty, records must match at least one.
	Paths []string

	// Exclude contains glob patterns; records whose base name or full
	// path matches any pattern are dropped.
	Exclude []string

	// OlderThan excludes records modified more recently than this
	// duration ago.
	OlderThan time.Duration

	// NewerThan excludes records modified longer ago than this duration.
	NewerThan time.Duration

	// Kind restricts results to one entry kind. KindAny keeps all.
	Kind Kind

	// SortBy specifies the field to sort results by.
	SortBy SortField

	// SortDescending specifies whether to sort in descending order.
	SortDescending bool

	// Limit is the maximum number of records to return. Zero means
	// unlimited.
	Limit int
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a Filter with the given options. Without options the
// filter passes every record through unchanged, sorted by path.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithMinSize sets the inclusive minimum size in bytes.
// If minSize < 0, it is set to 0.
func WithMinSize(minSize int64) Option {
	return func(f *Filter) {
		if minSize < 0 {
			minSize = 0
		}
		f.MinSize = minSize
	}
}

// WithMaxSize sets the exclusive upper size bound in bytes.
// If maxSize < 0, it is set to 0 (no bound).
func WithMaxSize(maxSize int64) Option {
	return func(f *Filter) {
		if maxSize < 0 {
			maxSize = 0
		}
		f.MaxSize = maxSize
	}
}

// WithCategories restricts results to the listed categories.
func WithCategories(categories ...types.Category) Option {
	return func(f *Filter) {
		f.Categories = categories
	}
}

// WithExtensions sets the file extensions to include.
// Extensions are normalized: lowercase and prefixed with "." if missing.
func WithExtensions(extensions ...string) Option {
	return func(f *Filter) {
		normalized := make([]string, 0, len(extensions))
		for _, ext := range extensions {
			normalized = append(normalized, normalizeExt(ext))
		}
		f.Extensions = normalized
	}
}

// WithTags sets the tags a record must all carry.
func WithTags(tags ...string) Option {
	return func(f *Filter) {
		f.Tags = tags
	}
}

// WithNames sets the base-name glob patterns.
// If any are specified, records must match at least one.
func WithNames(patterns ...string) Option {
	return func(f *Filter) {
		f.Names = patterns
	}
}

// WithPaths sets the full-path glob patterns.
// If any are specified, records must match at least one.
func WithPaths(patterns ...string) Option {
	return func(f *Filter) {
		f.Paths = patterns
	}
}

// WithExclude sets the exclude glob patterns.
// Records matching any pattern by base name or full path are dropped.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithOlderThan sets the minimum age of records to include.
func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) {
		f.OlderThan = d
	}
}

// WithNewerThan sets the maximum age of records to include.
func WithNewerThan(d time.Duration) Option {
	return func(f *Filter) {
		f.NewerThan = d
	}
}

// WithKind restricts results to one entry kind.
func WithKind(k Kind) Option {
	return func(f *Filter) {
		f.Kind = k
	}
}

// WithSortBy sets the field to sort results by.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithSortDescending sets whether to sort in descending order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// WithLimit sets the maximum number of records to return.
// If limit < 0, it is set to 0 (unlimited).
func WithLimit(limit int) Option {
	return func(f *Filter) {
		if limit < 0 {
			limit = 0
		}
		f.Limit = limit
	}
}

// normalizeExt lowercases an extension and ensures the leading dot.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// globSet holds the compiled pattern matchers for one filter pass.
// Exclude patterns are compiled twice: once for base names and once
// with '/' as separator for full paths.
type globSet struct {
	names        []glob.Glob
	paths        []glob.Glob
	excludeBase  []glob.Glob
	excludePaths []glob.Glob
}

// compileGlobs compiles the filter's patterns. Invalid patterns are
// skipped; Parse validates patterns up front so this only drops
// patterns set directly on a malformed Filter.
func (f *Filter) compileGlobs() globSet {
	var gs globSet
	for _, p := range f.Names {
		if g, err := glob.Compile(p); err == nil {
			gs.names = append(gs.names, g)
		}
	}
	for _, p := range f.Paths {
		if g, err := glob.Compile(p, '/'); err == nil {
			gs.paths = append(gs.paths, g)
		}
	}
	for _, p := range f.Exclude {
		if g, err := glob.Compile(p); err == nil {
			gs.excludeBase = append(gs.excludeBase, g)
		}
		if g, err := glob.Compile(p, '/'); err == nil {
			gs.excludePaths = append(gs.excludePaths, g)
		}
	}
	return gs
}

// Match returns true if the record matches all filter criteria.
func (f *Filter) Match(rec types.ScanRecord) bool {
	return f.match(rec, f.compileGlobs())
}

func (f *Filter) match(rec types.ScanRecord, gs globSet) bool {
	if !f.matchKind(rec) {
		return false
	}
	if !f.matchSize(rec) {
		return false
	}
	if !f.matchCategory(rec) {
		return false
	}
	if !f.matchExtension(rec) {
		return false
	}
	if !f.matchAge(rec) {
		return false
	}
	if !f.matchTags(rec) {
		return false
	}
	return f.matchPatterns(rec, gs)
}

// matchKind checks if the record is of the selected entry kind.
func (f *Filter) matchKind(rec types.ScanRecord) bool {
	switch f.Kind {
	case KindFile:
		return !rec.IsDir && !rec.IsSymlink
	case KindDir:
		return rec.IsDir
	case KindSymlink:
		return rec.IsSymlink
	default:
		return true
	}
}

// matchSize checks if the record falls inside the size bounds.
func (f *Filter) matchSize(rec types.ScanRecord) bool {
	if f.MinSize > 0 && rec.Size < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && rec.Size >= f.MaxSize {
		return false
	}
	return true
}

// matchCategory checks if the record is in an allowed category.
func (f *Filter) matchCategory(rec types.ScanRecord) bool {
	return len(f.Categories) == 0 || slices.Contains(f.Categories, rec.Category)
}

// matchExtension checks if the record has an allowed extension.
func (f *Filter) matchExtension(rec types.ScanRecord) bool {
	if len(f.Extensions) == 0 {
		return true
	}
	return slices.Contains(f.Extensions, strings.ToLower(rec.Ext))
}

// matchAge checks if the record meets the age requirements.
func (f *Filter) matchAge(rec types.ScanRecord) bool {
	now := time.Now()

	if f.OlderThan > 0 && rec.ModTime.After(now.Add(-f.OlderThan)) {
		return false
	}
	if f.NewerThan > 0 && rec.ModTime.Before(now.Add(-f.NewerThan)) {
		return false
	}
	return true
}

// matchTags checks that the record carries every required tag.
func (f *Filter) matchTags(rec types.ScanRecord) bool {
	return len(f.Tags) == 0 || lo.Every(rec.Tags, f.Tags)
}

// matchPatterns checks the record against name, path, and exclude globs.
func (f *Filter) matchPatterns(rec types.ScanRecord, gs globSet) bool {
	if matchesAny(rec.Name, gs.excludeBase) || matchesAny(rec.Path, gs.excludePaths) {
		return false
	}
	if len(gs.names) > 0 && !matchesAny(rec.Name, gs.names) {
		return false
	}
	if len(gs.paths) > 0 && !matchesAny(rec.Path, gs.paths) {
		return false
	}
	return true
}

// matchesAny returns true if s matches any of the compiled globs.
func matchesAny(s string, globs []glob.Glob) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of the records based on the filter's sort
// settings. The original slice is not modified.
func (f *Filter) Sort(records []types.ScanRecord) []types.ScanRecord {
	if len(records) == 0 {
		return []types.ScanRecord{}
	}

	sorted := make([]types.ScanRecord, len(records))
	copy(sorted, records)

	slices.SortFunc(sorted, func(a, b types.ScanRecord) int {
		var result int
		switch f.SortBy {
		case SortSize:
			result = cmp.Compare(a.Size, b.Size)
		case SortAge:
			// Age runs opposite to the timestamp: ascending age puts
			// the most recently modified records first.
			result = -a.ModTime.Compare(b.ModTime)
		case SortName:
			result = cmp.Compare(a.Name, b.Name)
		case SortCategory:
			result = cmp.Compare(string(a.Category), string(b.Category))
		default:
			result = cmp.Compare(a.Path, b.Path)
		}
		if result == 0 {
			// Paths are unique within a scan, so this keeps the order
			// deterministic for equal keys.
			result = cmp.Compare(a.Path, b.Path)
		}

		if f.SortDescending {
			return -result
		}
		return result
	})

	return sorted
}

// Apply runs the complete pipeline: Match, Sort, and Limit. It returns
// a new slice containing only the records that pass all criteria,
// sorted according to the filter settings and truncated to the limit.
func (f *Filter) Apply(records []types.ScanRecord) []types.ScanRecord {
	gs := f.compileGlobs()

	var matched []types.ScanRecord
	for _, rec := range records {
		if f.match(rec, gs) {
			matched = append(matched, rec)
		}
	}

	sorted := f.Sort(matched)

	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
