package output

import (
	"bytes"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// yamlScan is the full YAML scan document.
type yamlScan struct {
	Records []yamlRecord  `yaml:"records"`
	Stats   yamlScanStats `yaml:"stats"`
	Meta    yamlScanMeta  `yaml:"meta"`
}

// yamlRecord represents one scanned entry in YAML output.
type yamlRecord struct {
	Path        string    `yaml:"path"`
	Name        string    `yaml:"name"`
	Ext         string    `yaml:"ext,omitempty"`
	Size        int64     `yaml:"size"`
	SizeHuman   string    `yaml:"size_human"`
	IsDir       bool      `yaml:"is_dir"`
	IsSymlink   bool      `yaml:"is_symlink"`
	ModTime     time.Time `yaml:"mod_time,omitempty"`
	Fingerprint string    `yaml:"fingerprint,omitempty"`
	Category    string    `yaml:"category"`
	Tags        []string  `yaml:"tags,omitempty"`
}

// yamlScanStats represents scan counters in YAML output.
type yamlScanStats struct {
	DirsScanned    int64  `yaml:"dirs_scanned"`
	FilesScanned   int64  `yaml:"files_scanned"`
	TotalSize      int64  `yaml:"total_size"`
	TotalSizeHuman string `yaml:"total_size_human"`
	Fingerprinted  int64  `yaml:"fingerprinted"`
	CacheHits      int64  `yaml:"cache_hits"`
	Duration       string `yaml:"duration"`
}

// yamlScanMeta represents scan identity and errors in YAML output.
type yamlScanMeta struct {
	ID        string          `yaml:"id"`
	Root      string          `yaml:"root"`
	Status    string          `yaml:"status"`
	Truncated bool            `yaml:"truncated"`
	StartedAt time.Time       `yaml:"started_at"`
	Errors    []yamlScanError `yaml:"errors,omitempty"`
}

// yamlScanError represents one per-path error in YAML output.
type yamlScanError struct {
	Path    string `yaml:"path"`
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
}

// yamlDupes is the full YAML duplicate document.
type yamlDupes struct {
	Groups  []DupeGroup     `yaml:"groups"`
	Summary yamlDupeSummary `yaml:"summary"`
}

// yamlDupeSummary aggregates the duplicate groups.
type yamlDupeSummary struct {
	Root             string `yaml:"root"`
	FilesExamined    int64  `yaml:"files_examined"`
	Groups           int    `yaml:"groups"`
	TotalWasted      int64  `yaml:"total_wasted"`
	TotalWastedHuman string `yaml:"total_wasted_human"`
	Duration         string `yaml:"duration"`
}

// yamlOp represents one operation in YAML output. Outcome and Message
// are set only when rendering execution results.
type yamlOp struct {
	Seq          int      `yaml:"seq"`
	Kind         string   `yaml:"kind"`
	Source       string   `yaml:"source,omitempty"`
	Destination  string   `yaml:"destination,omitempty"`
	Path         string   `yaml:"path,omitempty"`
	Paths        []string `yaml:"paths,omitempty"`
	ArchivePath  string   `yaml:"archive_path,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
	VerifySource string   `yaml:"verify_source,omitempty"`
	Outcome      string   `yaml:"outcome,omitempty"`
	Message      string   `yaml:"message,omitempty"`
}

// yamlPlan is the full YAML plan document.
type yamlPlan struct {
	ID               string          `yaml:"id"`
	RecommendationID string          `yaml:"recommendation_id,omitempty"`
	Kind             string          `yaml:"kind"`
	CreatedAt        time.Time       `yaml:"created_at"`
	Ops              []yamlOp        `yaml:"ops"`
	Summary          yamlPlanSummary `yaml:"summary"`
}

// yamlPlanSummary counts the plan's operations.
type yamlPlanSummary struct {
	Ops    int            `yaml:"ops"`
	ByKind map[string]int `yaml:"by_kind"`
}

// yamlExecution is the full YAML execution document.
type yamlExecution struct {
	ID                string          `yaml:"id"`
	PlanID            string          `yaml:"plan_id"`
	Kind              string          `yaml:"kind,omitempty"`
	DryRun            bool            `yaml:"dry_run"`
	Status            string          `yaml:"status"`
	RollbackAvailable bool            `yaml:"rollback_available"`
	RollbackOf        string          `yaml:"rollback_of,omitempty"`
	Ops               []yamlOp        `yaml:"ops"`
	Counters          yamlCounters    `yaml:"counters"`
	CreatedAt         time.Time       `yaml:"created_at"`
	StartedAt         time.Time       `yaml:"started_at,omitempty"`
	FinishedAt        time.Time       `yaml:"finished_at,omitempty"`
	Summary           yamlExecSummary `yaml:"summary"`
}

// yamlCounters aggregates per-operation outcomes in YAML output.
type yamlCounters struct {
	Attempted  int   `yaml:"attempted"`
	Succeeded  int   `yaml:"succeeded"`
	Failed     int   `yaml:"failed"`
	Skipped    int   `yaml:"skipped"`
	BytesFreed int64 `yaml:"bytes_freed"`
}

// yamlExecSummary carries the derived presentation fields of a run.
type yamlExecSummary struct {
	BytesFreedHuman string `yaml:"bytes_freed_human"`
	Duration        string `yaml:"duration,omitempty"`
}

// yamlHistory is the full YAML history document.
type yamlHistory struct {
	Executions []yamlHistoryEntry `yaml:"executions"`
	Count      int                `yaml:"count"`
}

// yamlHistoryEntry is one execution in the history listing.
type yamlHistoryEntry struct {
	ID                string    `yaml:"id"`
	Status            string    `yaml:"status"`
	Mode              string    `yaml:"mode"`
	Kind              string    `yaml:"kind,omitempty"`
	Ops               int       `yaml:"ops"`
	BytesFreed        int64     `yaml:"bytes_freed"`
	RollbackAvailable bool      `yaml:"rollback_available"`
	RollbackOf        string    `yaml:"rollback_of,omitempty"`
	FinishedAt        time.Time `yaml:"finished_at,omitempty"`
}

// yamlCache is the YAML cache statistics document.
type yamlCache struct {
	Path       string `yaml:"path"`
	Entries    int    `yaml:"entries"`
	SizeOnDisk int64  `yaml:"size_on_disk"`
	SizeHuman  string `yaml:"size_human"`
	Cleared    bool   `yaml:"cleared,omitempty"`
}

// YAMLFormatter formats reports as YAML.
// It produces the same structure as JSONFormatter but in YAML format.
type YAMLFormatter struct{}

// FormatScan writes the scan report as YAML.
func (f *YAMLFormatter) FormatScan(w *bytes.Buffer, r *ScanReport) error {
	return encodeYAML(w, f.buildScan(r))
}

// buildScan converts a scan report to the YAML output structure.
func (f *YAMLFormatter) buildScan(r *ScanReport) yamlScan {
	res := r.Result

	records := make([]yamlRecord, len(r.Rows))
	for i := range r.Rows {
		rec := &r.Rows[i]
		records[i] = yamlRecord{
			Path:        rec.Path,
			Name:        rec.Name,
			Ext:         rec.Ext,
			Size:        rec.Size,
			SizeHuman:   rec.HumanSize(),
			IsDir:       rec.IsDir,
			IsSymlink:   rec.IsSymlink,
			ModTime:     rec.ModTime,
			Fingerprint: rec.Fingerprint,
			Category:    string(rec.Category),
			Tags:        rec.Tags,
		}
	}

	errs := make([]yamlScanError, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = yamlScanError{Path: e.Path, Kind: string(e.Kind), Message: e.Message}
	}

	return yamlScan{
		Records: records,
		Stats: yamlScanStats{
			DirsScanned:    res.DirsScanned,
			FilesScanned:   res.FilesScanned,
			TotalSize:      res.TotalSize,
			TotalSizeHuman: types.FormatSize(res.TotalSize),
			Fingerprinted:  res.Fingerprinted,
			CacheHits:      res.CacheHits,
			Duration:       formatDurationString(res.Elapsed),
		},
		Meta: yamlScanMeta{
			ID:        res.ID,
			Root:      res.Root,
			Status:    string(res.Status),
			Truncated: res.Truncated,
			StartedAt: res.StartedAt,
			Errors:    errs,
		},
	}
}

// FormatDupes writes the duplicate report as YAML.
func (f *YAMLFormatter) FormatDupes(w *bytes.Buffer, r *DupeReport) error {
	groups := r.Groups
	if groups == nil {
		groups = []DupeGroup{}
	}

	return encodeYAML(w, yamlDupes{
		Groups: groups,
		Summary: yamlDupeSummary{
			Root:             r.Root,
			FilesExamined:    r.FilesExamined,
			Groups:           len(r.Groups),
			TotalWasted:      r.TotalWasted,
			TotalWastedHuman: types.FormatSize(r.TotalWasted),
			Duration:         formatDurationString(r.Elapsed),
		},
	})
}

// FormatPlan writes the plan report as YAML.
func (f *YAMLFormatter) FormatPlan(w *bytes.Buffer, r *PlanReport) error {
	p := r.Plan

	ops := make([]yamlOp, len(p.Ops))
	byKind := make(map[string]int)
	for i := range p.Ops {
		ops[i] = buildYAMLOp(&p.Ops[i])
		byKind[string(p.Ops[i].Kind)]++
	}

	return encodeYAML(w, yamlPlan{
		ID:               p.ID,
		RecommendationID: p.RecommendationID,
		Kind:             string(p.Kind),
		CreatedAt:        p.CreatedAt,
		Ops:              ops,
		Summary: yamlPlanSummary{
			Ops:    len(p.Ops),
			ByKind: byKind,
		},
	})
}

// FormatExecution writes the execution report as YAML.
func (f *YAMLFormatter) FormatExecution(w *bytes.Buffer, r *ExecutionReport) error {
	return encodeYAML(w, f.buildExecution(r.Record))
}

// buildExecution converts an execution record to the YAML output
// structure.
func (f *YAMLFormatter) buildExecution(rec *types.ExecutionRecord) yamlExecution {
	ops := make([]yamlOp, len(rec.Ops))
	for i := range rec.Ops {
		res := &rec.Ops[i]
		ops[i] = buildYAMLOp(&res.Operation)
		ops[i].Outcome = string(res.Outcome)
		ops[i].Message = res.Message
	}

	return yamlExecution{
		ID:                rec.ID,
		PlanID:            rec.PlanID,
		Kind:              string(rec.Kind),
		DryRun:            rec.DryRun,
		Status:            string(rec.Status),
		RollbackAvailable: rec.RollbackAvailable,
		RollbackOf:        rec.RollbackOf,
		Ops:               ops,
		Counters: yamlCounters{
			Attempted:  rec.Counters.Attempted,
			Succeeded:  rec.Counters.Succeeded,
			Failed:     rec.Counters.Failed,
			Skipped:    rec.Counters.Skipped,
			BytesFreed: rec.Counters.BytesFreed,
		},
		CreatedAt:  rec.CreatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Summary: yamlExecSummary{
			BytesFreedHuman: types.FormatSize(rec.Counters.BytesFreed),
			Duration:        formatDurationString(execDuration(rec)),
		},
	}
}

// FormatHistory writes the history listing as YAML.
func (f *YAMLFormatter) FormatHistory(w *bytes.Buffer, r *HistoryReport) error {
	entries := make([]yamlHistoryEntry, len(r.Records))
	for i := range r.Records {
		rec := &r.Records[i]
		entries[i] = yamlHistoryEntry{
			ID:                rec.ID,
			Status:            string(rec.Status),
			Mode:              recordMode(rec),
			Kind:              string(rec.Kind),
			Ops:               len(rec.Ops),
			BytesFreed:        rec.Counters.BytesFreed,
			RollbackAvailable: rec.RollbackAvailable,
			RollbackOf:        rec.RollbackOf,
			FinishedAt:        rec.FinishedAt,
		}
	}

	return encodeYAML(w, yamlHistory{
		Executions: entries,
		Count:      len(entries),
	})
}

// FormatCache writes the cache statistics as YAML.
func (f *YAMLFormatter) FormatCache(w *bytes.Buffer, r *CacheReport) error {
	return encodeYAML(w, yamlCache{
		Path:       r.Path,
		Entries:    r.Entries,
		SizeOnDisk: r.SizeOnDisk,
		SizeHuman:  types.FormatSize(r.SizeOnDisk),
		Cleared:    r.Cleared,
	})
}

// buildYAMLOp converts one operation to its YAML form.
func buildYAMLOp(op *types.Operation) yamlOp {
	return yamlOp{
		Seq:          op.Seq,
		Kind:         string(op.Kind),
		Source:       op.Source,
		Destination:  op.Destination,
		Path:         op.Path,
		Paths:        op.Paths,
		ArchivePath:  op.ArchivePath,
		Tags:         op.Tags,
		VerifySource: op.VerifySource,
	}
}

// encodeYAML writes v to the buffer with two-space indentation.
func encodeYAML(w *bytes.Buffer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

// Ensure YAMLFormatter implements Formatter.
var _ Formatter = (*YAMLFormatter)(nil)
