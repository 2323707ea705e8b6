package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// jsonScan is the full JSON scan document.
type jsonScan struct {
	Records []types.ScanRecord `json:"records"`
	Stats   jsonScanStats      `json:"stats"`
	Meta    jsonScanMeta       `json:"meta"`
}

// jsonScanStats carries the scan counters.
type jsonScanStats struct {
	DirsScanned    int64  `json:"dirs_scanned"`
	FilesScanned   int64  `json:"files_scanned"`
	TotalSize      int64  `json:"total_size"`
	TotalSizeHuman string `json:"total_size_human"`
	Fingerprinted  int64  `json:"fingerprinted"`
	CacheHits      int64  `json:"cache_hits"`
	Duration       string `json:"duration"`
}

// jsonScanMeta carries scan identity and errors.
type jsonScanMeta struct {
	ID        string            `json:"id"`
	Root      string            `json:"root"`
	Status    types.ScanStatus  `json:"status"`
	Truncated bool              `json:"truncated"`
	StartedAt time.Time         `json:"started_at"`
	Errors    []types.ScanError `json:"errors,omitempty"`
}

// jsonDupes is the full JSON duplicate document.
type jsonDupes struct {
	Groups  []DupeGroup     `json:"groups"`
	Summary jsonDupeSummary `json:"summary"`
}

// jsonDupeSummary aggregates the duplicate groups.
type jsonDupeSummary struct {
	Root             string `json:"root"`
	FilesExamined    int64  `json:"files_examined"`
	Groups           int    `json:"groups"`
	TotalWasted      int64  `json:"total_wasted"`
	TotalWastedHuman string `json:"total_wasted_human"`
	Duration         string `json:"duration"`
}

// jsonPlan embeds the canonical plan document and adds a summary.
type jsonPlan struct {
	*types.Plan
	Summary jsonPlanSummary `json:"summary"`
}

// jsonPlanSummary counts the plan's operations.
type jsonPlanSummary struct {
	Ops    int            `json:"ops"`
	ByKind map[string]int `json:"by_kind"`
}

// jsonExecution embeds the canonical execution record and adds derived
// fields.
type jsonExecution struct {
	*types.ExecutionRecord
	Summary jsonExecSummary `json:"summary"`
}

// jsonExecSummary carries the derived presentation fields of a run.
type jsonExecSummary struct {
	BytesFreedHuman string `json:"bytes_freed_human"`
	Duration        string `json:"duration,omitempty"`
}

// jsonHistory is the full JSON history document.
type jsonHistory struct {
	Executions []jsonHistoryEntry `json:"executions"`
	Count      int                `json:"count"`
}

// jsonHistoryEntry is one execution in the history listing.
type jsonHistoryEntry struct {
	ID                string                   `json:"id"`
	Status            types.ExecStatus         `json:"status"`
	Mode              string                   `json:"mode"`
	Kind              types.RecommendationKind `json:"kind,omitempty"`
	Ops               int                      `json:"ops"`
	BytesFreed        int64                    `json:"bytes_freed"`
	RollbackAvailable bool                     `json:"rollback_available"`
	RollbackOf        string                   `json:"rollback_of,omitempty"`
	FinishedAt        time.Time                `json:"finished_at"`
}

// jsonCache is the JSON cache statistics document.
type jsonCache struct {
	Path       string `json:"path"`
	Entries    int    `json:"entries"`
	SizeOnDisk int64  `json:"size_on_disk"`
	SizeHuman  string `json:"size_human"`
	Cleared    bool   `json:"cleared,omitempty"`
}

// JSONFormatter formats reports as indented JSON.
type JSONFormatter struct{}

// FormatScan writes the scan report as JSON.
func (f *JSONFormatter) FormatScan(w *bytes.Buffer, r *ScanReport) error {
	res := r.Result
	records := r.Rows
	if records == nil {
		records = []types.ScanRecord{}
	}

	return encodeJSON(w, jsonScan{
		Records: records,
		Stats: jsonScanStats{
			DirsScanned:    res.DirsScanned,
			FilesScanned:   res.FilesScanned,
			TotalSize:      res.TotalSize,
			TotalSizeHuman: types.FormatSize(res.TotalSize),
			Fingerprinted:  res.Fingerprinted,
			CacheHits:      res.CacheHits,
			Duration:       formatDurationString(res.Elapsed),
		},
		Meta: jsonScanMeta{
			ID:        res.ID,
			Root:      res.Root,
			Status:    res.Status,
			Truncated: res.Truncated,
			StartedAt: res.StartedAt,
			Errors:    res.Errors,
		},
	})
}

// FormatDupes writes the duplicate report as JSON.
func (f *JSONFormatter) FormatDupes(w *bytes.Buffer, r *DupeReport) error {
	groups := r.Groups
	if groups == nil {
		groups = []DupeGroup{}
	}

	return encodeJSON(w, jsonDupes{
		Groups: groups,
		Summary: jsonDupeSummary{
			Root:             r.Root,
			FilesExamined:    r.FilesExamined,
			Groups:           len(r.Groups),
			TotalWasted:      r.TotalWasted,
			TotalWastedHuman: types.FormatSize(r.TotalWasted),
			Duration:         formatDurationString(r.Elapsed),
		},
	})
}

// FormatPlan writes the plan report as JSON. The plan fields keep
// their canonical names so the document stays diffable against plan
// files.
func (f *JSONFormatter) FormatPlan(w *bytes.Buffer, r *PlanReport) error {
	byKind := make(map[string]int)
	for i := range r.Plan.Ops {
		byKind[string(r.Plan.Ops[i].Kind)]++
	}

	return encodeJSON(w, jsonPlan{
		Plan: r.Plan,
		Summary: jsonPlanSummary{
			Ops:    len(r.Plan.Ops),
			ByKind: byKind,
		},
	})
}

// FormatExecution writes the execution report as JSON.
func (f *JSONFormatter) FormatExecution(w *bytes.Buffer, r *ExecutionReport) error {
	return encodeJSON(w, jsonExecution{
		ExecutionRecord: r.Record,
		Summary: jsonExecSummary{
			BytesFreedHuman: types.FormatSize(r.Record.Counters.BytesFreed),
			Duration:        formatDurationString(execDuration(r.Record)),
		},
	})
}

// FormatHistory writes the history listing as JSON.
func (f *JSONFormatter) FormatHistory(w *bytes.Buffer, r *HistoryReport) error {
	entries := make([]jsonHistoryEntry, len(r.Records))
	for i := range r.Records {
		rec := &r.Records[i]
		entries[i] = jsonHistoryEntry{
			ID:                rec.ID,
			Status:            rec.Status,
			Mode:              recordMode(rec),
			Kind:              rec.Kind,
			Ops:               len(rec.Ops),
			BytesFreed:        rec.Counters.BytesFreed,
			RollbackAvailable: rec.RollbackAvailable,
			RollbackOf:        rec.RollbackOf,
			FinishedAt:        rec.FinishedAt,
		}
	}

	return encodeJSON(w, jsonHistory{
		Executions: entries,
		Count:      len(entries),
	})
}

// FormatCache writes the cache statistics as JSON.
func (f *JSONFormatter) FormatCache(w *bytes.Buffer, r *CacheReport) error {
	return encodeJSON(w, jsonCache{
		Path:       r.Path,
		Entries:    r.Entries,
		SizeOnDisk: r.SizeOnDisk,
		SizeHuman:  types.FormatSize(r.SizeOnDisk),
		Cleared:    r.Cleared,
	})
}

// encodeJSON writes v to the buffer with two-space indentation.
func encodeJSON(w *bytes.Buffer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatDurationString formats a duration as its string form, with
// zero rendered as empty.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
