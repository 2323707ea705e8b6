package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// PlainFormatter formats reports as simple tab-separated tables.
// It produces plain text output suitable for scripting and piping.
// No colors or styling are applied.
type PlainFormatter struct{}

// FormatScan writes the scan rows as an aligned table.
func (f *PlainFormatter) FormatScan(w *bytes.Buffer, r *ScanReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("SIZE\tCATEGORY\tPATH\n")); err != nil {
		return err
	}
	for i := range r.Rows {
		rec := &r.Rows[i]
		line := rec.HumanSize() + "\t" + string(rec.Category) + "\t" + rec.Path + "\n"
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// FormatDupes writes one line per duplicate file, keeper first in each
// group.
func (f *PlainFormatter) FormatDupes(w *bytes.Buffer, r *DupeReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("FINGERPRINT\tSIZE\tROLE\tPATH\n")); err != nil {
		return err
	}
	for _, g := range r.Groups {
		for i, p := range g.Paths {
			role := "dupe"
			if i == 0 {
				role = "keep"
			}
			line := g.Fingerprint + "\t" + types.FormatSize(g.Size) + "\t" + role + "\t" + p + "\n"
			if _, err := tw.Write([]byte(line)); err != nil {
				return err
			}
		}
	}

	return tw.Flush()
}

// FormatPlan writes the plan operations one per line.
func (f *PlainFormatter) FormatPlan(w *bytes.Buffer, r *PlanReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("SEQ\tOP\tTARGET\n")); err != nil {
		return err
	}
	for i := range r.Plan.Ops {
		op := &r.Plan.Ops[i]
		line := fmt.Sprintf("%d\t%s\t%s\n", op.Seq, kindVerb(op.Kind), operandSummary(op))
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// FormatExecution writes the run metadata as key-value lines followed
// by one line per operation. The metadata lines keep a literal tab so
// they stay cut-friendly.
func (f *PlainFormatter) FormatExecution(w *bytes.Buffer, r *ExecutionReport) error {
	rec := r.Record

	fmt.Fprintf(w, "id\t%s\n", rec.ID)
	fmt.Fprintf(w, "plan\t%s\n", rec.PlanID)
	fmt.Fprintf(w, "mode\t%s\n", modeLabel(rec.DryRun))
	fmt.Fprintf(w, "status\t%s\n", rec.Status)
	fmt.Fprintf(w, "freed\t%d\n", rec.Counters.BytesFreed)

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	if _, err := tw.Write([]byte("SEQ\tOUTCOME\tOP\tTARGET\tMESSAGE\n")); err != nil {
		return err
	}
	for i := range rec.Ops {
		res := &rec.Ops[i]
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\n",
			res.Seq, res.Outcome, kindVerb(res.Kind), operandSummary(&res.Operation), res.Message)
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// FormatHistory writes one line per execution, newest first.
func (f *PlainFormatter) FormatHistory(w *bytes.Buffer, r *HistoryReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("ID\tSTATUS\tMODE\tKIND\tOPS\tFREED\tUNDOABLE\tFINISHED\n")); err != nil {
		return err
	}
	for i := range r.Records {
		rec := &r.Records[i]
		undoable := "no"
		if rec.RollbackAvailable {
			undoable = "yes"
		}
		finished := "-"
		if !rec.FinishedAt.IsZero() {
			finished = rec.FinishedAt.Format(time.RFC3339)
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			rec.ID, rec.Status, recordMode(rec), rec.Kind,
			len(rec.Ops), rec.Counters.BytesFreed, undoable, finished)
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// FormatCache writes the cache statistics as key-value lines.
func (f *PlainFormatter) FormatCache(w *bytes.Buffer, r *CacheReport) error {
	fmt.Fprintf(w, "path\t%s\n", r.Path)
	fmt.Fprintf(w, "entries\t%d\n", r.Entries)
	fmt.Fprintf(w, "size_on_disk\t%d\n", r.SizeOnDisk)
	if r.Cleared {
		fmt.Fprintf(w, "cleared\ttrue\n")
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
