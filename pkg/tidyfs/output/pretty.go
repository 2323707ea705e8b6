package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// PrettyFormatter formats reports with colors and styling using
// lipgloss. It produces a visually appealing output suitable for
// terminal display.
type PrettyFormatter struct{}

// FormatScan writes the formatted scan report to the buffer.
func (f *PrettyFormatter) FormatScan(w *bytes.Buffer, r *ScanReport) error {
	res := r.Result

	var lines []string
	lines = append(lines, labelValue("Root:", res.Root))

	scanned := fmt.Sprintf("%d files, %d dirs in %s",
		res.FilesScanned, res.DirsScanned, formatDuration(res.Elapsed))
	info := []string{labelValue("Scanned:", scanned)}
	if res.CacheHits > 0 {
		info = append(info, labelValue("Cache:", fmt.Sprintf("%d hits", res.CacheHits)))
	}
	lines = append(lines, strings.Join(info, "  "))

	if res.Truncated {
		lines = append(lines, WarningStyle.Bold(true).Render("File ceiling reached; results are partial"))
	}
	if res.Status == types.ScanCancelled {
		lines = append(lines, WarningStyle.Bold(true).Render("Scan cancelled; results are partial"))
	}

	w.WriteString(HeaderBox.Render(strings.Join(lines, "\n")))
	w.WriteString("\n")

	w.WriteString(f.scanTable(r.Rows))

	parts := []string{
		labelValue("Files:", fmt.Sprintf("%d", res.FilesScanned)),
		LabelStyle.Render("Total:") + " " + SizeStyle.Render(types.FormatSize(res.TotalSize)),
		labelValue("Fingerprinted:", fmt.Sprintf("%d", res.Fingerprinted)),
	}
	w.WriteString(FooterBox.Render(strings.Join(parts, "  ")))

	if len(res.Errors) > 0 {
		w.WriteString("\n")
		w.WriteString(f.errorBlock(res.Errors))
	}

	return nil
}

// scanTable builds the entry table with SIZE, CATEGORY and PATH columns.
func (f *PrettyFormatter) scanTable(rows []types.ScanRecord) string {
	if len(rows) == 0 {
		return MutedStyle.Render("  No entries to show") + "\n"
	}

	sizeWidth, catWidth := 8, 8
	for i := range rows {
		if n := len(rows[i].HumanSize()); n > sizeWidth {
			sizeWidth = n
		}
		if n := len(string(rows[i].Category)); n > catWidth {
			catWidth = n
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padLeft("SIZE", sizeWidth)),
		TableHeaderStyle.Render(padRight("CATEGORY", catWidth)),
		TableHeaderStyle.Render("PATH")))

	for i := range rows {
		rec := &rows[i]
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			SizeStyle.Render(padLeft(rec.HumanSize(), sizeWidth)),
			MutedStyle.Render(padRight(string(rec.Category), catWidth)),
			PathStyle.Render(rec.Path)))
	}

	return sb.String()
}

// errorBlock renders the per-path errors a scan or run accumulated.
func (f *PrettyFormatter) errorBlock(errs []types.ScanError) string {
	lines := make([]string, 0, len(errs)+1)
	lines = append(lines, ErrorStyle.Bold(true).Render(fmt.Sprintf("%d paths could not be read:", len(errs))))
	for _, e := range errs {
		lines = append(lines, fmt.Sprintf("%s  %s",
			PathStyle.Render(e.Path), MutedStyle.Render(e.Message)))
	}
	return ErrorBox.Render(strings.Join(lines, "\n"))
}

// FormatDupes writes the formatted duplicate report to the buffer.
func (f *PrettyFormatter) FormatDupes(w *bytes.Buffer, r *DupeReport) error {
	header := []string{
		labelValue("Root:", r.Root),
		labelValue("Examined:", fmt.Sprintf("%d files in %s", r.FilesExamined, formatDuration(r.Elapsed))),
	}
	w.WriteString(HeaderBox.Render(strings.Join(header, "\n")))
	w.WriteString("\n")

	if len(r.Groups) == 0 {
		w.WriteString(SuccessStyle.Render("No duplicate files found") + "\n")
		return nil
	}

	for _, g := range r.Groups {
		w.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			SizeStyle.Render(types.FormatSize(g.Size)),
			ValueStyle.Render(fmt.Sprintf("%d copies", len(g.Paths))),
			MutedStyle.Render(shortFingerprint(g.Fingerprint))))
		for i, p := range g.Paths {
			role := MutedStyle.Render("dupe")
			if i == 0 {
				role = SuccessStyle.Render("keep")
			}
			w.WriteString(fmt.Sprintf("    %s  %s\n", role, PathStyle.Render(p)))
		}
		w.WriteString("\n")
	}

	parts := []string{
		labelValue("Groups:", fmt.Sprintf("%d", len(r.Groups))),
		LabelStyle.Render("Reclaimable:") + " " + SizeStyle.Render(types.FormatSize(r.TotalWasted)),
		MutedStyle.Render("Write a recommendation with --emit-rec"),
	}
	w.WriteString(FooterBox.Render(strings.Join(parts, "  ")))

	return nil
}

// FormatPlan writes the formatted plan report to the buffer.
func (f *PrettyFormatter) FormatPlan(w *bytes.Buffer, r *PlanReport) error {
	p := r.Plan

	header := []string{labelValue("Plan:", p.ID)}
	info := []string{
		labelValue("Kind:", string(p.Kind)),
		labelValue("Ops:", fmt.Sprintf("%d", len(p.Ops))),
	}
	if p.RecommendationID != "" {
		info = append(info, labelValue("From:", p.RecommendationID))
	}
	header = append(header, strings.Join(info, "  "))
	w.WriteString(HeaderBox.Render(strings.Join(header, "\n")))
	w.WriteString("\n")

	w.WriteString(f.opTable(p.Ops, nil))

	footer := []string{
		ValueStyle.Render(kindTally(p.Ops)),
		MutedStyle.Render("Dry-run it with: tidyfs apply -f <recommendation>"),
	}
	w.WriteString(FooterBox.Render(strings.Join(footer, "  ")))

	return nil
}

// opTable renders operations one per line. When results is non-nil it
// must parallel ops and each line carries the outcome mark and message.
func (f *PrettyFormatter) opTable(ops []types.Operation, results []types.OperationResult) string {
	if len(ops) == 0 {
		return MutedStyle.Render("  No operations") + "\n"
	}

	verbWidth := 6
	for i := range ops {
		if n := len(kindVerb(ops[i].Kind)); n > verbWidth {
			verbWidth = n
		}
	}

	var sb strings.Builder
	for i := range ops {
		op := &ops[i]
		line := fmt.Sprintf("  %s  %s",
			ValueStyle.Render(padRight(kindVerb(op.Kind), verbWidth)),
			PathStyle.Render(operandSummary(op)))

		if results != nil {
			mark, style := outcomeMark(results[i].Outcome)
			line = fmt.Sprintf("  %s%s", style.Render(mark), line)
			if msg := results[i].Message; msg != "" {
				msgStyle := MutedStyle
				if results[i].Outcome == types.OutcomeFailed {
					msgStyle = ErrorStyle
				}
				line += "  " + msgStyle.Render(msg)
			}
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatExecution writes the formatted execution report to the buffer.
func (f *PrettyFormatter) FormatExecution(w *bytes.Buffer, r *ExecutionReport) error {
	rec := r.Record

	mode := ValueStyle.Render(modeLabel(rec.DryRun))
	if rec.DryRun {
		mode = WarningStyle.Bold(true).Render("DRY-RUN")
	}

	header := []string{labelValue("Execution:", rec.ID)}
	info := []string{
		labelValue("Plan:", rec.PlanID),
		LabelStyle.Render("Mode:") + " " + mode,
		LabelStyle.Render("Status:") + " " + statusStyle(rec.Status).Render(string(rec.Status)),
	}
	header = append(header, strings.Join(info, "  "))
	if rec.RollbackOf != "" {
		header = append(header, labelValue("Rollback of:", rec.RollbackOf))
	}
	w.WriteString(HeaderBox.Render(strings.Join(header, "\n")))
	w.WriteString("\n")

	ops := make([]types.Operation, len(rec.Ops))
	for i := range rec.Ops {
		ops[i] = rec.Ops[i].Operation
	}
	w.WriteString(f.opTable(ops, rec.Ops))

	c := rec.Counters
	counters := []string{
		labelValue("Ops:", fmt.Sprintf("%d", len(rec.Ops))),
		labelValue("Succeeded:", fmt.Sprintf("%d", c.Succeeded)),
	}
	if c.Failed > 0 {
		counters = append(counters, LabelStyle.Render("Failed:")+" "+ErrorStyle.Render(fmt.Sprintf("%d", c.Failed)))
	}
	if c.Skipped > 0 {
		counters = append(counters, labelValue("Skipped:", fmt.Sprintf("%d", c.Skipped)))
	}
	if c.BytesFreed > 0 {
		counters = append(counters, LabelStyle.Render("Freed:")+" "+SizeStyle.Render(types.FormatSize(c.BytesFreed)))
	}
	if d := execDuration(rec); d > 0 {
		counters = append(counters, labelValue("Took:", formatDuration(d)))
	}

	footer := []string{strings.Join(counters, "  ")}
	if rec.DryRun {
		footer = append(footer, WarningStyle.Render("Dry run only; nothing was changed. Re-run with --commit to apply."))
	}
	if rec.RollbackAvailable {
		footer = append(footer, MutedStyle.Render("Undo with: tidyfs rollback "+rec.ID))
	}
	w.WriteString(FooterBox.Render(strings.Join(footer, "\n")))

	return nil
}

// FormatHistory writes the formatted history listing to the buffer.
func (f *PrettyFormatter) FormatHistory(w *bytes.Buffer, r *HistoryReport) error {
	if len(r.Records) == 0 {
		w.WriteString(MutedStyle.Render("No executions recorded") + "\n")
		return nil
	}

	finWidth, statusWidth, modeWidth, kindWidth, freedWidth := 8, 6, 7, 4, 5
	rows := make([][5]string, len(r.Records))
	for i := range r.Records {
		rec := &r.Records[i]
		rows[i] = [5]string{
			relativeTime(rec.FinishedAt),
			string(rec.Status),
			recordMode(rec),
			string(rec.Kind),
			freedColumn(rec.Counters.BytesFreed),
		}
		if n := len(rows[i][0]); n > finWidth {
			finWidth = n
		}
		if n := len(rows[i][1]); n > statusWidth {
			statusWidth = n
		}
		if n := len(rows[i][2]); n > modeWidth {
			modeWidth = n
		}
		if n := len(rows[i][3]); n > kindWidth {
			kindWidth = n
		}
		if n := len(rows[i][4]); n > freedWidth {
			freedWidth = n
		}
	}

	w.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("FINISHED", finWidth)),
		TableHeaderStyle.Render(padRight("STATUS", statusWidth)),
		TableHeaderStyle.Render(padRight("MODE", modeWidth)),
		TableHeaderStyle.Render(padRight("KIND", kindWidth)),
		TableHeaderStyle.Render(padLeft("FREED", freedWidth)),
		TableHeaderStyle.Render("ID")))

	undoable := false
	for i := range r.Records {
		rec := &r.Records[i]
		id := ValueStyle.Render(rec.ID)
		if rec.RollbackAvailable {
			id += SuccessStyle.Render(" *")
			undoable = true
		}
		w.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s  %s\n",
			MutedStyle.Render(padRight(rows[i][0], finWidth)),
			statusStyle(rec.Status).Render(padRight(rows[i][1], statusWidth)),
			ValueStyle.Render(padRight(rows[i][2], modeWidth)),
			ValueStyle.Render(padRight(rows[i][3], kindWidth)),
			SizeStyle.Render(padLeft(rows[i][4], freedWidth)),
			id))
	}

	footer := []string{labelValue("Executions:", fmt.Sprintf("%d", len(r.Records)))}
	if undoable {
		footer = append(footer, MutedStyle.Render("* can be rolled back"))
	}
	footer = append(footer, MutedStyle.Render("Details with: tidyfs history show <id>"))
	w.WriteString(FooterBox.Render(strings.Join(footer, "  ")))

	return nil
}

// FormatCache writes the formatted cache report to the buffer.
func (f *PrettyFormatter) FormatCache(w *bytes.Buffer, r *CacheReport) error {
	lines := []string{
		TitleStyle.Render("Fingerprint cache"),
		labelValue("Path:", r.Path),
		labelValue("Entries:", fmt.Sprintf("%d", r.Entries)) + "  " +
			LabelStyle.Render("On disk:") + " " + SizeStyle.Render(types.FormatSize(r.SizeOnDisk)),
	}
	w.WriteString(HeaderBox.Render(strings.Join(lines, "\n")))
	w.WriteString("\n")

	if r.Cleared {
		w.WriteString(SuccessStyle.Render("Cache cleared") + "\n")
	}

	return nil
}

// labelValue joins a muted label with its value.
func labelValue(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

// kindVerb names an operation kind in its short display form.
func kindVerb(k types.OpKind) string {
	if k == types.OpCreateDir {
		return "mkdir"
	}
	return string(k)
}

// kindTally summarizes operations as "mkdir 2  move 3".
func kindTally(ops []types.Operation) string {
	counts := make(map[types.OpKind]int)
	for i := range ops {
		counts[ops[i].Kind]++
	}
	order := []types.OpKind{types.OpCreateDir, types.OpMove, types.OpDelete, types.OpCompress, types.OpRetag}
	var parts []string
	for _, k := range order {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", kindVerb(k), n))
		}
	}
	return strings.Join(parts, "  ")
}

// outcomeMark returns the single-rune mark and style for an outcome.
func outcomeMark(o types.OpOutcome) (string, lipgloss.Style) {
	switch o {
	case types.OutcomeSucceeded:
		return "✓", SuccessStyle
	case types.OutcomeFailed:
		return "✗", ErrorStyle
	case types.OutcomeSkipped:
		return "-", MutedStyle
	default:
		return "·", MutedStyle
	}
}

// statusStyle picks the style for an execution status.
func statusStyle(s types.ExecStatus) lipgloss.Style {
	switch s {
	case types.ExecCompleted:
		return SuccessStyle
	case types.ExecFailed:
		return ErrorStyle
	case types.ExecCancelled:
		return WarningStyle
	case types.ExecRolledBack:
		return MutedStyle
	default:
		return ValueStyle
	}
}

// recordMode names how a history record ran.
func recordMode(rec *types.ExecutionRecord) string {
	if rec.RollbackOf != "" {
		return "rollback"
	}
	return modeLabel(rec.DryRun)
}

// relativeTime renders a timestamp relative to now, or "-" when unset.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// freedColumn renders reclaimed bytes, or "-" when nothing was freed.
func freedColumn(n int64) string {
	if n <= 0 {
		return "-"
	}
	return types.FormatSize(n)
}

// shortFingerprint truncates a fingerprint for display.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// padRight pads a string with spaces on the right to achieve the desired width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
