package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainFormatter_FormatScan_BasicOutput(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatScan(&buf, sampleScanReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SIZE")
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "/data/movies/big.mkv")
	assert.Contains(t, out, "1.0 GiB")
	assert.Contains(t, out, "video")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SIZE"))
}

func TestPlainFormatter_FormatScan_NoColors(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatScan(&buf, sampleScanReport())
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainFormatter_FormatScan_EmptyRows(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	report := sampleScanReport()
	report.Rows = nil

	err := formatter.FormatScan(&buf, report)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 1)
}

func TestPlainFormatter_FormatDupes(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatDupes(&buf, sampleDupeReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "deadbeefcafe1234")
	assert.Contains(t, out, "/data/a.jpg")
	assert.Equal(t, 1, strings.Count(out, "keep"))
	assert.Equal(t, 2, strings.Count(out, "dupe"))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
}

func TestPlainFormatter_FormatPlan(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatPlan(&buf, samplePlanReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, "mkdir")
	assert.Contains(t, out, "move")
	assert.Contains(t, out, "/data/a.txt -> /data/sorted/a.txt")
}

func TestPlainFormatter_FormatExecution(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatExecution(&buf, sampleExecutionReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "id\texec-1\n")
	assert.Contains(t, out, "plan\tplan-1\n")
	assert.Contains(t, out, "mode\tcommit\n")
	assert.Contains(t, out, "status\tfailed\n")
	assert.Contains(t, out, "freed\t4096\n")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "/data/tmp/junk.log")
	assert.Contains(t, out, "no such file or directory")
}

func TestPlainFormatter_FormatHistory(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatHistory(&buf, sampleHistoryReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "exec-1")
	assert.Contains(t, out, "exec-0")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "2026-02-10T09:00:03Z")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
}

func TestPlainFormatter_FormatCache(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatCache(&buf, sampleCacheReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "path\t/home/u/.cache/tidyfs/fingerprints\n")
	assert.Contains(t, out, "entries\t1200\n")
	assert.Contains(t, out, "size_on_disk\t524288\n")
	assert.NotContains(t, out, "cleared")
}

func TestPlainFormatter_FormatCache_Cleared(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	report := sampleCacheReport()
	report.Cleared = true

	err := formatter.FormatCache(&buf, report)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "cleared\ttrue\n")
}

func TestPlainFormatter_Registration(t *testing.T) {
	f, err := Get("plain")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, f)
}
