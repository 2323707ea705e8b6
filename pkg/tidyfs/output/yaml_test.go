package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeYAML(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))
	return parsed
}

func TestYAMLFormatter_FormatScan_BasicOutput(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatScan(&buf, sampleScanReport())
	require.NoError(t, err)

	parsed := decodeYAML(t, &buf)
	assert.Contains(t, parsed, "records")
	assert.Contains(t, parsed, "stats")
	assert.Contains(t, parsed, "meta")

	records := parsed["records"].([]interface{})
	require.Len(t, records, 2)
	first := records[0].(map[string]interface{})
	assert.Equal(t, "/data/movies/big.mkv", first["path"])
	assert.Equal(t, "video", first["category"])
	assert.Equal(t, "1.0 GiB", first["size_human"])

	meta := parsed["meta"].(map[string]interface{})
	assert.Equal(t, "/data", meta["root"])
	assert.Equal(t, "completed", meta["status"])
}

func TestYAMLFormatter_FormatDupes(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatDupes(&buf, sampleDupeReport())
	require.NoError(t, err)

	parsed := decodeYAML(t, &buf)
	groups := parsed["groups"].([]interface{})
	require.Len(t, groups, 1)
	group := groups[0].(map[string]interface{})
	assert.Equal(t, "deadbeefcafe1234", group["fingerprint"])

	summary := parsed["summary"].(map[string]interface{})
	assert.Equal(t, 2097152, summary["total_wasted"])
	assert.Equal(t, "2.0 MiB", summary["total_wasted_human"])
}

func TestYAMLFormatter_FormatPlan(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatPlan(&buf, samplePlanReport())
	require.NoError(t, err)

	parsed := decodeYAML(t, &buf)
	assert.Equal(t, "plan-1", parsed["id"])
	assert.Equal(t, "reorganize", parsed["kind"])

	ops := parsed["ops"].([]interface{})
	require.Len(t, ops, 2)
	second := ops[1].(map[string]interface{})
	assert.Equal(t, "move", second["kind"])
	assert.Equal(t, "/data/a.txt", second["source"])

	summary := parsed["summary"].(map[string]interface{})
	byKind := summary["by_kind"].(map[string]interface{})
	assert.Equal(t, 1, byKind["create_directory"])
}

func TestYAMLFormatter_FormatExecution(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatExecution(&buf, sampleExecutionReport())
	require.NoError(t, err)

	parsed := decodeYAML(t, &buf)
	assert.Equal(t, "exec-1", parsed["id"])
	assert.Equal(t, "failed", parsed["status"])
	assert.Equal(t, true, parsed["rollback_available"])

	ops := parsed["ops"].([]interface{})
	require.Len(t, ops, 2)
	assert.Equal(t, "succeeded", ops[0].(map[string]interface{})["outcome"])

	counters := parsed["counters"].(map[string]interface{})
	assert.Equal(t, 4096, counters["bytes_freed"])

	summary := parsed["summary"].(map[string]interface{})
	assert.Equal(t, "4.0 KiB", summary["bytes_freed_human"])
}

func TestYAMLFormatter_FormatHistory(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatHistory(&buf, sampleHistoryReport())
	require.NoError(t, err)

	parsed := decodeYAML(t, &buf)
	assert.Equal(t, 2, parsed["count"])

	executions := parsed["executions"].([]interface{})
	require.Len(t, executions, 2)
	first := executions[0].(map[string]interface{})
	assert.Equal(t, "exec-1", first["id"])
	assert.Equal(t, "commit", first["mode"])
	_, present := first["rollback_of"]
	assert.False(t, present, "empty rollback_of must be omitted")
}

func TestYAMLFormatter_FormatCache(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatCache(&buf, sampleCacheReport())
	require.NoError(t, err)

	parsed := decodeYAML(t, &buf)
	assert.Equal(t, 1200, parsed["entries"])
	assert.Equal(t, "512 KiB", parsed["size_human"])
}

func TestYAMLFormatter_SameStructureAsJSON(t *testing.T) {
	var jsonBuf, yamlBuf bytes.Buffer

	require.NoError(t, (&JSONFormatter{}).FormatScan(&jsonBuf, sampleScanReport()))
	require.NoError(t, (&YAMLFormatter{}).FormatScan(&yamlBuf, sampleScanReport()))

	var fromJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &fromJSON))
	fromYAML := decodeYAML(t, &yamlBuf)

	jsonKeys := make([]string, 0, len(fromJSON))
	for k := range fromJSON {
		jsonKeys = append(jsonKeys, k)
	}
	yamlKeys := make([]string, 0, len(fromYAML))
	for k := range fromYAML {
		yamlKeys = append(yamlKeys, k)
	}
	assert.ElementsMatch(t, jsonKeys, yamlKeys)
}

func TestYAMLFormatter_Indented(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	err := formatter.FormatScan(&buf, sampleScanReport())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "stats:\n")
	assert.Contains(t, out, "  dirs_scanned:")
}

func TestYAMLFormatter_Registration(t *testing.T) {
	f, err := Get("yaml")
	require.NoError(t, err)
	assert.IsType(t, &YAMLFormatter{}, f)
}
