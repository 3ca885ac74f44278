package tablejson

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

func table(rows ...models.DetectionLabel) *models.Table {
	return models.ToTable("process_label", models.DetectionLabelColumns, rows)
}

func TestWriteTableReplaces(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	p := models.DayPartition("20240101")

	require.NoError(t, w.WriteTable(context.Background(), p, table(
		models.DetectionLabel{PidHash: "P1", Source: "sigma", RuleID: "r1"},
		models.DetectionLabel{PidHash: "P2", Source: "sigma"},
	)))
	path := filepath.Join(root, "rolling", "process_label", "dayPK=20240101", "process_label.jsonl")
	assert.Equal(t, path, w.Path(p, "process_label"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "P1", first["pid_hash"])
	assert.Equal(t, "r1", first["rule_id"])
	assert.Nil(t, first["severity"])
	assert.Less(t, strings.Index(lines[0], `"pid_hash"`), strings.Index(lines[0], `"technique"`))

	// A rerun overwrites rather than appends.
	require.NoError(t, w.WriteTable(context.Background(), p, table(models.DetectionLabel{PidHash: "P3"})))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestWriteEmptyTable(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	p := models.Partition{DayPK: "20240101", Hour: "03"}
	require.NoError(t, w.WriteTable(context.Background(), p, table()))
	info, err := os.Stat(w.Path(p, "process_label"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
	assert.Contains(t, w.Path(p, "process_label"), filepath.Join("dayPK=20240101", "hour=03"))
}
