package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

func writeFile(t *testing.T, path, body string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func dataset(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "raw_sensor", "raw_process", "dayPK=20240101", "part-0.jsonl"),
		`{"PidHash":"P1","ProcessName":"cmd.exe","EventTime":133485408000000000}`+"\n\n"+
			`{"PidHash":"P2","ProcessName":"a.exe"}`+"\n")
	writeFile(t, filepath.Join(root, "raw_sensor", "raw_process_file", "dayPK=20240101", "part-0.jsonl"),
		`{"PidHash":"P1","Filename":"C:\\x.txt","ActivityType":"READ"}`+"\n")
	writeFile(t, filepath.Join(root, "raw_sensor", "raw_process", "dayPK=20240102", "hour=07", "a.jsonl"),
		`{"PidHash":"P9"}`+"\n")
	writeFile(t, filepath.Join(root, "raw_sensor", "unknown_domain", "dayPK=20240105", "a.jsonl"), "{}\n")
	writeFile(t, filepath.Join(root, "labels", "dayPK=20240101", "labels.jsonl"),
		`{"pid_hash":"P1","rule_id":"ext-1","severity":"high"}`+"\n")
	return root
}

func TestPartitions(t *testing.T) {
	src, err := NewSource(Config{Dataset: dataset(t)})
	require.NoError(t, err)
	parts, err := src.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Partition{
		{DayPK: "20240101"},
		{DayPK: "20240102", Hour: "07"},
	}, parts)
}

func TestLoad(t *testing.T) {
	src, err := NewSource(Config{Dataset: dataset(t)})
	require.NoError(t, err)
	batch, err := src.Load(context.Background(), models.DayPartition("20240101"))
	require.NoError(t, err)

	procs := batch.Domain(models.DomainProcess)
	require.Len(t, procs, 2)
	assert.Equal(t, "P1", procs[0].Text(models.FieldPidHash))
	assert.Equal(t, models.DayPartition("20240101"), procs[0].Partition)
	assert.Len(t, batch.Domain(models.DomainFile), 1)

	require.Len(t, batch.Labels, 1)
	assert.Equal(t, models.LabelSourceExternal, batch.Labels[0].Source)
	assert.Equal(t, "ext-1", batch.Labels[0].RuleID)

	hour, err := src.Load(context.Background(), models.Partition{DayPK: "20240102", Hour: "07"})
	require.NoError(t, err)
	assert.Equal(t, 1, hour.Len())

	empty, err := src.Load(context.Background(), models.DayPartition("20991231"))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestLoadCorruptRecord(t *testing.T) {
	root := dataset(t)
	writeFile(t, filepath.Join(root, "raw_sensor", "raw_process", "dayPK=20240103", "bad.jsonl"), "{\"PidHash\":\n")
	src, err := NewSource(Config{Dataset: root})
	require.NoError(t, err)
	_, err = src.Load(context.Background(), models.DayPartition("20240103"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:1")
}

func TestNewSourceValidates(t *testing.T) {
	_, err := NewSource(Config{})
	assert.Error(t, err)
	_, err = NewSource(Config{Dataset: t.TempDir()})
	assert.Error(t, err)
}
