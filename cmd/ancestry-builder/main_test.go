package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/graph/ancestry"
)

const processes = `{"pid_hash":"A","parent_pid_hash":null,"process_name":"system"}
{"pid_hash":"B","parent_pid_hash":"A","process_name":"services.exe"}

{"pid_hash":"C","parent_pid_hash":"B","process_name":"svchost.exe","hostname":"H1"}
`

func TestReadProcesses(t *testing.T) {
	procs, err := readProcesses(strings.NewReader(processes))
	require.NoError(t, err)
	require.Len(t, procs, 3)
	assert.Equal(t, "", procs[0].ParentPidHash)
	assert.Equal(t, "B", procs[2].ParentPidHash)
	assert.Equal(t, "H1", procs[2].Hostname)

	_, err = readProcesses(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestWritePaths(t *testing.T) {
	procs, err := readProcesses(strings.NewReader(processes))
	require.NoError(t, err)
	paths, err := ancestry.Build(context.Background(), procs, ancestry.Options{Workers: 2})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "ancestry.jsonl")
	require.NoError(t, writePaths(out, paths))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	byPid := make(map[string][]interface{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		byPid[row["pid_hash"].(string)] = row["path"].([]interface{})
	}
	require.Len(t, byPid, 3)
	assert.Equal(t, []interface{}{"C", "B", "A"}, byPid["C"])
}
