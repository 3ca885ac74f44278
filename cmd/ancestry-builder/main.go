package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"entitygraph/internal/graph/ancestry"
	"entitygraph/pkg/models"
)

// processRow is the subset of a process table row the walk needs.
type processRow struct {
	PidHash       string `json:"pid_hash"`
	ParentPidHash string `json:"parent_pid_hash"`
	Hostname      string `json:"hostname"`
	ProcessName   string `json:"process_name"`
	OSPid         *int64 `json:"os_pid"`
}

func main() {
	input := flag.String("input", "output/process.jsonl", "Process table JSONL input path")
	output := flag.String("output", "output/process_ancestry.jsonl", "Ancestry JSONL output path")
	maxDepth := flag.Int("max-depth", 0, "Maximum hops per path (0 means unbounded)")
	workers := flag.Int("workers", 4, "Concurrent walk workers")
	flag.Parse()

	procs, err := loadProcesses(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load processes: %v\n", err)
		os.Exit(1)
	}

	paths, err := ancestry.Build(context.Background(), procs, ancestry.Options{MaxDepth: *maxDepth, Workers: *workers})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build ancestry: %v\n", err)
		os.Exit(1)
	}

	if err := writePaths(*output, paths); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write ancestry: %v\n", err)
		os.Exit(1)
	}

	stats := ancestry.Summarize(paths)
	fmt.Printf("processes=%d paths=%d cycles=%d missing_parent=%d truncated=%d max_depth=%d output=%s\n",
		len(procs), len(paths), stats.Cycles, stats.MissingParent, stats.Truncated, stats.MaxDepth, *output)
}

func loadProcesses(path string) ([]models.Process, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readProcesses(f)
}

func readProcesses(r io.Reader) ([]models.Process, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var procs []models.Process
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var row processRow
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		procs = append(procs, models.Process{
			PidHash:       row.PidHash,
			ParentPidHash: row.ParentPidHash,
			Hostname:      row.Hostname,
			ProcessName:   row.ProcessName,
			OSPid:         row.OSPid,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return procs, nil
}

func writePaths(path string, paths []models.AncestryPath) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, p := range paths {
		if err := enc.Encode(p.Row()); err != nil {
			return fmt.Errorf("encode path: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
