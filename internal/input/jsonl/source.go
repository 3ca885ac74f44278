// Package jsonl reads raw sensor partitions laid out on disk as
// {dataset}/raw_sensor/{domain}/dayPK=YYYYMMDD[/hour=HH]/*.jsonl.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"entitygraph/internal/logger"
	"entitygraph/internal/transform/wintap"
	"entitygraph/pkg/models"
)

const (
	rawDir   = "raw_sensor"
	labelDir = "labels"

	defaultMaxLineBytes = 16 * 1024 * 1024
)

// Config configures the directory source.
type Config struct {
	Dataset      string
	MaxLineBytes int
}

// Source loads partitions from a dataset directory.
type Source struct {
	root    string
	maxLine int
}

// NewSource validates the dataset directory.
func NewSource(cfg Config) (*Source, error) {
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	info, err := os.Stat(filepath.Join(cfg.Dataset, rawDir))
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", filepath.Join(cfg.Dataset, rawDir))
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = defaultMaxLineBytes
	}
	return &Source{root: cfg.Dataset, maxLine: cfg.MaxLineBytes}, nil
}

func (s *Source) domainDirs() (map[models.Domain]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, rawDir))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawDir, err)
	}
	out := make(map[models.Domain]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, ok := models.ParseDomain(e.Name())
		if !ok {
			logger.Warnf("Ignoring unknown domain directory %s", e.Name())
			continue
		}
		out[d] = filepath.Join(s.root, rawDir, e.Name())
	}
	return out, nil
}

// Partitions lists every dayPK (and hour, where present) found under any
// domain, sorted.
func (s *Source) Partitions(ctx context.Context) ([]models.Partition, error) {
	dirs, err := s.domainDirs()
	if err != nil {
		return nil, err
	}
	seen := make(map[models.Partition]struct{})
	for _, dir := range dirs {
		days, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, day := range days {
			if !day.IsDir() {
				continue
			}
			p, err := models.ParsePartition(day.Name())
			if err != nil {
				logger.Debugf("Skipping %s: %v", day.Name(), err)
				continue
			}
			hours, err := hourPartitions(filepath.Join(dir, day.Name()), p)
			if err != nil {
				return nil, err
			}
			for _, h := range hours {
				seen[h] = struct{}{}
			}
		}
	}

	out := make([]models.Partition, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	models.SortPartitions(out)
	return out, nil
}

// hourPartitions returns the hour partitions below a day directory, plus the
// day itself when it holds files directly.
func hourPartitions(dir string, day models.Partition) ([]models.Partition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []models.Partition
	direct := false
	for _, e := range entries {
		if !e.IsDir() {
			if isJSONL(e.Name()) {
				direct = true
			}
			continue
		}
		p, err := models.ParsePartition(day.String() + "/" + e.Name())
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if direct {
		out = append(out, day)
	}
	return out, nil
}

// Load reads every domain file of p plus its external labels.
func (s *Source) Load(ctx context.Context, p models.Partition) (*models.Batch, error) {
	dirs, err := s.domainDirs()
	if err != nil {
		return nil, err
	}
	batch := models.NewBatch(p)
	var size uint64
	files := 0

	for _, domain := range models.Domains {
		dir, ok := dirs[domain]
		if !ok {
			continue
		}
		paths, err := jsonlFiles(filepath.Join(dir, filepath.FromSlash(p.String())))
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			n, err := s.readFile(path, func(line []byte) error {
				ev, err := wintap.Parse(domain, p, line)
				if err != nil {
					return err
				}
				batch.Add(ev)
				return nil
			})
			if err != nil {
				return nil, err
			}
			size += n
			files++
		}
	}

	labelPaths, err := jsonlFiles(filepath.Join(s.root, labelDir, filepath.FromSlash(p.String())))
	if err != nil {
		return nil, err
	}
	for _, path := range labelPaths {
		n, err := s.readFile(path, func(line []byte) error {
			var l models.DetectionLabel
			if err := json.Unmarshal(line, &l); err != nil {
				return err
			}
			if l.Source == "" {
				l.Source = models.LabelSourceExternal
			}
			batch.Labels = append(batch.Labels, l)
			return nil
		})
		if err != nil {
			return nil, err
		}
		size += n
		files++
	}

	logger.Infof("Loaded %s: %d events, %d labels from %d files (%s)",
		p, batch.Len(), len(batch.Labels), files, humanize.Bytes(size))
	return batch, nil
}

// readFile calls fn for every non-blank line and returns the bytes read.
// A line that fails to decode aborts the file.
func (s *Source) readFile(path string, fn func([]byte) error) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var size uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		size += uint64(len(line)) + 1
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return size, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return size, fmt.Errorf("read %s: %w", path, err)
	}
	return size, nil
}

func jsonlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isJSONL(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func isJSONL(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".jsonl") || strings.HasSuffix(lower, ".json")
}
