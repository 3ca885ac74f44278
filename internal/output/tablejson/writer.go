// Package tablejson writes entity tables as JSON lines under
// {root}/rolling/{table}/dayPK=YYYYMMDD[/hour=HH]/{table}.jsonl.
package tablejson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"entitygraph/internal/logger"
	"entitygraph/pkg/models"
)

// Writer replaces one file per table and partition.
type Writer struct {
	root string
}

// NewWriter creates a JSONL table writer rooted at root.
func NewWriter(root string) (*Writer, error) {
	if root == "" {
		return nil, fmt.Errorf("output root is empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	logger.Infof("Table JSON writer initialized: %s", root)
	return &Writer{root: root}, nil
}

// Path returns the file a table of partition p is written to.
func (w *Writer) Path(p models.Partition, table string) string {
	return filepath.Join(w.root, "rolling", table, filepath.FromSlash(p.String()), table+".jsonl")
}

// WriteTable writes t to a temporary file and renames it over the previous
// output, so readers never see a partial table.
func (w *Writer) WriteTable(ctx context.Context, p models.Partition, t *models.Table) error {
	path := w.Path(p, t.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+t.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for _, row := range t.Rows {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return err
		}
		if err := enc.Encode(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode %s row: %w", t.Name, err)
		}
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	logger.Debugf("Wrote %d rows to %s", t.Len(), path)
	return nil
}

// Close is a no-op; every table is closed as it is written.
func (w *Writer) Close() error {
	return nil
}
