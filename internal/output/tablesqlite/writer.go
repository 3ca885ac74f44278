// Package tablesqlite stores entity tables in a single SQLite database, one
// SQL table per entity table, partitioned by day_pk and hour columns.
package tablesqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"entitygraph/internal/logger"
	"entitygraph/pkg/models"
)

// Writer replaces a partition's rows per table inside one transaction.
type Writer struct {
	mu      sync.Mutex
	db      *sql.DB
	created map[string]bool
}

// NewWriter opens (or creates) the database at path.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	logger.Infof("SQLite table writer initialized: %s", path)
	return &Writer{db: db, created: make(map[string]bool)}, nil
}

// DB exposes the handle for readers.
func (w *Writer) DB() *sql.DB {
	return w.db
}

func sqlType(t models.ColumnType) string {
	switch t {
	case models.TypeBigInt, models.TypeBoolean:
		return "INTEGER"
	case models.TypeDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// CreateStatement is the DDL of a table.
func CreateStatement(name string, columns []models.Column) string {
	cols := append(append([]models.Column(nil), models.PartitionColumns...), columns...)
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Name)+" "+sqlType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

// InsertStatement is the parameterized insert of a table.
func InsertStatement(name string, columns []models.Column) string {
	cols := append(append([]models.Column(nil), models.PartitionColumns...), columns...)
	names := make([]string, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(name), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// encode maps a row value onto its SQLite storage class.
func encode(t models.ColumnType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case models.TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339Nano), nil
		}
	case models.TypeBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case models.TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// WriteTable deletes the partition's previous rows and inserts t.
func (w *Writer) WriteTable(ctx context.Context, p models.Partition, t *models.Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.created[t.Name] {
		if _, err := w.db.ExecContext(ctx, CreateStatement(t.Name, t.Columns)); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
		w.created[t.Name] = true
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", t.Name, err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM %s WHERE day_pk = ? AND hour = ?", quoteIdent(t.Name))
	if _, err := tx.ExecContext(ctx, del, p.DayPK, p.Hour); err != nil {
		return fmt.Errorf("clear %s for %s: %w", t.Name, p, err)
	}

	stmt, err := tx.PrepareContext(ctx, InsertStatement(t.Name, t.Columns))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", t.Name, err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(t.Columns)+2)
	for _, row := range t.Rows {
		args[0], args[1] = p.DayPK, p.Hour
		for i, c := range t.Columns {
			v, _ := row.Get(c.Name)
			enc, err := encode(c.Type, v)
			if err != nil {
				return fmt.Errorf("encode %s.%s: %w", t.Name, c.Name, err)
			}
			args[i+2] = enc
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", t.Name, err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.db.Close()
}
