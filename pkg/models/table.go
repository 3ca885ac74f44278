package models

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// ColumnType is the logical type of an output column.
type ColumnType string

const (
	TypeVarchar   ColumnType = "VARCHAR"
	TypeBigInt    ColumnType = "BIGINT"
	TypeDouble    ColumnType = "DOUBLE"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeJSON      ColumnType = "JSON"
)

// Column is one typed output column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is a named, typed set of rows. Row keys follow Columns order.
type Table struct {
	Name    string
	Columns []Column
	Rows    []*ordereddict.Dict
}

// NewTable returns an empty table with the given schema.
func NewTable(name string, columns []Column) *Table {
	return &Table{Name: name, Columns: columns}
}

// Append adds a row.
func (t *Table) Append(row *ordereddict.Dict) {
	t.Rows = append(t.Rows, row)
}

// Len returns the row count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ToTable builds a table from rows exposing Row().
func ToTable[T interface{ Row() *ordereddict.Dict }](name string, columns []Column, rows []T) *Table {
	t := NewTable(name, columns)
	t.Rows = make([]*ordereddict.Dict, 0, len(rows))
	for _, r := range rows {
		t.Append(r.Row())
	}
	return t
}

// PartitionColumns prefix every persisted row in partitioned sinks.
var PartitionColumns = []Column{
	{"day_pk", TypeVarchar},
	{"hour", TypeVarchar},
}

// WithPartition returns a copy of row prefixed with the partition columns.
func WithPartition(p Partition, row *ordereddict.Dict) *ordereddict.Dict {
	out := ordereddict.NewDict().
		Set("day_pk", p.DayPK).
		Set("hour", p.Hour)
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		out.Set(k, v)
	}
	return out
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullMin(v int64) interface{} {
	if v <= 0 {
		return nil
	}
	return v
}
