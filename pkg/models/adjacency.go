package models

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// AdjacencyRow is a vertex or edge of the exported entity graph.
type AdjacencyRow struct {
	Timestamp  time.Time              `json:"ts"`
	RecordType string                 `json:"record_type"` // vertex or edge
	Type       string                 `json:"type"`
	VertexID   string                 `json:"vertex_id"`
	AdjacentID string                 `json:"adjacent_id,omitempty"`
	Hostname   string                 `json:"host,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// AdjacencyColumns is the schema of process_graph.
var AdjacencyColumns = []Column{
	{"ts", TypeTimestamp},
	{"record_type", TypeVarchar},
	{"type", TypeVarchar},
	{"vertex_id", TypeVarchar},
	{"adjacent_id", TypeVarchar},
	{"host", TypeVarchar},
	{"data", TypeJSON},
}

func (r AdjacencyRow) Row() *ordereddict.Dict {
	var data interface{}
	if len(r.Data) > 0 {
		data = r.Data
	}
	return ordereddict.NewDict().
		Set("ts", nullTime(r.Timestamp)).
		Set("record_type", r.RecordType).
		Set("type", r.Type).
		Set("vertex_id", r.VertexID).
		Set("adjacent_id", nullString(r.AdjacentID)).
		Set("host", nullString(r.Hostname)).
		Set("data", data)
}
