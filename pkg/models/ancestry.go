package models

import "github.com/Velocidex/ordereddict"

// AncestryStep is one hop of an ancestry path.
type AncestryStep struct {
	PidHash     string `json:"pid_hash"`
	ProcessName string `json:"process_name,omitempty"`
	OSPid       *int64 `json:"os_pid,omitempty"`
}

// AncestryPath is the leaf-to-root chain of one process.
type AncestryPath struct {
	PidHash       string         `json:"pid_hash"`
	Depth         int            `json:"depth"`
	RootPidHash   string         `json:"root_pid_hash"`
	Path          []string       `json:"path"`
	PathNames     []string       `json:"path_names"`
	Steps         []AncestryStep `json:"steps"`
	CycleDetected bool           `json:"cycle_detected"`
	ParentMissing bool           `json:"parent_missing"`
	Truncated     bool           `json:"truncated"`
}

// AncestryColumns is the schema of process_ancestry.
var AncestryColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"depth", TypeBigInt},
	{"root_pid_hash", TypeVarchar},
	{"path", TypeJSON},
	{"path_names", TypeJSON},
	{"steps", TypeJSON},
	{"cycle_detected", TypeBoolean},
	{"parent_missing", TypeBoolean},
	{"truncated", TypeBoolean},
}

func (a AncestryPath) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(a.PidHash)).
		Set("depth", int64(a.Depth)).
		Set("root_pid_hash", nullString(a.RootPidHash)).
		Set("path", a.Path).
		Set("path_names", a.PathNames).
		Set("steps", a.Steps).
		Set("cycle_detected", a.CycleDetected).
		Set("parent_missing", a.ParentMissing).
		Set("truncated", a.Truncated)
}
