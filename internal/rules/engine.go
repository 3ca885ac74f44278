// Package rules attaches detection labels to process entities.
package rules

import "entitygraph/pkg/models"

// Engine labels a resolved process.
type Engine interface {
	Apply(p models.Process) []models.DetectionLabel
}

// NoopEngine returns no labels.
type NoopEngine struct{}

// Apply returns an empty label list.
func (n *NoopEngine) Apply(p models.Process) []models.DetectionLabel {
	return nil
}

// ApplyAll labels every process with e. A nil engine labels nothing.
func ApplyAll(e Engine, procs []models.Process) []models.DetectionLabel {
	if e == nil {
		return nil
	}
	var out []models.DetectionLabel
	for _, p := range procs {
		out = append(out, e.Apply(p)...)
	}
	return out
}
