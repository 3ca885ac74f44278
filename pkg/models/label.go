package models

import "github.com/Velocidex/ordereddict"

// Label sources.
const (
	LabelSourceSigma    = "sigma"
	LabelSourceExternal = "labels"
)

// DetectionLabel is a rule match attached to a process.
type DetectionLabel struct {
	PidHash   string `json:"pid_hash"`
	Source    string `json:"source"`
	RuleID    string `json:"rule_id,omitempty"`
	RuleName  string `json:"rule_name,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Tactic    string `json:"tactic,omitempty"`
	Technique string `json:"technique,omitempty"`
}

// DetectionLabelColumns is the schema of process_label.
var DetectionLabelColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"source", TypeVarchar},
	{"rule_id", TypeVarchar},
	{"rule_name", TypeVarchar},
	{"severity", TypeVarchar},
	{"tactic", TypeVarchar},
	{"technique", TypeVarchar},
}

func (l DetectionLabel) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(l.PidHash)).
		Set("source", nullString(l.Source)).
		Set("rule_id", nullString(l.RuleID)).
		Set("rule_name", nullString(l.RuleName)).
		Set("severity", nullString(l.Severity)).
		Set("tactic", nullString(l.Tactic)).
		Set("technique", nullString(l.Technique))
}
