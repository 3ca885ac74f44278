package summary

import (
	"sort"
	"strings"

	"entitygraph/pkg/models"
)

// Kill-chain position of each ATT&CK tactic.
var tacticOrder = map[string]int{
	"reconnaissance":       0,
	"resource-development": 0,
	"initial-access":       1,
	"execution":            2,
	"persistence":          3,
	"privilege-escalation": 4,
	"defense-evasion":      5,
	"credential-access":    6,
	"discovery":            7,
	"lateral-movement":     8,
	"collection":           9,
	"command-and-control":  10,
	"exfiltration":         11,
	"impact":               12,
}

var severityRank = map[string]int{
	"informational": 1,
	"low":           2,
	"medium":        3,
	"high":          4,
	"critical":      5,
}

// SeverityRank orders severities informational < low < medium < high <
// critical. Unknown levels rank 0.
func SeverityRank(level string) int {
	return severityRank[strings.ToLower(strings.TrimSpace(level))]
}

// NormalizeTactic maps "attack.defense_evasion" style tags to
// "defense-evasion".
func NormalizeTactic(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.TrimPrefix(t, "attack.")
	return strings.ReplaceAll(t, "_", "-")
}

// IsTactic reports whether the normalized name is a known tactic.
func IsTactic(name string) bool {
	_, ok := tacticOrder[NormalizeTactic(name)]
	return ok
}

type labelAcc struct {
	pid      string
	count    int64
	sources  map[string]struct{}
	rules    map[string]struct{}
	tactics  map[string]struct{}
	severity string
}

// Labels rolls detection labels up per pid_hash. Sources and rule ids are
// sorted; tactics follow kill-chain order with unknown tactics last.
func Labels(rows []models.DetectionLabel) []models.LabelSummary {
	accs := make(map[string]*labelAcc)
	for _, l := range rows {
		a, ok := accs[l.PidHash]
		if !ok {
			a = &labelAcc{
				pid:     l.PidHash,
				sources: make(map[string]struct{}),
				rules:   make(map[string]struct{}),
				tactics: make(map[string]struct{}),
			}
			accs[l.PidHash] = a
		}
		a.count++
		a.sources[l.Source] = struct{}{}
		a.rules[l.RuleID] = struct{}{}
		if t := NormalizeTactic(l.Tactic); t != "" {
			a.tactics[t] = struct{}{}
		}
		sev := strings.ToLower(strings.TrimSpace(l.Severity))
		if SeverityRank(sev) > SeverityRank(a.severity) {
			a.severity = sev
		}
	}

	out := make([]models.LabelSummary, 0, len(accs))
	for _, a := range accs {
		out = append(out, models.LabelSummary{
			PidHash:          a.pid,
			LabelCount:       a.count,
			LabelSources:     sortedKeys(a.sources),
			LabelRuleIDs:     sortedKeys(a.rules),
			LabelMaxSeverity: a.severity,
			LabelTactics:     killChain(a.tactics),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PidHash < out[j].PidHash })
	return out
}

func killChain(set map[string]struct{}) []string {
	out := sortedKeys(set)
	sort.SliceStable(out, func(i, j int) bool {
		return tacticPos(out[i]) < tacticPos(out[j])
	})
	return out
}

func tacticPos(t string) int {
	if pos, ok := tacticOrder[t]; ok {
		return pos
	}
	return len(tacticOrder) + 1
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
