package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

const whoamiRule = `title: Whoami Execution
id: 11111111-2222-3333-4444-555555555555
level: high
tags:
  - attack.discovery
  - attack.t1033
logsource:
  category: process_creation
  product: windows
detection:
  selection:
    CommandLine|contains: whoami
  condition: selection
`

const networkRule = `title: Outbound
id: net-1
logsource:
  category: network_connection
  product: windows
detection:
  selection:
    DestinationPort: 4444
  condition: selection
`

const linuxRule = `title: Linux
id: lin-1
logsource:
  product: linux
detection:
  selection:
    CommandLine|contains: id
  condition: selection
`

func writeRules(t *testing.T) string {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"whoami.yml":   whoamiRule,
		"network.yaml": networkRule,
		"linux.yml":    linuxRule,
		"broken.yml":   "title: [unterminated",
		"README.md":    "not a rule",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestNewSigmaEngineStats(t *testing.T) {
	engine, stats, err := NewSigmaEngine(writeRules(t))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, 2, stats.SkippedDatasource)
	assert.Equal(t, 1, stats.SkippedInvalid)
	assert.Equal(t, 1, engine.Len())
}

func TestSigmaEngineApply(t *testing.T) {
	engine, _, err := NewSigmaEngine(writeRules(t))
	require.NoError(t, err)

	labels := engine.Apply(models.Process{PidHash: "P1", Args: `cmd.exe /c whoami /all`})
	require.Len(t, labels, 1)
	l := labels[0]
	assert.Equal(t, "P1", l.PidHash)
	assert.Equal(t, models.LabelSourceSigma, l.Source)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", l.RuleID)
	assert.Equal(t, "Whoami Execution", l.RuleName)
	assert.Equal(t, "high", l.Severity)
	assert.Equal(t, "discovery", l.Tactic)
	assert.Equal(t, "T1033", l.Technique)

	assert.Empty(t, engine.Apply(models.Process{PidHash: "P2", Args: "notepad.exe"}))
	assert.Len(t, ApplyAll(engine, []models.Process{
		{PidHash: "A", Args: "whoami"}, {PidHash: "B"}, {PidHash: "C", Args: "x whoami"},
	}), 2)
}

func TestNewSigmaEngineRejectsNonYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rule.txt")
	require.NoError(t, os.WriteFile(path, []byte(whoamiRule), 0o644))
	_, _, err := NewSigmaEngine(path)
	assert.Error(t, err)

	_, _, err = NewSigmaEngine(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFieldMap(t *testing.T) {
	pid := int64(42)
	m := FieldMap(models.Process{
		PidHash:       "P1",
		ParentPidHash: "P0",
		ProcessPath:   `C:\Windows\System32\cmd.exe`,
		UserName:      "SYSTEM",
		MD5:           "abc",
		SHA2:          "def",
		OSPid:         &pid,
	})
	assert.Equal(t, `C:\Windows\System32\cmd.exe`, m["Image"])
	assert.Equal(t, `C:\Windows\System32\cmd.exe`, m["process_path"])
	assert.Equal(t, "P0", m["ParentProcessGuid"])
	assert.Equal(t, "SYSTEM", m["User"])
	assert.Equal(t, "MD5=ABC,SHA256=DEF", m["Hashes"])
	assert.Equal(t, int64(42), m["ProcessId"])
	_, hasArgs := m["CommandLine"]
	assert.False(t, hasArgs)
	_, hasNull := m["args"]
	assert.False(t, hasNull)
}

func TestParseAttackTags(t *testing.T) {
	tactic, technique := parseAttackTags([]string{"attack.Defense_Evasion", "attack.t1218.011", "cve.2021"})
	assert.Equal(t, "defense-evasion", tactic)
	assert.Equal(t, "T1218/011", technique)
}

func TestNoopEngine(t *testing.T) {
	assert.Nil(t, (&NoopEngine{}).Apply(models.Process{PidHash: "P"}))
	assert.Nil(t, ApplyAll(nil, []models.Process{{PidHash: "P"}}))
}
