// Package entity builds canonical one-row-per-identity entities from raw
// sensor rows.
package entity

import (
	"strings"
	"time"

	"entitygraph/internal/codec"
	"entitygraph/internal/join"
	"entitygraph/internal/reduce"
	"entitygraph/pkg/models"
)

const activityStop = "STOP"

// IsStop reports whether a process row is the stop half of a lifecycle.
func IsStop(e models.RawEvent) bool {
	return e.Domain == models.DomainProcessStop || e.ActivityType() == activityStop
}

// SplitLifecycle separates start-side and stop-side process rows.
func SplitLifecycle(process, stop []models.RawEvent) (starts, stops []models.RawEvent) {
	starts = make([]models.RawEvent, 0, len(process))
	stops = make([]models.RawEvent, 0, len(stop))
	for _, e := range process {
		if IsStop(e) {
			stops = append(stops, e)
			continue
		}
		starts = append(starts, e)
	}
	stops = append(stops, stop...)
	return starts, stops
}

var processFields = []reduce.FieldSpec{
	{Field: models.FieldParentPidHash, As: "parent_pid_hash", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldHostname, As: "hostname", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldPID, As: "os_pid", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldParentPID, As: "parent_os_pid", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldProcessName, As: "process_name", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldProcessPath, As: "process_path", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldProcessArgs, As: "args", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldUserName, As: "user_name", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldMD5, As: "md5", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldSHA2, As: "sha2", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldEventTime, As: "first_seen", Rule: reduce.Min},
	{Field: models.FieldEventTime, As: "last_seen", Rule: reduce.Max},
}

// BuildProcesses reduces start-side rows into one Process per pid_hash.
// Stop fields are left empty; see Merge.
func BuildProcesses(rows []models.RawEvent, opts reduce.Options) []models.Process {
	groups := reduce.New(reduce.ByField(models.FieldPidHash), processFields, opts).Reduce(rows)
	out := make([]models.Process, 0, len(groups))
	for _, g := range groups {
		p := models.Process{
			PidHash:       g.Key,
			ParentPidHash: g.Text("parent_pid_hash"),
			Hostname:      g.Text("hostname"),
			OSPid:         g.Int("os_pid"),
			ParentOSPid:   g.Int("parent_os_pid"),
			ProcessName:   g.Text("process_name"),
			Args:          g.Text("args"),
			UserName:      g.Text("user_name"),
			MD5:           strings.ToLower(g.Text("md5")),
			SHA2:          strings.ToLower(g.Text("sha2")),
			FirstSeen:     tickTime(g.Value("first_seen")),
			LastSeen:      tickTime(g.Value("last_seen")),
			EventCount:    g.Rows,

			NumParentPidHash: g.Num("parent_pid_hash"),
			NumProcessName:   g.Num("process_name"),
			NumProcessPath:   g.Num("process_path"),
			NumArgs:          g.Num("args"),
			NumUserName:      g.Num("user_name"),
			NumMD5:           g.Num("md5"),
		}
		p.ProcessPath = NormalizePath(g.Text("process_path"), p.ProcessName)
		p.FileID = codec.FileIdentity(p.Hostname, p.ProcessPath)
		out = append(out, p)
	}
	return out
}

// NormalizePath appends name when path names a directory.
func NormalizePath(path, name string) string {
	if name == "" || path == "" {
		return path
	}
	if strings.HasSuffix(path, `\`) || strings.HasSuffix(path, "/") {
		return path + name
	}
	return path
}

var stopFields = []reduce.FieldSpec{
	{Field: models.FieldEventTime, As: "process_stop_seen", Rule: reduce.Max},
	{Field: models.FieldExitCode, As: "exit_code", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldTokenElevationType, As: "token_elevation_type", Rule: reduce.FirstNonEmpty},
	{Field: models.FieldCPUCycleCount, As: "cpu_cycle_count", Rule: reduce.Max},
	{Field: models.FieldCPUUtilization, As: "cpu_utilization", Rule: reduce.Max},
	{Field: models.FieldCommitCharge, As: "commit_charge", Rule: reduce.Max},
	{Field: models.FieldCommitPeak, As: "commit_peak", Rule: reduce.Max},
	{Field: models.FieldReadOperationCount, As: "read_operation_count", Rule: reduce.Max},
	{Field: models.FieldWriteOperationCount, As: "write_operation_count", Rule: reduce.Max},
	{Field: models.FieldReadTransferKiloBytes, As: "read_transfer_kb", Rule: reduce.Max},
	{Field: models.FieldWriteTransferKiloBytes, As: "write_transfer_kb", Rule: reduce.Max},
	{Field: models.FieldHardFaultCount, As: "hard_fault_count", Rule: reduce.Max},
}

// BuildStops reduces stop-side rows into one ProcessStop per pid_hash.
// Counters are cumulative in the sensor, so the maximum wins.
func BuildStops(rows []models.RawEvent, opts reduce.Options) []models.ProcessStop {
	groups := reduce.New(reduce.ByField(models.FieldPidHash), stopFields, opts).Reduce(rows)
	out := make([]models.ProcessStop, 0, len(groups))
	for _, g := range groups {
		numExit := g.Num("exit_code")
		out = append(out, models.ProcessStop{
			PidHash: g.Key,
			ProcessStopFields: models.ProcessStopFields{
				StopSeen:            tickTime(g.Value("process_stop_seen")),
				ExitCode:            g.Int("exit_code"),
				CPUCycleCount:       g.Int("cpu_cycle_count"),
				CPUUtilization:      g.Float("cpu_utilization"),
				CommitCharge:        g.Int("commit_charge"),
				CommitPeak:          g.Int("commit_peak"),
				ReadOperationCount:  g.Int("read_operation_count"),
				WriteOperationCount: g.Int("write_operation_count"),
				ReadTransferKB:      g.Int("read_transfer_kb"),
				WriteTransferKB:     g.Int("write_transfer_kb"),
				HardFaultCount:      g.Int("hard_fault_count"),
				TokenElevationType:  g.Int("token_elevation_type"),
				NumExitCode:         &numExit,
			},
		})
	}
	return out
}

// Merge left-joins stop summaries onto processes. The result has exactly one
// row per process; stop rows without a matching process are dropped.
func Merge(procs []models.Process, stops []models.ProcessStop) []models.Process {
	return join.Left(procs, stops,
		func(p models.Process) string { return p.PidHash },
		func(s models.ProcessStop) string { return s.PidHash },
		func(p models.Process, s *models.ProcessStop) models.Process {
			if s != nil {
				p.ProcessStopFields = s.ProcessStopFields
			}
			return p
		})
}

func tickTime(v models.RawValue) time.Time {
	ticks, ok := v.Uint64()
	if !ok {
		return time.Time{}
	}
	return codec.TicksTime(ticks)
}
