package models

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// Process is the canonical one-row-per-pid_hash process entity.
type Process struct {
	PidHash       string    `json:"pid_hash"`
	ParentPidHash string    `json:"parent_pid_hash"`
	Hostname      string    `json:"hostname"`
	OSPid         *int64    `json:"os_pid"`
	ParentOSPid   *int64    `json:"parent_os_pid"`
	ProcessName   string    `json:"process_name"`
	ProcessPath   string    `json:"process_path"`
	Args          string    `json:"args"`
	UserName      string    `json:"user_name"`
	MD5           string    `json:"md5"`
	SHA2          string    `json:"sha2"`
	FileID        string    `json:"file_id"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	EventCount    int64     `json:"event_count"`

	NumParentPidHash int64 `json:"num_parent_pid_hash"`
	NumProcessName   int64 `json:"num_process_name"`
	NumProcessPath   int64 `json:"num_process_path"`
	NumArgs          int64 `json:"num_args"`
	NumUserName      int64 `json:"num_user_name"`
	NumMD5           int64 `json:"num_md5"`

	ProcessStopFields
}

// ProcessStopFields are the terminal attributes merged from stop events.
// All are nil when no stop event was observed.
type ProcessStopFields struct {
	StopSeen            time.Time `json:"process_stop_seen"`
	ExitCode            *int64    `json:"exit_code"`
	CPUCycleCount       *int64    `json:"cpu_cycle_count"`
	CPUUtilization      *float64  `json:"cpu_utilization"`
	CommitCharge        *int64    `json:"commit_charge"`
	CommitPeak          *int64    `json:"commit_peak"`
	ReadOperationCount  *int64    `json:"read_operation_count"`
	WriteOperationCount *int64    `json:"write_operation_count"`
	ReadTransferKB      *int64    `json:"read_transfer_kb"`
	WriteTransferKB     *int64    `json:"write_transfer_kb"`
	HardFaultCount      *int64    `json:"hard_fault_count"`
	TokenElevationType  *int64    `json:"token_elevation_type"`
	NumExitCode         *int64    `json:"num_exit_code"`
}

// ProcessStop is the reduced stop-side summary of one process.
type ProcessStop struct {
	PidHash string `json:"pid_hash"`
	ProcessStopFields
}

// ProcessStopColumns is the schema of the stop-side columns.
var ProcessStopColumns = []Column{
	{"process_stop_seen", TypeTimestamp},
	{"exit_code", TypeBigInt},
	{"cpu_cycle_count", TypeBigInt},
	{"cpu_utilization", TypeDouble},
	{"commit_charge", TypeBigInt},
	{"commit_peak", TypeBigInt},
	{"read_operation_count", TypeBigInt},
	{"write_operation_count", TypeBigInt},
	{"read_transfer_kb", TypeBigInt},
	{"write_transfer_kb", TypeBigInt},
	{"hard_fault_count", TypeBigInt},
	{"token_elevation_type", TypeBigInt},
	{"num_exit_code", TypeBigInt},
}

// ProcessColumns is the schema of the process table.
var ProcessColumns = append([]Column{
	{"pid_hash", TypeVarchar},
	{"parent_pid_hash", TypeVarchar},
	{"hostname", TypeVarchar},
	{"os_pid", TypeBigInt},
	{"parent_os_pid", TypeBigInt},
	{"process_name", TypeVarchar},
	{"process_path", TypeVarchar},
	{"args", TypeVarchar},
	{"user_name", TypeVarchar},
	{"md5", TypeVarchar},
	{"sha2", TypeVarchar},
	{"file_id", TypeVarchar},
	{"first_seen", TypeTimestamp},
	{"last_seen", TypeTimestamp},
	{"event_count", TypeBigInt},
	{"num_parent_pid_hash", TypeBigInt},
	{"num_process_name", TypeBigInt},
	{"num_process_path", TypeBigInt},
	{"num_args", TypeBigInt},
	{"num_user_name", TypeBigInt},
	{"num_md5", TypeBigInt},
}, ProcessStopColumns...)

// ProcessStopTableColumns is the schema of the process_stop table.
var ProcessStopTableColumns = append([]Column{{"pid_hash", TypeVarchar}}, ProcessStopColumns...)

// Row renders the process as an ordered row.
func (p Process) Row() *ordereddict.Dict {
	row := ordereddict.NewDict().
		Set("pid_hash", nullString(p.PidHash)).
		Set("parent_pid_hash", nullString(p.ParentPidHash)).
		Set("hostname", nullString(p.Hostname)).
		Set("os_pid", nullInt(p.OSPid)).
		Set("parent_os_pid", nullInt(p.ParentOSPid)).
		Set("process_name", nullString(p.ProcessName)).
		Set("process_path", nullString(p.ProcessPath)).
		Set("args", nullString(p.Args)).
		Set("user_name", nullString(p.UserName)).
		Set("md5", nullString(p.MD5)).
		Set("sha2", nullString(p.SHA2)).
		Set("file_id", nullString(p.FileID)).
		Set("first_seen", nullTime(p.FirstSeen)).
		Set("last_seen", nullTime(p.LastSeen)).
		Set("event_count", p.EventCount).
		Set("num_parent_pid_hash", p.NumParentPidHash).
		Set("num_process_name", p.NumProcessName).
		Set("num_process_path", p.NumProcessPath).
		Set("num_args", p.NumArgs).
		Set("num_user_name", p.NumUserName).
		Set("num_md5", p.NumMD5)
	p.ProcessStopFields.appendTo(row)
	return row
}

// Row renders the stop summary as an ordered row.
func (s ProcessStop) Row() *ordereddict.Dict {
	row := ordereddict.NewDict().Set("pid_hash", nullString(s.PidHash))
	s.ProcessStopFields.appendTo(row)
	return row
}

func (f ProcessStopFields) appendTo(row *ordereddict.Dict) {
	row.Set("process_stop_seen", nullTime(f.StopSeen)).
		Set("exit_code", nullInt(f.ExitCode)).
		Set("cpu_cycle_count", nullInt(f.CPUCycleCount)).
		Set("cpu_utilization", nullFloat(f.CPUUtilization)).
		Set("commit_charge", nullInt(f.CommitCharge)).
		Set("commit_peak", nullInt(f.CommitPeak)).
		Set("read_operation_count", nullInt(f.ReadOperationCount)).
		Set("write_operation_count", nullInt(f.WriteOperationCount)).
		Set("read_transfer_kb", nullInt(f.ReadTransferKB)).
		Set("write_transfer_kb", nullInt(f.WriteTransferKB)).
		Set("hard_fault_count", nullInt(f.HardFaultCount)).
		Set("token_elevation_type", nullInt(f.TokenElevationType)).
		Set("num_exit_code", nullInt(f.NumExitCode))
}
