package models

import "github.com/Velocidex/ordereddict"

// RegistrySummary rolls registry activity up to one row per process.
type RegistrySummary struct {
	PidHash        string `json:"pid_hash"`
	RegKeyCount    int64  `json:"reg_key_count"`
	RegReadCount   int64  `json:"reg_read_count"`
	RegWriteCount  int64  `json:"reg_write_count"`
	RegDeleteCount int64  `json:"reg_delete_count"`
}

// FileSummary rolls file activity up to one row per process.
type FileSummary struct {
	PidHash         string `json:"pid_hash"`
	FileCount       int64  `json:"file_count"`
	FileReadCount   int64  `json:"file_read_count"`
	FileWriteCount  int64  `json:"file_write_count"`
	FileReadBytes   int64  `json:"file_read_bytes"`
	FileWriteBytes  int64  `json:"file_write_bytes"`
	FileDeleteCount int64  `json:"file_delete_count"`
}

// ImageSummary rolls module loads up to one row per process.
type ImageSummary struct {
	PidHash          string `json:"pid_hash"`
	ImageCount       int64  `json:"image_count"`
	ImageLoadCount   int64  `json:"image_load_count"`
	ImageUnloadCount int64  `json:"image_unload_count"`
}

// LabelSummary rolls detection labels up to one row per process.
type LabelSummary struct {
	PidHash          string   `json:"pid_hash"`
	LabelCount       int64    `json:"label_count"`
	LabelSources     []string `json:"label_sources"`
	LabelRuleIDs     []string `json:"label_rule_ids"`
	LabelMaxSeverity string   `json:"label_max_severity"`
	LabelTactics     []string `json:"label_tactics"`
}

var RegistrySummaryColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"reg_key_count", TypeBigInt},
	{"reg_read_count", TypeBigInt},
	{"reg_write_count", TypeBigInt},
	{"reg_delete_count", TypeBigInt},
}

var FileSummaryColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"file_count", TypeBigInt},
	{"file_read_count", TypeBigInt},
	{"file_write_count", TypeBigInt},
	{"file_read_bytes", TypeBigInt},
	{"file_write_bytes", TypeBigInt},
	{"file_delete_count", TypeBigInt},
}

var ImageSummaryColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"image_count", TypeBigInt},
	{"image_load_count", TypeBigInt},
	{"image_unload_count", TypeBigInt},
}

var LabelSummaryColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"label_count", TypeBigInt},
	{"label_sources", TypeJSON},
	{"label_rule_ids", TypeJSON},
	{"label_max_severity", TypeVarchar},
	{"label_tactics", TypeJSON},
}

func (s RegistrySummary) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(s.PidHash)).
		Set("reg_key_count", s.RegKeyCount).
		Set("reg_read_count", s.RegReadCount).
		Set("reg_write_count", s.RegWriteCount).
		Set("reg_delete_count", s.RegDeleteCount)
}

func (s FileSummary) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(s.PidHash)).
		Set("file_count", s.FileCount).
		Set("file_read_count", s.FileReadCount).
		Set("file_write_count", s.FileWriteCount).
		Set("file_read_bytes", s.FileReadBytes).
		Set("file_write_bytes", s.FileWriteBytes).
		Set("file_delete_count", s.FileDeleteCount)
}

func (s ImageSummary) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(s.PidHash)).
		Set("image_count", s.ImageCount).
		Set("image_load_count", s.ImageLoadCount).
		Set("image_unload_count", s.ImageUnloadCount)
}

func (s LabelSummary) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(s.PidHash)).
		Set("label_count", s.LabelCount).
		Set("label_sources", s.LabelSources).
		Set("label_rule_ids", s.LabelRuleIDs).
		Set("label_max_severity", nullString(s.LabelMaxSeverity)).
		Set("label_tactics", s.LabelTactics)
}
