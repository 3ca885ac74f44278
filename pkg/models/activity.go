package models

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// File is one row per file identity (host + normalized path).
type File struct {
	FileID      string    `json:"file_id"`
	Hostname    string    `json:"hostname"`
	Filename    string    `json:"filename"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	EventCount  int64     `json:"event_count"`
	NumFilename int64     `json:"num_filename"`
}

// ProcessFile is the activity of one process on one file.
type ProcessFile struct {
	PidHash     string    `json:"pid_hash"`
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	EventCount  int64     `json:"event_count"`
	ReadCount   int64     `json:"read_count"`
	WriteCount  int64     `json:"write_count"`
	ReadBytes   int64     `json:"read_bytes"`
	WriteBytes  int64     `json:"write_bytes"`
	DeleteCount int64     `json:"delete_count"`
	RenameCount int64     `json:"rename_count"`
}

// ProcessRegistry is the activity of one process on one registry key.
type ProcessRegistry struct {
	PidHash     string    `json:"pid_hash"`
	RegID       string    `json:"reg_id"`
	RegPath     string    `json:"reg_path"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	EventCount  int64     `json:"event_count"`
	ReadCount   int64     `json:"read_count"`
	WriteCount  int64     `json:"write_count"`
	DeleteCount int64     `json:"delete_count"`
}

// ProcessImageLoad is one module loaded by one process.
type ProcessImageLoad struct {
	PidHash     string    `json:"pid_hash"`
	ImageID     string    `json:"image_id"`
	Filename    string    `json:"filename"`
	MD5         string    `json:"md5"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	LoadCount   int64     `json:"load_count"`
	UnloadCount int64     `json:"unload_count"`
	NumMD5      int64     `json:"num_md5"`
}

// FileColumns is the schema of the file table.
var FileColumns = []Column{
	{"file_id", TypeVarchar},
	{"hostname", TypeVarchar},
	{"filename", TypeVarchar},
	{"first_seen", TypeTimestamp},
	{"last_seen", TypeTimestamp},
	{"event_count", TypeBigInt},
	{"num_filename", TypeBigInt},
}

// ProcessFileColumns is the schema of process_file.
var ProcessFileColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"file_id", TypeVarchar},
	{"filename", TypeVarchar},
	{"first_seen", TypeTimestamp},
	{"last_seen", TypeTimestamp},
	{"event_count", TypeBigInt},
	{"read_count", TypeBigInt},
	{"write_count", TypeBigInt},
	{"read_bytes", TypeBigInt},
	{"write_bytes", TypeBigInt},
	{"delete_count", TypeBigInt},
	{"rename_count", TypeBigInt},
}

// ProcessRegistryColumns is the schema of process_registry.
var ProcessRegistryColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"reg_id", TypeVarchar},
	{"reg_path", TypeVarchar},
	{"first_seen", TypeTimestamp},
	{"last_seen", TypeTimestamp},
	{"event_count", TypeBigInt},
	{"read_count", TypeBigInt},
	{"write_count", TypeBigInt},
	{"delete_count", TypeBigInt},
}

// ProcessImageLoadColumns is the schema of process_image_load.
var ProcessImageLoadColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"image_id", TypeVarchar},
	{"filename", TypeVarchar},
	{"md5", TypeVarchar},
	{"first_seen", TypeTimestamp},
	{"last_seen", TypeTimestamp},
	{"load_count", TypeBigInt},
	{"unload_count", TypeBigInt},
	{"num_md5", TypeBigInt},
}

func (f File) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("file_id", nullString(f.FileID)).
		Set("hostname", nullString(f.Hostname)).
		Set("filename", nullString(f.Filename)).
		Set("first_seen", nullTime(f.FirstSeen)).
		Set("last_seen", nullTime(f.LastSeen)).
		Set("event_count", f.EventCount).
		Set("num_filename", f.NumFilename)
}

func (f ProcessFile) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(f.PidHash)).
		Set("file_id", nullString(f.FileID)).
		Set("filename", nullString(f.Filename)).
		Set("first_seen", nullTime(f.FirstSeen)).
		Set("last_seen", nullTime(f.LastSeen)).
		Set("event_count", f.EventCount).
		Set("read_count", f.ReadCount).
		Set("write_count", f.WriteCount).
		Set("read_bytes", f.ReadBytes).
		Set("write_bytes", f.WriteBytes).
		Set("delete_count", f.DeleteCount).
		Set("rename_count", f.RenameCount)
}

func (r ProcessRegistry) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(r.PidHash)).
		Set("reg_id", nullString(r.RegID)).
		Set("reg_path", nullString(r.RegPath)).
		Set("first_seen", nullTime(r.FirstSeen)).
		Set("last_seen", nullTime(r.LastSeen)).
		Set("event_count", r.EventCount).
		Set("read_count", r.ReadCount).
		Set("write_count", r.WriteCount).
		Set("delete_count", r.DeleteCount)
}

func (i ProcessImageLoad) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("pid_hash", nullString(i.PidHash)).
		Set("image_id", nullString(i.ImageID)).
		Set("filename", nullString(i.Filename)).
		Set("md5", nullString(i.MD5)).
		Set("first_seen", nullTime(i.FirstSeen)).
		Set("last_seen", nullTime(i.LastSeen)).
		Set("load_count", i.LoadCount).
		Set("unload_count", i.UnloadCount).
		Set("num_md5", i.NumMD5)
}
