package entity

import (
	"strings"

	"entitygraph/internal/codec"
	"entitygraph/internal/reduce"
	"entitygraph/pkg/models"
)

func activityContains(words ...string) func(models.RawEvent) bool {
	return func(e models.RawEvent) bool {
		act := e.ActivityType()
		for _, w := range words {
			if strings.Contains(act, w) {
				return true
			}
		}
		return false
	}
}

var (
	isRead   = activityContains("READ")
	isWrite  = activityContains("WRITE")
	isDelete = activityContains("DELETE")
	isRename = activityContains("RENAME")

	isRegRead  = activityContains("QUERY", "OPEN", "READ", "ENUM")
	isRegWrite = activityContains("SET", "CREATE", "WRITE")

	isUnload = activityContains("UNLOAD")
	isLoad   = func(e models.RawEvent) bool {
		return !isUnload(e) && strings.Contains(e.ActivityType(), "LOAD")
	}
)

// eventWeight is the number of sensor events a raw row stands for. Rows
// without a usable eventcount stand for one.
func eventWeight(e models.RawEvent) int64 {
	if n, ok := e.Get(models.FieldEventCount).Int64(); ok && n > 0 {
		return n
	}
	return 1
}

func events(as string, when func(models.RawEvent) bool) reduce.FieldSpec {
	return reduce.FieldSpec{As: as, Rule: reduce.Count, When: when, Weight: eventWeight}
}

func fileKey(e models.RawEvent) string {
	return codec.FileIdentity(e.Text(models.FieldHostname), e.Text(models.FieldFilename))
}

func regKey(e models.RawEvent) string {
	return codec.FileIdentity(e.Text(models.FieldHostname), e.Text(models.FieldRegPath))
}

func splitKey(k string) (string, string) {
	pid, rest, _ := strings.Cut(k, "\x00")
	return pid, rest
}

func byPidAnd(second reduce.KeyFunc) reduce.KeyFunc {
	return func(e models.RawEvent) string {
		return reduce.Key(e.Text(models.FieldPidHash), second(e))
	}
}

var timeSpan = []reduce.FieldSpec{
	{Field: models.FieldEventTime, As: "first_seen", Rule: reduce.Min},
	{Field: models.FieldEventTime, As: "last_seen", Rule: reduce.Max},
	events("event_count", nil),
}

func withSpan(fields ...reduce.FieldSpec) []reduce.FieldSpec {
	return append(append([]reduce.FieldSpec{}, timeSpan...), fields...)
}

// BuildFiles reduces file activity into one File per host and path.
func BuildFiles(rows []models.RawEvent, opts reduce.Options) []models.File {
	fields := withSpan(
		reduce.FieldSpec{Field: models.FieldHostname, As: "hostname", Rule: reduce.FirstNonEmpty},
		reduce.FieldSpec{Field: models.FieldFilename, As: "filename", Rule: reduce.FirstNonEmpty},
	)
	groups := reduce.New(fileKey, fields, opts).Reduce(rows)
	out := make([]models.File, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.File{
			FileID:      g.Key,
			Hostname:    g.Text("hostname"),
			Filename:    g.Text("filename"),
			FirstSeen:   tickTime(g.Value("first_seen")),
			LastSeen:    tickTime(g.Value("last_seen")),
			EventCount:  g.Count("event_count"),
			NumFilename: g.Num("filename"),
		})
	}
	return out
}

// BuildProcessFiles reduces file activity into one row per process and file.
func BuildProcessFiles(rows []models.RawEvent, opts reduce.Options) []models.ProcessFile {
	fields := withSpan(
		reduce.FieldSpec{Field: models.FieldFilename, As: "filename", Rule: reduce.FirstNonEmpty},
		events("read_count", isRead),
		events("write_count", isWrite),
		events("delete_count", isDelete),
		events("rename_count", isRename),
		reduce.FieldSpec{Field: models.FieldBytesRequested, As: "read_bytes", Rule: reduce.Sum, When: isRead},
		reduce.FieldSpec{Field: models.FieldBytesRequested, As: "write_bytes", Rule: reduce.Sum, When: isWrite},
	)
	groups := reduce.New(byPidAnd(fileKey), fields, opts).Reduce(rows)
	out := make([]models.ProcessFile, 0, len(groups))
	for _, g := range groups {
		pid, fileID := splitKey(g.Key)
		out = append(out, models.ProcessFile{
			PidHash:     pid,
			FileID:      fileID,
			Filename:    g.Text("filename"),
			FirstSeen:   tickTime(g.Value("first_seen")),
			LastSeen:    tickTime(g.Value("last_seen")),
			EventCount:  g.Count("event_count"),
			ReadCount:   g.Count("read_count"),
			WriteCount:  g.Count("write_count"),
			ReadBytes:   g.Count("read_bytes"),
			WriteBytes:  g.Count("write_bytes"),
			DeleteCount: g.Count("delete_count"),
			RenameCount: g.Count("rename_count"),
		})
	}
	return out
}

// BuildProcessRegistry reduces registry activity into one row per process and key.
func BuildProcessRegistry(rows []models.RawEvent, opts reduce.Options) []models.ProcessRegistry {
	fields := withSpan(
		reduce.FieldSpec{Field: models.FieldRegPath, As: "reg_path", Rule: reduce.FirstNonEmpty},
		events("read_count", isRegRead),
		events("write_count", isRegWrite),
		events("delete_count", isDelete),
	)
	groups := reduce.New(byPidAnd(regKey), fields, opts).Reduce(rows)
	out := make([]models.ProcessRegistry, 0, len(groups))
	for _, g := range groups {
		pid, regID := splitKey(g.Key)
		out = append(out, models.ProcessRegistry{
			PidHash:     pid,
			RegID:       regID,
			RegPath:     g.Text("reg_path"),
			FirstSeen:   tickTime(g.Value("first_seen")),
			LastSeen:    tickTime(g.Value("last_seen")),
			EventCount:  g.Count("event_count"),
			ReadCount:   g.Count("read_count"),
			WriteCount:  g.Count("write_count"),
			DeleteCount: g.Count("delete_count"),
		})
	}
	return out
}

// BuildProcessImageLoads reduces module loads into one row per process and image.
// Image filenames are lower-cased.
func BuildProcessImageLoads(rows []models.RawEvent, opts reduce.Options) []models.ProcessImageLoad {
	fields := withSpan(
		reduce.FieldSpec{Field: models.FieldFilename, As: "filename", Rule: reduce.FirstNonEmpty},
		reduce.FieldSpec{Field: models.FieldMD5, As: "md5", Rule: reduce.FirstNonEmpty},
		events("load_count", isLoad),
		events("unload_count", isUnload),
	)
	groups := reduce.New(byPidAnd(fileKey), fields, opts).Reduce(rows)
	out := make([]models.ProcessImageLoad, 0, len(groups))
	for _, g := range groups {
		pid, imageID := splitKey(g.Key)
		out = append(out, models.ProcessImageLoad{
			PidHash:     pid,
			ImageID:     imageID,
			Filename:    strings.ToLower(g.Text("filename")),
			MD5:         strings.ToLower(g.Text("md5")),
			FirstSeen:   tickTime(g.Value("first_seen")),
			LastSeen:    tickTime(g.Value("last_seen")),
			LoadCount:   g.Count("load_count"),
			UnloadCount: g.Count("unload_count"),
			NumMD5:      g.Num("md5"),
		})
	}
	return out
}
