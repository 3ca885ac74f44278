package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

func procRow(pid, name string, ticks int64, extra ...string) models.RawEvent {
	ev := models.NewRawEvent(models.DomainProcess, models.DayPartition("20240101")).
		Set("pidhash", models.Text(pid)).
		Set("processname", models.Text(name)).
		Set("eventtime", models.Int(ticks))
	for i := 0; i+1 < len(extra); i += 2 {
		ev.Set(extra[i], models.Text(extra[i+1]))
	}
	return ev
}

func processFields() []FieldSpec {
	return []FieldSpec{
		{Field: "processname", As: "process_name", Rule: FirstNonEmpty},
		{Field: "eventtime", As: "first_seen", Rule: Min},
		{Field: "eventtime", As: "last_seen", Rule: Max},
		{Field: "bytes", Rule: Sum},
		{Field: "processname", As: "names", Rule: CountDistinct},
		{Field: "activitytype", As: "writes", Rule: Count, When: func(e models.RawEvent) bool {
			return e.ActivityType() == "WRITE"
		}},
	}
}

func TestSvchostScenario(t *testing.T) {
	rows := []models.RawEvent{
		procRow("P1", "svchost.exe", 10),
		procRow("P1", "", 30),
		procRow("P1", "svchost.exe", 20),
	}
	r := New(ByField("pidhash"), processFields(), DefaultOptions())
	groups := r.Reduce(rows)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "P1", g.Key)
	assert.Equal(t, "svchost.exe", g.Text("process_name"))
	assert.Equal(t, int64(1), g.Num("process_name"))
	assert.Equal(t, int64(3), g.Rows)
	assert.Equal(t, int64(10), g.Count("first_seen"))
	assert.Equal(t, int64(30), g.Count("last_seen"))
	assert.Equal(t, int64(1), g.Count("names"))
	assert.True(t, g.Value("bytes").IsEmpty())
	assert.Equal(t, int64(0), g.Count("writes"))
}

func TestCountEmptyAsDistinct(t *testing.T) {
	rows := []models.RawEvent{
		procRow("P1", "svchost.exe", 10),
		procRow("P1", "", 30),
		procRow("P1", "NA", 20),
	}
	opts := DefaultOptions()
	opts.CountEmptyAsDistinct = true
	g := New(ByField("pidhash"), processFields(), opts).Reduce(rows)[0]
	assert.Equal(t, "svchost.exe", g.Text("process_name"))
	assert.Equal(t, int64(2), g.Num("process_name"))
	assert.Equal(t, int64(2), g.Count("names"))
}

func TestSentinelIsAbsent(t *testing.T) {
	rows := []models.RawEvent{procRow("P1", "na", 1), procRow("P1", "Na", 2)}
	g := New(ByField("pidhash"), processFields(), DefaultOptions()).Reduce(rows)[0]
	assert.True(t, g.Value("process_name").IsEmpty())
	assert.Equal(t, int64(0), g.Num("process_name"))
}

func TestTieBreak(t *testing.T) {
	rows := []models.RawEvent{procRow("P1", "zeta.exe", 1), procRow("P1", "alpha.exe", 2)}
	fields := processFields()

	g := New(ByField("pidhash"), fields, DefaultOptions()).Reduce(rows)[0]
	assert.Equal(t, "alpha.exe", g.Text("process_name"))
	assert.Equal(t, int64(2), g.Num("process_name"))

	reversed := []models.RawEvent{rows[1], rows[0]}
	g = New(ByField("pidhash"), fields, DefaultOptions()).Reduce(reversed)[0]
	assert.Equal(t, "alpha.exe", g.Text("process_name"))

	opts := DefaultOptions()
	opts.TieBreak = FirstSeen
	g = New(ByField("pidhash"), fields, opts).Reduce(rows)[0]
	assert.Equal(t, "zeta.exe", g.Text("process_name"))
}

func TestSumAndWhen(t *testing.T) {
	rows := []models.RawEvent{
		procRow("P1", "a", 1, "bytes", "10", "activitytype", "write"),
		procRow("P1", "a", 2, "bytes", "5", "activitytype", "READ"),
		procRow("P1", "a", 3, "bytes", "1.5", "activitytype", "WRITE"),
	}
	g := New(ByField("pidhash"), processFields(), DefaultOptions()).Reduce(rows)[0]
	f, ok := g.Value("bytes").Float()
	require.True(t, ok)
	assert.Equal(t, 16.5, f)
	assert.Equal(t, int64(2), g.Count("writes"))
}

func TestDuplicationScalesCounts(t *testing.T) {
	rows := []models.RawEvent{
		procRow("P1", "svchost.exe", 10, "bytes", "7"),
		procRow("P1", "other.exe", 11, "bytes", "3"),
		procRow("P2", "cmd.exe", 12, "bytes", "1"),
	}
	r := New(ByField("pidhash"), processFields(), DefaultOptions())
	once := r.Reduce(rows)
	twice := r.Reduce(append(append([]models.RawEvent{}, rows...), rows...))
	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].Key, twice[i].Key)
		assert.Equal(t, once[i].Text("process_name"), twice[i].Text("process_name"))
		assert.Equal(t, once[i].Distinct, twice[i].Distinct)
		assert.Equal(t, 2*once[i].Rows, twice[i].Rows)
		assert.Equal(t, 2*once[i].Count("bytes"), twice[i].Count("bytes"))
		assert.Equal(t, once[i].Count("first_seen"), twice[i].Count("first_seen"))
	}
	assert.Equal(t, r.Reduce(rows), once)
}

func TestEmptyKeyGroupsTogether(t *testing.T) {
	rows := []models.RawEvent{procRow("", "a.exe", 1), procRow("", "b.exe", 2), procRow("P1", "c.exe", 3)}
	groups := New(ByField("pidhash"), processFields(), DefaultOptions()).Reduce(rows)
	require.Len(t, groups, 2)
	assert.Equal(t, "", groups[0].Key)
	assert.Equal(t, int64(2), groups[0].Rows)
}

func TestFold(t *testing.T) {
	type kv struct {
		k string
		v int
	}
	items := []kv{{"b", 1}, {"a", 2}, {"b", 3}}
	out := Fold(items,
		func(i kv) string { return i.k },
		func(i kv) kv { return i },
		func(acc kv, i kv) kv { acc.v += i.v; return acc })
	assert.Equal(t, []kv{{"a", 2}, {"b", 4}}, out)
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("first_seen")
	require.NoError(t, err)
	assert.Equal(t, FirstSeen, tb)
	tb, err = ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, Smallest, tb)
	_, err = ParseTieBreak("random")
	assert.Error(t, err)
}

func TestCountWeight(t *testing.T) {
	weight := func(e models.RawEvent) int64 {
		if n, ok := e.Get("eventcount").Int64(); ok && n > 0 {
			return n
		}
		return 1
	}
	rows := []models.RawEvent{
		procRow("P1", "a", 1, "eventcount", "5"),
		procRow("P1", "a", 2),
		procRow("P1", "a", 3, "eventcount", "2", "activitytype", "WRITE"),
	}
	groups := New(ByField("pidhash"), []FieldSpec{
		{As: "events", Rule: Count, Weight: weight},
		{As: "writes", Rule: Count, Weight: weight, When: func(e models.RawEvent) bool {
			return e.ActivityType() == "WRITE"
		}},
		{As: "rows", Rule: Count},
	}, DefaultOptions()).Reduce(rows)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(8), groups[0].Count("events"))
	assert.Equal(t, int64(2), groups[0].Count("writes"))
	assert.Equal(t, int64(3), groups[0].Count("rows"))
}
