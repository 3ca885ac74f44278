package entity

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/codec"
	"entitygraph/internal/reduce"
	"entitygraph/pkg/models"
)

var day = models.DayPartition("20240101")

const baseTicks = int64(133485408000000000) // 2024-01-01T00:00:00Z

func raw(domain models.Domain, kv ...interface{}) models.RawEvent {
	ev := models.NewRawEvent(domain, day)
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Set(kv[i].(string), models.ParseRawValue(kv[i+1]))
	}
	return ev
}

func TestSvchostStartStopScenario(t *testing.T) {
	start := []models.RawEvent{
		raw(models.DomainProcess, "pidhash", "P1", "processname", "svchost.exe", "eventtime", baseTicks, "activitytype", "START"),
		raw(models.DomainProcess, "pidhash", "P1", "processname", "", "eventtime", baseTicks+10_000_000, "activitytype", "POLLED"),
		raw(models.DomainProcess, "pidhash", "P1", "processname", "svchost.exe", "eventtime", baseTicks+20_000_000, "activitytype", "POLLED"),
	}
	stop := []models.RawEvent{
		raw(models.DomainProcessStop, "pidhash", "P1", "exitcode", int64(0), "eventtime", baseTicks+30_000_000),
	}

	starts, stops := SplitLifecycle(start, stop)
	require.Len(t, starts, 3)
	require.Len(t, stops, 1)

	opts := reduce.DefaultOptions()
	procs := Merge(BuildProcesses(starts, opts), BuildStops(stops, opts))
	require.Len(t, procs, 1)
	p := procs[0]
	assert.Equal(t, "P1", p.PidHash)
	assert.Equal(t, "svchost.exe", p.ProcessName)
	assert.Equal(t, int64(1), p.NumProcessName)
	assert.Equal(t, int64(3), p.EventCount)
	require.NotNil(t, p.ExitCode)
	assert.Equal(t, int64(0), *p.ExitCode)
	assert.Equal(t, "2024-01-01T00:00:00Z", p.FirstSeen.Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "2024-01-01T00:00:20Z", p.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "2024-01-01T00:00:30Z", p.StopSeen.Format("2006-01-02T15:04:05Z07:00"))
}

func TestStopRowsInProcessDomain(t *testing.T) {
	rows := []models.RawEvent{
		raw(models.DomainProcess, "pidhash", "P1", "activitytype", "start"),
		raw(models.DomainProcess, "pidhash", "P1", "activitytype", "stop", "exitcode", "5"),
	}
	starts, stops := SplitLifecycle(rows, nil)
	assert.Len(t, starts, 1)
	assert.Len(t, stops, 1)
}

func TestMergeWithoutStops(t *testing.T) {
	opts := reduce.DefaultOptions()
	procs := BuildProcesses([]models.RawEvent{
		raw(models.DomainProcess, "pidhash", "P1"),
		raw(models.DomainProcess, "pidhash", "P2"),
	}, opts)
	merged := Merge(procs, BuildStops(nil, opts))
	require.Len(t, merged, 2)
	for _, p := range merged {
		assert.Nil(t, p.ExitCode)
		assert.Nil(t, p.NumExitCode)
		assert.True(t, p.StopSeen.IsZero())
	}
}

func TestMergeCardinality(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	opts := reduce.DefaultOptions()
	for round := 0; round < 25; round++ {
		var start, stop []models.RawEvent
		ns, nt := rng.Intn(50), rng.Intn(80)
		for i := 0; i < ns; i++ {
			start = append(start, raw(models.DomainProcess, "pidhash", fmt.Sprintf("P%d", rng.Intn(30))))
		}
		for i := 0; i < nt; i++ {
			stop = append(stop, raw(models.DomainProcessStop,
				"pidhash", fmt.Sprintf("P%d", rng.Intn(60)), "exitcode", int64(rng.Intn(3))))
		}
		procs := BuildProcesses(start, opts)
		assert.Len(t, Merge(procs, BuildStops(stop, opts)), len(procs))
	}
}

func TestStopCountersUseMax(t *testing.T) {
	stops := BuildStops([]models.RawEvent{
		raw(models.DomainProcessStop, "pidhash", "P1", "cpucyclecount", "100", "exitcode", "1", "cpuutilization", "0.5"),
		raw(models.DomainProcessStop, "pidhash", "P1", "cpucyclecount", "900", "exitcode", "2"),
	}, reduce.DefaultOptions())
	require.Len(t, stops, 1)
	s := stops[0]
	assert.Equal(t, int64(900), *s.CPUCycleCount)
	assert.Equal(t, int64(1), *s.ExitCode)
	assert.Equal(t, int64(2), *s.NumExitCode)
	assert.Equal(t, 0.5, *s.CPUUtilization)
	assert.Nil(t, s.CommitPeak)
}

func TestDerivedPathAndFileID(t *testing.T) {
	procs := BuildProcesses([]models.RawEvent{
		raw(models.DomainProcess, "pidhash", "P1", "hostname", "host1",
			"processname", "cmd.exe", "processpath", `C:\Windows\System32\`),
		raw(models.DomainProcess, "pidhash", "P2", "hostname", "host1",
			"processname", "a.exe", "processpath", `C:\Tools\b.exe`),
		raw(models.DomainProcess, "pidhash", "P3"),
	}, reduce.DefaultOptions())
	require.Len(t, procs, 3)
	assert.Equal(t, `C:\Windows\System32\cmd.exe`, procs[0].ProcessPath)
	assert.Equal(t, codec.FileIdentity("HOST1", `c:\windows\system32\cmd.exe`), procs[0].FileID)
	assert.Equal(t, `C:\Tools\b.exe`, procs[1].ProcessPath)
	assert.Equal(t, "", procs[2].FileID)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/usr/bin/ls", NormalizePath("/usr/bin/", "ls"))
	assert.Equal(t, "/usr/bin/ls", NormalizePath("/usr/bin/ls", "ls"))
	assert.Equal(t, `C:\`, NormalizePath(`C:\`, ""))
	assert.Equal(t, "", NormalizePath("", "ls"))
}

func TestFilesAndProcessFiles(t *testing.T) {
	rows := []models.RawEvent{
		raw(models.DomainFile, "pidhash", "P1", "hostname", "h", "filename", `C:\a.txt`, "activitytype", "READ", "bytesrequested", "10"),
		raw(models.DomainFile, "pidhash", "P1", "hostname", "H", "filename", `c:\A.TXT`, "activitytype", "WRITE", "bytesrequested", "4"),
		raw(models.DomainFile, "pidhash", "P2", "hostname", "h", "filename", `C:\a.txt`, "activitytype", "DELETE"),
	}
	opts := reduce.DefaultOptions()

	files := BuildFiles(rows, opts)
	require.Len(t, files, 1)
	assert.Equal(t, int64(3), files[0].EventCount)
	assert.Equal(t, int64(2), files[0].NumFilename)

	pf := BuildProcessFiles(rows, opts)
	require.Len(t, pf, 2)
	assert.Equal(t, "P1", pf[0].PidHash)
	assert.Equal(t, files[0].FileID, pf[0].FileID)
	assert.Equal(t, int64(1), pf[0].ReadCount)
	assert.Equal(t, int64(10), pf[0].ReadBytes)
	assert.Equal(t, int64(4), pf[0].WriteBytes)
	assert.Equal(t, int64(1), pf[1].DeleteCount)
}

func TestRegistryAndImageLoads(t *testing.T) {
	opts := reduce.DefaultOptions()
	reg := BuildProcessRegistry([]models.RawEvent{
		raw(models.DomainRegistry, "pidhash", "P1", "hostname", "h", "regpath", `HKLM\Run`, "activitytype", "REG_SETVALUE"),
		raw(models.DomainRegistry, "pidhash", "P1", "hostname", "h", "regpath", `HKLM\Run`, "activitytype", "REG_QUERYVALUE"),
		raw(models.DomainRegistry, "pidhash", "P1", "hostname", "h", "regpath", `HKLM\Run`, "activitytype", "REG_DELETEVALUE"),
	}, opts)
	require.Len(t, reg, 1)
	assert.Equal(t, int64(1), reg[0].WriteCount)
	assert.Equal(t, int64(1), reg[0].ReadCount)
	assert.Equal(t, int64(1), reg[0].DeleteCount)

	images := BuildProcessImageLoads([]models.RawEvent{
		raw(models.DomainImageLoad, "pidhash", "P1", "hostname", "h", "filename", `C:\Windows\NTDLL.DLL`, "activitytype", "LOAD", "md5", "ABC"),
		raw(models.DomainImageLoad, "pidhash", "P1", "hostname", "h", "filename", `c:\windows\ntdll.dll`, "activitytype", "UNLOAD"),
	}, opts)
	require.Len(t, images, 1)
	assert.Equal(t, `c:\windows\ntdll.dll`, images[0].Filename)
	assert.Equal(t, "abc", images[0].MD5)
	assert.Equal(t, int64(1), images[0].LoadCount)
	assert.Equal(t, int64(1), images[0].UnloadCount)
}

func TestEventCountWeightsActivity(t *testing.T) {
	opts := reduce.DefaultOptions()
	rows := []models.RawEvent{
		raw(models.DomainFile, "pidhash", "P1", "hostname", "h", "filename", `C:\a.txt`, "activitytype", "READ", "bytesrequested", "500", "eventcount", int64(5)),
		raw(models.DomainFile, "pidhash", "P1", "hostname", "h", "filename", `C:\a.txt`, "activitytype", "WRITE", "bytesrequested", "8"),
	}

	files := BuildFiles(rows, opts)
	require.Len(t, files, 1)
	assert.Equal(t, int64(6), files[0].EventCount)

	pf := BuildProcessFiles(rows, opts)
	require.Len(t, pf, 1)
	assert.Equal(t, int64(6), pf[0].EventCount)
	assert.Equal(t, int64(5), pf[0].ReadCount)
	assert.Equal(t, int64(1), pf[0].WriteCount)
	assert.Equal(t, int64(500), pf[0].ReadBytes)

	reg := BuildProcessRegistry([]models.RawEvent{
		raw(models.DomainRegistry, "pidhash", "P1", "hostname", "h", "regpath", `HKLM\Run`, "activitytype", "REG_QUERYVALUE", "eventcount", int64(3)),
		raw(models.DomainRegistry, "pidhash", "P1", "hostname", "h", "regpath", `HKLM\Run`, "activitytype", "REG_SETVALUE", "eventcount", int64(0)),
	}, opts)
	require.Len(t, reg, 1)
	assert.Equal(t, int64(4), reg[0].EventCount)
	assert.Equal(t, int64(3), reg[0].ReadCount)
	assert.Equal(t, int64(1), reg[0].WriteCount, "a zero eventcount still stands for one row")

	images := BuildProcessImageLoads([]models.RawEvent{
		raw(models.DomainImageLoad, "pidhash", "P1", "hostname", "h", "filename", `ntdll.dll`, "activitytype", "LOAD", "eventcount", int64(2)),
	}, opts)
	require.Len(t, images, 1)
	assert.Equal(t, int64(2), images[0].LoadCount)
}

func TestMergeIgnoresUnresolvedIdentity(t *testing.T) {
	opts := reduce.DefaultOptions()
	starts := []models.RawEvent{
		raw(models.DomainProcess, "processname", "orphan.exe", "eventtime", baseTicks),
		raw(models.DomainProcess, "pidhash", "P1", "processname", "a.exe", "eventtime", baseTicks),
	}
	stops := []models.RawEvent{
		raw(models.DomainProcessStop, "exitcode", int64(7), "eventtime", baseTicks+1),
		raw(models.DomainProcessStop, "pidhash", "P1", "exitcode", int64(0), "eventtime", baseTicks+1),
	}

	procs := Merge(BuildProcesses(starts, opts), BuildStops(stops, opts))
	require.Len(t, procs, 2)
	assert.Equal(t, "", procs[0].PidHash)
	assert.Nil(t, procs[0].ExitCode)
	assert.Nil(t, procs[0].NumExitCode)
	assert.True(t, procs[0].StopSeen.IsZero())
	require.NotNil(t, procs[1].ExitCode)
	assert.Equal(t, int64(0), *procs[1].ExitCode)
}
