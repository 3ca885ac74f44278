package ancestry

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

func proc(pid, parent string) models.Process {
	return models.Process{PidHash: pid, ParentPidHash: parent, ProcessName: pid + ".exe"}
}

func TestScenarioABC(t *testing.T) {
	paths, err := Build(context.Background(), []models.Process{
		proc("C", "B"), proc("A", "A"), proc("B", "A"),
	}, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	a, b, c := paths[0], paths[1], paths[2]
	assert.Equal(t, []string{"A"}, a.Path)
	assert.Equal(t, 0, a.Depth)
	assert.Equal(t, []string{"B", "A"}, b.Path)
	assert.Equal(t, []string{"C", "B", "A"}, c.Path)
	assert.Equal(t, 2, c.Depth)
	assert.Equal(t, "A", c.RootPidHash)
	assert.Equal(t, []string{"C.exe", "B.exe", "A.exe"}, c.PathNames)
	require.Len(t, c.Steps, 3)
	assert.Equal(t, "B", c.Steps[1].PidHash)
	assert.False(t, c.CycleDetected)
	assert.False(t, c.ParentMissing)
}

func TestCycleIsBroken(t *testing.T) {
	idx := NewIndex([]models.Process{proc("X", "Y"), proc("Y", "Z"), proc("Z", "X")})
	p := idx.Walk("X", 0)
	assert.Equal(t, []string{"X", "Y", "Z"}, p.Path)
	assert.True(t, p.CycleDetected)
	assert.Equal(t, 2, p.Depth)
}

func TestMissingParentStopsWalk(t *testing.T) {
	idx := NewIndex([]models.Process{proc("C", "B"), proc("B", "GONE"), proc("R", "")})
	p := idx.Walk("C", 0)
	assert.Equal(t, []string{"C", "B"}, p.Path)
	assert.True(t, p.ParentMissing)
	assert.Equal(t, "B", p.RootPidHash)

	r := idx.Walk("R", 0)
	assert.Equal(t, []string{"R"}, r.Path)
	assert.False(t, r.ParentMissing)

	u := idx.Walk("UNKNOWN", 0)
	assert.Equal(t, []string{"UNKNOWN"}, u.Path)
	assert.True(t, u.ParentMissing)
}

func TestMaxDepthTruncates(t *testing.T) {
	idx := NewIndex([]models.Process{proc("D", "C"), proc("C", "B"), proc("B", "A"), proc("A", "A")})
	p := idx.Walk("D", 2)
	assert.Equal(t, []string{"D", "C", "B"}, p.Path)
	assert.True(t, p.Truncated)
	assert.Equal(t, 2, p.Depth)
}

func TestRandomGraphsTerminate(t *testing.T) {
	rng := rand.New(rand.NewSource(20240101))
	for round := 0; round < 40; round++ {
		n := 1 + rng.Intn(200)
		procs := make([]models.Process, 0, n+5)
		for i := 0; i < n; i++ {
			parent := fmt.Sprintf("P%d", rng.Intn(n+10)) // some parents are missing
			switch rng.Intn(10) {
			case 0:
				parent = fmt.Sprintf("P%d", i) // self parent
			case 1:
				parent = ""
			}
			procs = append(procs, proc(fmt.Sprintf("P%d", i), parent))
		}
		// An explicit k-cycle.
		k := 2 + rng.Intn(5)
		for j := 0; j < k; j++ {
			procs = append(procs, proc(fmt.Sprintf("K%d", j), fmt.Sprintf("K%d", (j+1)%k)))
		}

		paths, err := Build(context.Background(), procs, Options{Workers: 4, ChunkSize: 7})
		require.NoError(t, err)
		require.Len(t, paths, len(procs))

		for _, p := range paths {
			assert.LessOrEqual(t, len(p.Path), len(procs))
			assert.Equal(t, len(p.Path)-1, p.Depth)
			seen := make(map[string]bool)
			for _, id := range p.Path {
				assert.False(t, seen[id], "repeated %s in %v", id, p.Path)
				seen[id] = true
			}
			if p.PidHash[0] == 'K' {
				assert.True(t, p.CycleDetected)
				assert.Len(t, p.Path, k)
			}
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	procs := []models.Process{proc("C", "B"), proc("A", "A"), proc("B", "A"), proc("D", "C")}
	one, err := Build(context.Background(), procs, Options{Workers: 1})
	require.NoError(t, err)
	many, err := Build(context.Background(), procs, Options{Workers: 8, ChunkSize: 1})
	require.NoError(t, err)
	assert.Equal(t, one, many)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, []models.Process{proc("A", "A")}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	idx := NewIndex([]models.Process{proc("X", "Y"), proc("Y", "X"), proc("M", "GONE")})
	s := Summarize([]models.AncestryPath{idx.Walk("X", 0), idx.Walk("Y", 0), idx.Walk("M", 0)})
	assert.Equal(t, 2, s.Cycles)
	assert.Equal(t, 1, s.MissingParent)
	assert.Equal(t, 1, s.MaxDepth)
}
