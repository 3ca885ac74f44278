// Package ancestry walks parent pointers from every process to its root.
package ancestry

import (
	"context"
	"sort"

	"github.com/alitto/pond/v2"

	"entitygraph/pkg/models"
)

const defaultChunkSize = 1024

// Options bound the walk and its parallelism.
type Options struct {
	// MaxDepth stops a walk after this many hops. 0 means unbounded.
	MaxDepth  int
	Workers   int
	ChunkSize int
}

type node struct {
	parent string
	name   string
	osPid  *int64
}

// Index maps pid_hash to its declared parent.
type Index struct {
	nodes map[string]node
	keys  []string
}

// NewIndex indexes processes by pid_hash. The first row per pid_hash wins.
func NewIndex(procs []models.Process) *Index {
	idx := &Index{nodes: make(map[string]node, len(procs))}
	for _, p := range procs {
		if _, ok := idx.nodes[p.PidHash]; ok {
			continue
		}
		idx.nodes[p.PidHash] = node{parent: p.ParentPidHash, name: p.ProcessName, osPid: p.OSPid}
		idx.keys = append(idx.keys, p.PidHash)
	}
	sort.Strings(idx.keys)
	return idx
}

// Len returns the number of indexed processes.
func (idx *Index) Len() int {
	return len(idx.keys)
}

func (idx *Index) step(pid string) models.AncestryStep {
	n := idx.nodes[pid]
	return models.AncestryStep{PidHash: pid, ProcessName: n.name, OSPid: n.osPid}
}

// Walk follows parent pointers from pid until a root, a cycle, a missing
// parent or MaxDepth. No identity appears twice in the returned path.
func (idx *Index) Walk(pid string, maxDepth int) models.AncestryPath {
	out := models.AncestryPath{PidHash: pid}
	visited := map[string]struct{}{pid: {}}
	out.Path = append(out.Path, pid)
	out.PathNames = append(out.PathNames, idx.nodes[pid].name)
	out.Steps = append(out.Steps, idx.step(pid))

	current := pid
	for {
		n, ok := idx.nodes[current]
		if !ok {
			out.ParentMissing = true
			break
		}
		parent := n.parent
		if parent == "" || parent == current {
			break
		}
		if _, seen := visited[parent]; seen {
			out.CycleDetected = true
			break
		}
		if _, known := idx.nodes[parent]; !known {
			out.ParentMissing = true
			break
		}
		if maxDepth > 0 && len(out.Path)-1 >= maxDepth {
			out.Truncated = true
			break
		}
		visited[parent] = struct{}{}
		out.Path = append(out.Path, parent)
		out.PathNames = append(out.PathNames, idx.nodes[parent].name)
		out.Steps = append(out.Steps, idx.step(parent))
		current = parent
	}

	out.Depth = len(out.Path) - 1
	out.RootPidHash = out.Path[len(out.Path)-1]
	return out
}

// Build returns one maximal path per process, ordered by pid_hash. Chunks of
// leaves are walked on a worker pool; each walk is sequential. When ctx is
// cancelled, unstarted chunks are skipped and ctx.Err() is returned.
func Build(ctx context.Context, procs []models.Process, opts Options) ([]models.AncestryPath, error) {
	idx := NewIndex(procs)
	out := make([]models.AncestryPath, idx.Len())
	if idx.Len() == 0 {
		return out, nil
	}

	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	pool := pond.NewPool(workers)
	for start := 0; start < idx.Len(); start += chunk {
		start, end := start, min(start+chunk, idx.Len())
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			for i := start; i < end; i++ {
				out[i] = idx.Walk(idx.keys[i], opts.MaxDepth)
			}
		})
	}
	pool.StopAndWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats counts anomalous paths.
type Stats struct {
	Cycles        int
	MissingParent int
	Truncated     int
	MaxDepth      int
}

// Summarize counts anomalies across paths.
func Summarize(paths []models.AncestryPath) Stats {
	var s Stats
	for _, p := range paths {
		if p.CycleDetected {
			s.Cycles++
		}
		if p.ParentMissing {
			s.MissingParent++
		}
		if p.Truncated {
			s.Truncated++
		}
		if p.Depth > s.MaxDepth {
			s.MaxDepth = p.Depth
		}
	}
	return s
}
