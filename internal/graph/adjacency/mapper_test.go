package adjacency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

func edges(rows []models.AdjacencyRow, edgeType string) []models.AdjacencyRow {
	var out []models.AdjacencyRow
	for _, r := range rows {
		if r.RecordType == recordEdge && r.Type == edgeType {
			out = append(out, r)
		}
	}
	return out
}

func testBundle() Bundle {
	return Bundle{
		Processes: []models.Process{
			{PidHash: "ROOT", ParentPidHash: "ROOT", Hostname: "HOST1", ProcessName: "system"},
			{PidHash: "P1", ParentPidHash: "ROOT", Hostname: "HOST1", ProcessName: "cmd.exe", FileID: "f-cmd", ProcessPath: `C:\cmd.exe`},
		},
		Files: []models.ProcessFile{{PidHash: "P1", FileID: "f-a", Filename: `C:\a.txt`, ReadBytes: 5}},
		Connections: []models.Connection{
			{ConnEndpoint: models.ConnEndpoint{PidHash: "P1", ConnID: "c1", Hostname: "HOST1", RemoteIPAddr: "127.0.0.1"}},
			{ConnEndpoint: models.ConnEndpoint{PidHash: "P1", ConnID: "c2", Hostname: "HOST1", RemoteIPAddr: "8.8.8.8"}},
		},
		Registry: []models.ProcessRegistry{{PidHash: "P1", RegID: "r1", RegPath: `HKLM\Run`}},
		Images:   []models.ProcessImageLoad{{PidHash: "P1", ImageID: "i1", Filename: "ntdll.dll"}},
		Labels:   []models.DetectionLabel{{PidHash: "P1", RuleID: "rule-1"}},
	}
}

func TestMapEdges(t *testing.T) {
	rows := NewMapper(MapperOptions{}).Map(testBundle())
	for _, r := range rows {
		assert.Equal(t, recordEdge, r.RecordType)
		assert.Nil(t, r.Data)
	}

	parent := edges(rows, ParentOfProcess)
	require.Len(t, parent, 1, "self-parent roots emit no parent edge")
	assert.Equal(t, "proc:host1:ROOT", parent[0].VertexID)
	assert.Equal(t, "proc:host1:P1", parent[0].AdjacentID)

	image := edges(rows, ImageOfProcess)
	require.Len(t, image, 1)
	assert.Equal(t, "file:f-cmd", image[0].VertexID)

	files := edges(rows, AccessedFile)
	require.Len(t, files, 1)
	assert.Equal(t, "file:f-a", files[0].AdjacentID)

	conns := edges(rows, ConnectedTo)
	require.Len(t, conns, 2)
	assert.Equal(t, "ip:host1:127.0.0.1", conns[0].AdjacentID)
	assert.Equal(t, "ip:8.8.8.8", conns[1].AdjacentID)

	assert.Len(t, edges(rows, OpenedConnection), 2)
	assert.Len(t, edges(rows, TouchedRegistry), 1)
	reg := edges(rows, TouchedRegistry)[0]
	assert.Equal(t, "HOST1", reg.Hostname)
	assert.Len(t, edges(rows, LoadedImage), 1)
}

func TestMapVertexRowsAreUnique(t *testing.T) {
	rows := NewMapper(MapperOptions{WriteVertexRows: true, IncludeEdgeData: true}).Map(testBundle())
	seen := make(map[string]bool)
	var p1 models.AdjacencyRow
	for _, r := range rows {
		if r.RecordType != recordVertex {
			continue
		}
		assert.False(t, seen[r.VertexID], r.VertexID)
		seen[r.VertexID] = true
		if r.VertexID == "proc:host1:P1" {
			p1 = r
		}
	}
	assert.True(t, seen["proc:host1:ROOT"])
	assert.True(t, seen["reg:r1"])
	assert.True(t, seen["image:i1"])
	assert.Equal(t, []string{"rule-1"}, p1.Data["labels"])
	_, hasArgs := p1.Data["args"]
	assert.False(t, hasArgs)

	files := edges(rows, AccessedFile)
	require.Len(t, files, 1)
	assert.Equal(t, int64(5), files[0].Data["read_bytes"])
}

func TestIPVertexID(t *testing.T) {
	assert.Equal(t, "ip:h:::1", ipVertexID("H", "::1"))
	assert.Equal(t, "ip:h:0.0.0.0", ipVertexID("H", "0.0.0.0"))
	assert.Equal(t, "ip:1.2.3.4", ipVertexID("H", "1.2.3.4"))
	assert.Equal(t, "", ipVertexID("H", ""))
}
