package adjacency

import (
	"fmt"
	"net"
	"strings"

	"entitygraph/internal/logger"
	"entitygraph/pkg/models"
)

// TableName is the name of the exported graph table.
const TableName = "process_graph"

const (
	recordVertex = "vertex"
	recordEdge   = "edge"
)

// Vertex types.
const (
	ProcessVertex    = "ProcessVertex"
	FileVertex       = "FileVertex"
	ConnectionVertex = "ConnectionVertex"
	IPVertex         = "IPVertex"
	RegistryVertex   = "RegistryVertex"
	ImageVertex      = "ImageVertex"
)

// Edge types.
const (
	ParentOfProcess  = "ParentOfProcess"
	ImageOfProcess   = "ImageOfProcess"
	AccessedFile     = "AccessedFile"
	OpenedConnection = "OpenedConnection"
	ConnectedTo      = "ConnectedTo"
	TouchedRegistry  = "TouchedRegistry"
	LoadedImage      = "LoadedImage"
)

// Bundle is the resolved entity set of one partition.
type Bundle struct {
	Processes   []models.Process
	Files       []models.ProcessFile
	Connections []models.Connection
	Registry    []models.ProcessRegistry
	Images      []models.ProcessImageLoad
	Labels      []models.DetectionLabel
}

// Mapper converts resolved entities into adjacency rows.
type Mapper struct {
	writeVertexRows bool
	includeEdgeData bool
}

// MapperOptions controls mapper output size and fidelity.
type MapperOptions struct {
	WriteVertexRows bool
	IncludeEdgeData bool
}

// NewMapper creates a mapper.
func NewMapper(opts MapperOptions) *Mapper {
	return &Mapper{
		writeVertexRows: opts.WriteVertexRows,
		includeEdgeData: opts.IncludeEdgeData,
	}
}

type emitter struct {
	m     *Mapper
	rows  []models.AdjacencyRow
	seen  map[string]struct{}
	hosts map[string]string
}

// Map converts a bundle into vertex and edge rows. Each vertex is emitted at
// most once; edges follow input order.
func (m *Mapper) Map(b Bundle) []models.AdjacencyRow {
	e := &emitter{m: m, seen: make(map[string]struct{}), hosts: make(map[string]string, len(b.Processes))}
	for _, p := range b.Processes {
		if _, ok := e.hosts[p.PidHash]; !ok {
			e.hosts[p.PidHash] = p.Hostname
		}
	}

	labels := make(map[string][]string)
	for _, l := range b.Labels {
		labels[l.PidHash] = append(labels[l.PidHash], l.RuleID)
	}

	for _, p := range b.Processes {
		e.mapProcess(p, labels[p.PidHash])
	}
	for _, f := range b.Files {
		e.mapFile(f)
	}
	for _, c := range b.Connections {
		e.mapConnection(c)
	}
	for _, r := range b.Registry {
		e.mapRegistry(r)
	}
	for _, i := range b.Images {
		e.mapImage(i)
	}
	return e.rows
}

func (e *emitter) mapProcess(p models.Process, ruleIDs []string) {
	if p.PidHash == "" {
		logger.Debugf("Skipping process without pid_hash (host=%s, name=%s)", p.Hostname, p.ProcessName)
		return
	}
	procID := processVertexID(p.Hostname, p.PidHash)
	data := map[string]interface{}{
		"process_name": p.ProcessName,
		"process_path": p.ProcessPath,
		"args":         p.Args,
	}
	if len(ruleIDs) > 0 {
		data["labels"] = ruleIDs
	}
	e.vertex(ProcessVertex, procID, p.Hostname, p, data)

	if parent := p.ParentPidHash; parent != "" && parent != p.PidHash {
		parentID := processVertexID(e.hostOf(parent, p.Hostname), parent)
		e.vertex(ProcessVertex, parentID, p.Hostname, p, nil)
		e.edge(ParentOfProcess, parentID, procID, p.Hostname, p, nil)
	}

	if p.FileID != "" {
		fileID := prefixed("file", p.FileID)
		e.vertex(FileVertex, fileID, p.Hostname, p, map[string]interface{}{"filename": p.ProcessPath})
		e.edge(ImageOfProcess, fileID, procID, p.Hostname, p, nil)
	}
}

func (e *emitter) mapFile(f models.ProcessFile) {
	if f.PidHash == "" || f.FileID == "" {
		return
	}
	host := e.hostOf(f.PidHash, "")
	procID := processVertexID(host, f.PidHash)
	fileID := prefixed("file", f.FileID)
	e.vertex(FileVertex, fileID, host, f, map[string]interface{}{"filename": f.Filename})
	e.edge(AccessedFile, procID, fileID, host, f, map[string]interface{}{
		"read_bytes":   f.ReadBytes,
		"write_bytes":  f.WriteBytes,
		"delete_count": f.DeleteCount,
	})
}

func (e *emitter) mapConnection(c models.Connection) {
	if c.PidHash == "" || c.ConnID == "" {
		return
	}
	host := c.Hostname
	if host == "" {
		host = e.hostOf(c.PidHash, "")
	}
	procID := processVertexID(host, c.PidHash)
	connID := prefixed("conn", c.ConnID)
	e.vertex(ConnectionVertex, connID, host, c, map[string]interface{}{
		"protocol":    c.Protocol,
		"remote_port": c.RemotePort,
	})
	e.edge(OpenedConnection, procID, connID, host, c, map[string]interface{}{
		"send_bytes": c.SendBytes,
		"recv_bytes": c.RecvBytes,
	})

	if c.RemoteIPAddr != "" {
		ipID := ipVertexID(host, c.RemoteIPAddr)
		e.vertex(IPVertex, ipID, host, c, nil)
		e.edge(ConnectedTo, connID, ipID, host, c, nil)
	}
}

func (e *emitter) mapRegistry(r models.ProcessRegistry) {
	if r.PidHash == "" || r.RegID == "" {
		return
	}
	host := e.hostOf(r.PidHash, "")
	procID := processVertexID(host, r.PidHash)
	regID := prefixed("reg", r.RegID)
	e.vertex(RegistryVertex, regID, host, r, map[string]interface{}{"reg_path": r.RegPath})
	e.edge(TouchedRegistry, procID, regID, host, r, map[string]interface{}{
		"read_count":  r.ReadCount,
		"write_count": r.WriteCount,
	})
}

func (e *emitter) mapImage(i models.ProcessImageLoad) {
	if i.PidHash == "" || i.ImageID == "" {
		return
	}
	host := e.hostOf(i.PidHash, "")
	procID := processVertexID(host, i.PidHash)
	imageID := prefixed("image", i.ImageID)
	e.vertex(ImageVertex, imageID, host, i, map[string]interface{}{"filename": i.Filename, "md5": i.MD5})
	e.edge(LoadedImage, procID, imageID, host, i, map[string]interface{}{"load_count": i.LoadCount})
}

func (e *emitter) vertex(rowType, id, host string, src interface{}, data map[string]interface{}) {
	if id == "" {
		return
	}
	if _, ok := e.seen[id]; ok {
		return
	}
	e.seen[id] = struct{}{}
	if !e.m.writeVertexRows {
		return
	}
	e.rows = append(e.rows, baseRow(src, recordVertex, rowType, id, "", host, compact(data)))
}

func (e *emitter) edge(rowType, from, to, host string, src interface{}, data map[string]interface{}) {
	if from == "" || to == "" {
		return
	}
	if !e.m.includeEdgeData {
		data = nil
	}
	e.rows = append(e.rows, baseRow(src, recordEdge, rowType, from, to, host, compact(data)))
}

func (e *emitter) hostOf(pid, fallback string) string {
	if h, ok := e.hosts[pid]; ok && h != "" {
		return h
	}
	return fallback
}

func baseRow(src interface{}, recordType, rowType, vertexID, adjacentID, host string, data map[string]interface{}) models.AdjacencyRow {
	row := models.AdjacencyRow{
		RecordType: recordType,
		Type:       rowType,
		VertexID:   vertexID,
		AdjacentID: adjacentID,
		Hostname:   host,
		Data:       data,
	}
	switch s := src.(type) {
	case models.Process:
		row.Timestamp = s.FirstSeen
	case models.ProcessFile:
		row.Timestamp = s.FirstSeen
	case models.Connection:
		row.Timestamp = s.FirstSeen
	case models.ProcessRegistry:
		row.Timestamp = s.FirstSeen
	case models.ProcessImageLoad:
		row.Timestamp = s.FirstSeen
	}
	return row
}

func compact(data map[string]interface{}) map[string]interface{} {
	for k, v := range data {
		if s, ok := v.(string); ok && s == "" {
			delete(data, k)
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func processVertexID(host, pid string) string {
	if pid == "" {
		return ""
	}
	return fmt.Sprintf("proc:%s:%s", strings.ToLower(host), pid)
}

func prefixed(kind, id string) string {
	if id == "" {
		return ""
	}
	return kind + ":" + id
}

// ipVertexID qualifies loopback and unspecified addresses by host so that
// 127.0.0.1 on two machines stays two vertices.
func ipVertexID(host, addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}
	if isLocalAddr(addr) {
		return fmt.Sprintf("ip:%s:%s", strings.ToLower(host), addr)
	}
	return "ip:" + addr
}

func isLocalAddr(addr string) bool {
	if addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}
