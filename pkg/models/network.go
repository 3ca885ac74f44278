package models

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// ConnCounters are the additive socket counters of a connection.
// MinPacketSize of zero means no packet was sized.
type ConnCounters struct {
	SendBytes       int64   `json:"send_bytes"`
	SendPackets     int64   `json:"send_packets"`
	RecvBytes       int64   `json:"recv_bytes"`
	RecvPackets     int64   `json:"recv_packets"`
	AcceptCount     int64   `json:"accept_count"`
	ConnectCount    int64   `json:"connect_count"`
	DisconnectCount int64   `json:"disconnect_count"`
	ReconnectCount  int64   `json:"reconnect_count"`
	RetransmitCount int64   `json:"retransmit_count"`
	CopyCount       int64   `json:"copy_count"`
	MinPacketSize   int64   `json:"min_packet_size"`
	MaxPacketSize   int64   `json:"max_packet_size"`
	PacketSizeSqSum float64 `json:"packet_size_sq_sum"`
}

// ConnEndpoint identifies a process-to-remote socket.
type ConnEndpoint struct {
	PidHash      string `json:"pid_hash"`
	ConnID       string `json:"conn_id"`
	Hostname     string `json:"hostname"`
	Protocol     string `json:"protocol"`
	LocalIPAddr  string `json:"local_ip_addr"`
	LocalPort    int64  `json:"local_port"`
	RemoteIPAddr string `json:"remote_ip_addr"`
	RemotePort   int64  `json:"remote_port"`
}

// ConnIncrement is a bucketed rollup of raw socket counter samples.
type ConnIncrement struct {
	ConnEndpoint
	BucketStart time.Time `json:"bucket_start"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	SampleCount int64     `json:"sample_count"`
	ConnCounters
}

// Connection is the lifetime total of one connection.
type Connection struct {
	ConnEndpoint
	BucketCount int64     `json:"bucket_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	SampleCount int64     `json:"sample_count"`
	ConnCounters
}

// NetworkSummary rolls every connection of a process into one row.
type NetworkSummary struct {
	PidHash       string `json:"pid_hash"`
	ConnCount     int64  `json:"conn_count"`
	RemoteIPCount int64  `json:"remote_ip_count"`
	ConnCounters
	TotalBytes         int64     `json:"net_total_bytes"`
	SendRatio          *float64  `json:"net_send_ratio"`
	PacketSizeMean     *float64  `json:"net_packet_size_mean"`
	PacketSizeVariance *float64  `json:"net_packet_size_variance"`
	FirstSeen          time.Time `json:"net_first_seen"`
	LastSeen           time.Time `json:"net_last_seen"`
}

var connEndpointColumns = []Column{
	{"pid_hash", TypeVarchar},
	{"conn_id", TypeVarchar},
	{"hostname", TypeVarchar},
	{"protocol", TypeVarchar},
	{"local_ip_addr", TypeVarchar},
	{"local_port", TypeBigInt},
	{"remote_ip_addr", TypeVarchar},
	{"remote_port", TypeBigInt},
}

func connCounterColumns(prefix string) []Column {
	return []Column{
		{prefix + "send_bytes", TypeBigInt},
		{prefix + "send_packets", TypeBigInt},
		{prefix + "recv_bytes", TypeBigInt},
		{prefix + "recv_packets", TypeBigInt},
		{prefix + "accept_count", TypeBigInt},
		{prefix + "connect_count", TypeBigInt},
		{prefix + "disconnect_count", TypeBigInt},
		{prefix + "reconnect_count", TypeBigInt},
		{prefix + "retransmit_count", TypeBigInt},
		{prefix + "copy_count", TypeBigInt},
		{prefix + "min_packet_size", TypeBigInt},
		{prefix + "max_packet_size", TypeBigInt},
		{prefix + "packet_size_sq_sum", TypeDouble},
	}
}

func concatColumns(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// ConnIncrementColumns is the schema of process_conn_incr.
var ConnIncrementColumns = concatColumns(
	connEndpointColumns,
	[]Column{
		{"bucket_start", TypeTimestamp},
		{"first_seen", TypeTimestamp},
		{"last_seen", TypeTimestamp},
		{"sample_count", TypeBigInt},
	},
	connCounterColumns(""),
)

// ConnectionColumns is the schema of process_net_conn.
var ConnectionColumns = concatColumns(
	connEndpointColumns,
	[]Column{
		{"bucket_count", TypeBigInt},
		{"first_seen", TypeTimestamp},
		{"last_seen", TypeTimestamp},
		{"sample_count", TypeBigInt},
	},
	connCounterColumns(""),
)

// NetworkSummaryColumns is the schema of process_net_summary.
var NetworkSummaryColumns = concatColumns(
	[]Column{
		{"pid_hash", TypeVarchar},
		{"conn_count", TypeBigInt},
		{"remote_ip_count", TypeBigInt},
	},
	connCounterColumns("net_"),
	[]Column{
		{"net_total_bytes", TypeBigInt},
		{"net_send_ratio", TypeDouble},
		{"net_packet_size_mean", TypeDouble},
		{"net_packet_size_variance", TypeDouble},
		{"net_first_seen", TypeTimestamp},
		{"net_last_seen", TypeTimestamp},
	},
)

func (e ConnEndpoint) appendTo(row *ordereddict.Dict) {
	row.Set("pid_hash", nullString(e.PidHash)).
		Set("conn_id", nullString(e.ConnID)).
		Set("hostname", nullString(e.Hostname)).
		Set("protocol", nullString(e.Protocol)).
		Set("local_ip_addr", nullString(e.LocalIPAddr)).
		Set("local_port", e.LocalPort).
		Set("remote_ip_addr", nullString(e.RemoteIPAddr)).
		Set("remote_port", e.RemotePort)
}

func (c ConnCounters) appendTo(row *ordereddict.Dict, prefix string) {
	row.Set(prefix+"send_bytes", c.SendBytes).
		Set(prefix+"send_packets", c.SendPackets).
		Set(prefix+"recv_bytes", c.RecvBytes).
		Set(prefix+"recv_packets", c.RecvPackets).
		Set(prefix+"accept_count", c.AcceptCount).
		Set(prefix+"connect_count", c.ConnectCount).
		Set(prefix+"disconnect_count", c.DisconnectCount).
		Set(prefix+"reconnect_count", c.ReconnectCount).
		Set(prefix+"retransmit_count", c.RetransmitCount).
		Set(prefix+"copy_count", c.CopyCount).
		Set(prefix+"min_packet_size", nullMin(c.MinPacketSize)).
		Set(prefix+"max_packet_size", nullMin(c.MaxPacketSize)).
		Set(prefix+"packet_size_sq_sum", c.PacketSizeSqSum)
}

// Row renders the increment as an ordered row.
func (i ConnIncrement) Row() *ordereddict.Dict {
	row := ordereddict.NewDict()
	i.ConnEndpoint.appendTo(row)
	row.Set("bucket_start", nullTime(i.BucketStart)).
		Set("first_seen", nullTime(i.FirstSeen)).
		Set("last_seen", nullTime(i.LastSeen)).
		Set("sample_count", i.SampleCount)
	i.ConnCounters.appendTo(row, "")
	return row
}

// Row renders the connection as an ordered row.
func (c Connection) Row() *ordereddict.Dict {
	row := ordereddict.NewDict()
	c.ConnEndpoint.appendTo(row)
	row.Set("bucket_count", c.BucketCount).
		Set("first_seen", nullTime(c.FirstSeen)).
		Set("last_seen", nullTime(c.LastSeen)).
		Set("sample_count", c.SampleCount)
	c.ConnCounters.appendTo(row, "")
	return row
}

// Row renders the summary as an ordered row.
func (s NetworkSummary) Row() *ordereddict.Dict {
	row := ordereddict.NewDict().
		Set("pid_hash", nullString(s.PidHash)).
		Set("conn_count", s.ConnCount).
		Set("remote_ip_count", s.RemoteIPCount)
	s.ConnCounters.appendTo(row, "net_")
	row.Set("net_total_bytes", s.TotalBytes).
		Set("net_send_ratio", nullFloat(s.SendRatio)).
		Set("net_packet_size_mean", nullFloat(s.PacketSizeMean)).
		Set("net_packet_size_variance", nullFloat(s.PacketSizeVariance)).
		Set("net_first_seen", nullTime(s.FirstSeen)).
		Set("net_last_seen", nullTime(s.LastSeen))
	return row
}
