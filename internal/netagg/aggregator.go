// Package netagg rolls raw socket counter samples up into time-bucketed
// increments, per-connection totals and per-process network summaries.
package netagg

import (
	"strings"
	"time"

	"entitygraph/internal/codec"
	"entitygraph/internal/reduce"
	"entitygraph/pkg/models"
)

// DefaultBucketWidth is the stage-1 bucket width.
const DefaultBucketWidth = time.Minute

// Normalized transport activities.
const (
	ActivitySend       = "SEND"
	ActivityRecv       = "RECV"
	ActivityAccept     = "ACCEPT"
	ActivityConnect    = "CONNECT"
	ActivityDisconnect = "DISCONNECT"
	ActivityReconnect  = "RECONNECT"
	ActivityRetransmit = "RETRANSMIT"
	ActivityCopy       = "COPY"
)

var activityAliases = map[string]string{
	"SEND":       ActivitySend,
	"SENDTO":     ActivitySend,
	"RECV":       ActivityRecv,
	"RECEIVE":    ActivityRecv,
	"RECVFROM":   ActivityRecv,
	"ACCEPT":     ActivityAccept,
	"CONNECT":    ActivityConnect,
	"DISCONNECT": ActivityDisconnect,
	"RECONNECT":  ActivityReconnect,
	"RETRANSMIT": ActivityRetransmit,
	"COPY":       ActivityCopy,
}

// NormalizeActivity maps sensor spellings such as "TcpIp/Send" or
// "tcp recv" onto one of the Activity constants. Unknown values return "".
func NormalizeActivity(s string) string {
	fields := strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return r == '/' || r == ' ' || r == '_' || r == '-' || r == '.'
	})
	for i := len(fields) - 1; i >= 0; i-- {
		if a, ok := activityAliases[fields[i]]; ok {
			return a
		}
	}
	return ""
}

func ipText(v models.RawValue) string {
	if v.Kind == models.KindNumber {
		if u, ok := v.Uint64(); ok && u <= 0xFFFFFFFF {
			return codec.DottedQuad(uint32(u))
		}
	}
	return v.String()
}

func intOr(v models.RawValue, def int64) int64 {
	if i, ok := v.Int64(); ok {
		return i
	}
	return def
}

// Samples turns every raw row into a single-sample increment whose
// bucket_start is the exact event time.
func Samples(rows []models.RawEvent) []models.ConnIncrement {
	out := make([]models.ConnIncrement, 0, len(rows))
	for _, e := range rows {
		ts := time.Time{}
		if ticks, ok := e.Get(models.FieldEventTime).Uint64(); ok {
			ts = codec.TicksTime(ticks)
		}
		ep := models.ConnEndpoint{
			PidHash:      e.Text(models.FieldPidHash),
			Hostname:     e.Text(models.FieldHostname),
			Protocol:     strings.ToUpper(e.Text(models.FieldProtocol)),
			LocalIPAddr:  ipText(e.Get(models.FieldLocalIPAddr)),
			LocalPort:    intOr(e.Get(models.FieldLocalPort), 0),
			RemoteIPAddr: ipText(e.Get(models.FieldRemoteIPAddr)),
			RemotePort:   intOr(e.Get(models.FieldRemotePort), 0),
		}
		ep.ConnID = codec.ConnIdentity(ep.Hostname, ep.Protocol, ep.LocalIPAddr, ep.LocalPort, ep.RemoteIPAddr, ep.RemotePort)

		out = append(out, models.ConnIncrement{
			ConnEndpoint: ep,
			BucketStart:  ts,
			FirstSeen:    ts,
			LastSeen:     ts,
			SampleCount:  1,
			ConnCounters: sampleCounters(e),
		})
	}
	return out
}

func sampleCounters(e models.RawEvent) models.ConnCounters {
	var c models.ConnCounters
	count := intOr(e.Get(models.FieldEventCount), 1)
	if count < 1 {
		count = 1
	}
	size := intOr(e.Get(models.FieldPacketSize), 0)
	if size < 0 {
		size = 0
	}

	switch NormalizeActivity(e.ActivityType()) {
	case ActivitySend:
		c.SendBytes, c.SendPackets = size, count
	case ActivityRecv:
		c.RecvBytes, c.RecvPackets = size, count
	case ActivityAccept:
		c.AcceptCount = count
		return c
	case ActivityConnect:
		c.ConnectCount = count
		return c
	case ActivityDisconnect:
		c.DisconnectCount = count
		return c
	case ActivityReconnect:
		c.ReconnectCount = count
		return c
	case ActivityRetransmit:
		c.RetransmitCount = count
		return c
	case ActivityCopy:
		c.CopyCount = count
		return c
	default:
		return c
	}

	if size <= 0 {
		return c
	}
	avg := float64(size) / float64(count)
	c.MinPacketSize = intOr(e.Get(models.FieldMinPacketSize), int64(avg))
	c.MaxPacketSize = intOr(e.Get(models.FieldMaxPacketSize), int64(avg+0.5))
	if sq, ok := e.Get(models.FieldPacketSizeSquared).Float(); ok {
		c.PacketSizeSqSum = sq
	} else {
		c.PacketSizeSqSum = float64(count) * avg * avg
	}
	return c
}

func minPositive(a, b int64) int64 {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	}
	return b
}

func addCounters(a, b models.ConnCounters) models.ConnCounters {
	a.SendBytes += b.SendBytes
	a.SendPackets += b.SendPackets
	a.RecvBytes += b.RecvBytes
	a.RecvPackets += b.RecvPackets
	a.AcceptCount += b.AcceptCount
	a.ConnectCount += b.ConnectCount
	a.DisconnectCount += b.DisconnectCount
	a.ReconnectCount += b.ReconnectCount
	a.RetransmitCount += b.RetransmitCount
	a.CopyCount += b.CopyCount
	a.MinPacketSize = minPositive(a.MinPacketSize, b.MinPacketSize)
	if b.MaxPacketSize > a.MaxPacketSize {
		a.MaxPacketSize = b.MaxPacketSize
	}
	a.PacketSizeSqSum += b.PacketSizeSqSum
	return a
}

func minTime(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}
	return a
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// mergeEndpoint fills descriptive fields left empty by earlier rows,
// preferring the smaller value so the result is order independent.
func mergeEndpoint(a, b models.ConnEndpoint) models.ConnEndpoint {
	pick := func(x, y string) string {
		if x == "" || (y != "" && y < x) {
			return y
		}
		return x
	}
	a.Hostname = pick(a.Hostname, b.Hostname)
	a.LocalIPAddr = pick(a.LocalIPAddr, b.LocalIPAddr)
	a.RemoteIPAddr = pick(a.RemoteIPAddr, b.RemoteIPAddr)
	if a.LocalPort == 0 || (b.LocalPort != 0 && b.LocalPort < a.LocalPort) {
		a.LocalPort = b.LocalPort
	}
	if a.RemotePort == 0 || (b.RemotePort != 0 && b.RemotePort < a.RemotePort) {
		a.RemotePort = b.RemotePort
	}
	return a
}

// BucketStart floors t to a multiple of width over Unix microseconds.
func BucketStart(t time.Time, width time.Duration) time.Time {
	if t.IsZero() {
		return t
	}
	w := width.Microseconds()
	if w <= 0 {
		return t
	}
	us := t.UnixMicro()
	b := us / w * w
	if us < 0 && us%w != 0 {
		b -= w
	}
	return time.UnixMicro(b).UTC()
}

func connKey(e models.ConnEndpoint) string {
	return reduce.Key(e.PidHash, e.ConnID, e.Protocol)
}

// Rollup is stage 1: increments are grouped by (pid_hash, conn_id,
// protocol, bucket) and summed. Rolling up its own output at the same
// width returns it unchanged.
func Rollup(incs []models.ConnIncrement, width time.Duration) []models.ConnIncrement {
	bucketed := make([]models.ConnIncrement, len(incs))
	for i, inc := range incs {
		inc.BucketStart = BucketStart(inc.BucketStart, width)
		bucketed[i] = inc
	}
	return reduce.Fold(bucketed,
		func(i models.ConnIncrement) string {
			return reduce.Key(connKey(i.ConnEndpoint), bucketKey(i.BucketStart))
		},
		func(i models.ConnIncrement) models.ConnIncrement { return i },
		func(acc, i models.ConnIncrement) models.ConnIncrement {
			acc.ConnEndpoint = mergeEndpoint(acc.ConnEndpoint, i.ConnEndpoint)
			acc.FirstSeen = minTime(acc.FirstSeen, i.FirstSeen)
			acc.LastSeen = maxTime(acc.LastSeen, i.LastSeen)
			acc.SampleCount += i.SampleCount
			acc.ConnCounters = addCounters(acc.ConnCounters, i.ConnCounters)
			return acc
		})
}

// bucketKey sorts chronologically, including pre-1970 buckets.
func bucketKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

// Connections is stage 2: the bucket dimension is dropped.
func Connections(incs []models.ConnIncrement) []models.Connection {
	return reduce.Fold(incs,
		func(i models.ConnIncrement) string { return connKey(i.ConnEndpoint) },
		func(i models.ConnIncrement) models.Connection {
			return models.Connection{
				ConnEndpoint: i.ConnEndpoint,
				BucketCount:  1,
				FirstSeen:    i.FirstSeen,
				LastSeen:     i.LastSeen,
				SampleCount:  i.SampleCount,
				ConnCounters: i.ConnCounters,
			}
		},
		func(acc models.Connection, i models.ConnIncrement) models.Connection {
			acc.ConnEndpoint = mergeEndpoint(acc.ConnEndpoint, i.ConnEndpoint)
			acc.BucketCount++
			acc.FirstSeen = minTime(acc.FirstSeen, i.FirstSeen)
			acc.LastSeen = maxTime(acc.LastSeen, i.LastSeen)
			acc.SampleCount += i.SampleCount
			acc.ConnCounters = addCounters(acc.ConnCounters, i.ConnCounters)
			return acc
		})
}

type summaryAcc struct {
	summary models.NetworkSummary
	remotes map[string]struct{}
}

// Summaries is stage 3: every connection of a process is summed and the
// ratio metrics derived.
func Summaries(conns []models.Connection) []models.NetworkSummary {
	accs := reduce.Fold(conns,
		func(c models.Connection) string { return c.PidHash },
		func(c models.Connection) *summaryAcc {
			acc := &summaryAcc{
				summary: models.NetworkSummary{
					PidHash:      c.PidHash,
					FirstSeen:    c.FirstSeen,
					LastSeen:     c.LastSeen,
					ConnCounters: c.ConnCounters,
				},
				remotes: make(map[string]struct{}),
			}
			acc.add(c, false)
			return acc
		},
		func(acc *summaryAcc, c models.Connection) *summaryAcc {
			acc.add(c, true)
			return acc
		})

	out := make([]models.NetworkSummary, 0, len(accs))
	for _, acc := range accs {
		s := acc.summary
		s.RemoteIPCount = int64(len(acc.remotes))
		derive(&s)
		out = append(out, s)
	}
	return out
}

func (a *summaryAcc) add(c models.Connection, merge bool) {
	a.summary.ConnCount++
	if c.RemoteIPAddr != "" {
		a.remotes[c.RemoteIPAddr] = struct{}{}
	}
	if !merge {
		return
	}
	a.summary.FirstSeen = minTime(a.summary.FirstSeen, c.FirstSeen)
	a.summary.LastSeen = maxTime(a.summary.LastSeen, c.LastSeen)
	a.summary.ConnCounters = addCounters(a.summary.ConnCounters, c.ConnCounters)
}

func derive(s *models.NetworkSummary) {
	s.TotalBytes = s.SendBytes + s.RecvBytes
	if s.TotalBytes > 0 {
		ratio := float64(s.SendBytes) / float64(s.TotalBytes)
		s.SendRatio = &ratio
	}
	n := s.SendPackets + s.RecvPackets
	if n > 0 && s.TotalBytes > 0 {
		mean := float64(s.TotalBytes) / float64(n)
		variance := s.PacketSizeSqSum/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		s.PacketSizeMean = &mean
		s.PacketSizeVariance = &variance
	}
}

// Aggregate runs all three stages over raw rows.
func Aggregate(rows []models.RawEvent, width time.Duration) ([]models.ConnIncrement, []models.Connection, []models.NetworkSummary) {
	incs := Rollup(Samples(rows), width)
	conns := Connections(incs)
	return incs, conns, Summaries(conns)
}
