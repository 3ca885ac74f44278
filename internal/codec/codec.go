// Package codec converts sensor time and address encodings and derives
// stable content identifiers for entities.
package codec

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	ticksPerSecond = 10_000_000
	// Seconds between 1601-01-01 and 1970-01-01.
	platformEpochOffset = 11_644_473_600

	identityDelimiter = "||"
)

// EpochFromPlatformTicks converts 100ns ticks since 1601 to Unix seconds.
// Whole seconds and the remainder are converted separately so large tick
// values keep sub-second precision.
func EpochFromPlatformTicks(ticks uint64) float64 {
	whole := float64(ticks/ticksPerSecond) - platformEpochOffset
	frac := float64(ticks%ticksPerSecond) / ticksPerSecond
	return whole + frac
}

// MicrosTimestamp builds a UTC timestamp with microsecond precision.
func MicrosTimestamp(seconds float64) time.Time {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}
	}
	sec := math.Floor(seconds)
	micros := int64(math.Round((seconds - sec) * 1e6))
	if micros >= 1_000_000 {
		sec++
		micros -= 1_000_000
	}
	return time.Unix(int64(sec), micros*int64(time.Microsecond)).UTC()
}

// TicksTime converts platform ticks straight to a timestamp. The integer
// path avoids float rounding for realistic tick values.
func TicksTime(ticks uint64) time.Time {
	secs := int64(ticks/ticksPerSecond) - platformEpochOffset
	rem := int64(ticks % ticksPerSecond)
	micros := (rem + 5) / 10
	if micros >= 1_000_000 {
		secs++
		micros -= 1_000_000
	}
	return time.Unix(secs, micros*int64(time.Microsecond)).UTC()
}

// PlatformTicks is the inverse of TicksTime for times after 1601.
func PlatformTicks(t time.Time) uint64 {
	secs := t.Unix() + platformEpochOffset
	if secs < 0 {
		return 0
	}
	return uint64(secs)*ticksPerSecond + uint64(t.Nanosecond()/100)
}

// DottedQuad renders a big-endian IPv4 address.
func DottedQuad(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// IdentityHash is the lower-case hex MD5 of parts joined by "||".
func IdentityHash(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, identityDelimiter)))
	return hex.EncodeToString(sum[:])
}

func allEmpty(parts ...string) bool {
	for _, p := range parts {
		if p != "" {
			return false
		}
	}
	return true
}

// FileIdentity hashes an upper-cased host and lower-cased path.
// Returns "" when both are empty.
func FileIdentity(host, path string) string {
	if allEmpty(host, path) {
		return ""
	}
	return IdentityHash(strings.ToUpper(host), strings.ToLower(path))
}

// ConnIdentity hashes the host, protocol and both socket endpoints.
func ConnIdentity(host, protocol, localIP string, localPort int64, remoteIP string, remotePort int64) string {
	if allEmpty(host, protocol, localIP, remoteIP) && localPort == 0 && remotePort == 0 {
		return ""
	}
	return IdentityHash(
		strings.ToUpper(host),
		strings.ToUpper(protocol),
		fmt.Sprintf("%s:%d", localIP, localPort),
		fmt.Sprintf("%s:%d", remoteIP, remotePort),
	)
}
