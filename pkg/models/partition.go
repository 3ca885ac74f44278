package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Domain names a raw event family.
type Domain string

const (
	DomainProcess     Domain = "process"
	DomainProcessStop Domain = "process_stop"
	DomainConnIncr    Domain = "process_conn_incr"
	DomainFile        Domain = "process_file"
	DomainRegistry    Domain = "process_registry"
	DomainImageLoad   Domain = "process_image_load"
)

// Domains lists every raw domain in processing order.
var Domains = []Domain{
	DomainProcess,
	DomainProcessStop,
	DomainConnIncr,
	DomainFile,
	DomainRegistry,
	DomainImageLoad,
}

// ParseDomain accepts a domain name with or without the raw_ prefix.
func ParseDomain(s string) (Domain, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "raw_")
	if s == "imageload" {
		s = string(DomainImageLoad)
	}
	for _, d := range Domains {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

// Partition identifies one at-rest batch of raw data.
type Partition struct {
	DayPK string `json:"day_pk"`
	Hour  string `json:"hour,omitempty"`
}

// DayPartition returns a whole-day partition.
func DayPartition(dayPK string) Partition {
	return Partition{DayPK: dayPK}
}

// String renders the partition as a path fragment.
func (p Partition) String() string {
	if p.Hour == "" {
		return "dayPK=" + p.DayPK
	}
	return "dayPK=" + p.DayPK + "/hour=" + p.Hour
}

// Day returns the start of the partition day in UTC.
func (p Partition) Day() (time.Time, error) {
	return time.ParseInLocation("20060102", p.DayPK, time.UTC)
}

// ParsePartition parses "20240101", "dayPK=20240101" or "dayPK=20240101/hour=07".
func ParsePartition(s string) (Partition, error) {
	var p Partition
	for _, part := range strings.Split(strings.Trim(s, "/"), "/") {
		k, v, found := strings.Cut(part, "=")
		if !found {
			k, v = "daypk", part
		}
		switch strings.ToLower(k) {
		case "daypk":
			p.DayPK = v
		case "hour":
			h, err := strconv.Atoi(v)
			if err != nil || h < 0 || h > 23 {
				return Partition{}, fmt.Errorf("invalid hour %q", v)
			}
			p.Hour = fmt.Sprintf("%02d", h)
		default:
			return Partition{}, fmt.Errorf("unknown partition key %q", k)
		}
	}
	if _, err := p.Day(); err != nil {
		return Partition{}, fmt.Errorf("invalid dayPK %q: %w", p.DayPK, err)
	}
	return p, nil
}

// SortPartitions orders partitions by day then hour.
func SortPartitions(parts []Partition) {
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].DayPK != parts[j].DayPK {
			return parts[i].DayPK < parts[j].DayPK
		}
		return parts[i].Hour < parts[j].Hour
	})
}

// Batch holds the raw events of one partition grouped by domain.
type Batch struct {
	Partition Partition
	Events    map[Domain][]RawEvent
	Labels    []DetectionLabel
}

// NewBatch returns an empty batch.
func NewBatch(p Partition) *Batch {
	return &Batch{Partition: p, Events: make(map[Domain][]RawEvent)}
}

// Add appends an event under its domain.
func (b *Batch) Add(ev RawEvent) {
	ev.Partition = b.Partition
	b.Events[ev.Domain] = append(b.Events[ev.Domain], ev)
}

// Domain returns the events of one domain.
func (b *Batch) Domain(d Domain) []RawEvent {
	return b.Events[d]
}

// Len returns the total number of raw events.
func (b *Batch) Len() int {
	n := 0
	for _, evs := range b.Events {
		n += len(evs)
	}
	return n
}
