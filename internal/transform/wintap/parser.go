package wintap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"entitygraph/internal/codec"
	"entitygraph/internal/logger"
	"entitygraph/pkg/models"
)

// Alternate sensor spellings mapped onto the canonical field names.
var aliases = map[string]string{
	"commandline":     models.FieldProcessArgs,
	"args":            models.FieldProcessArgs,
	"ospid":           models.FieldPID,
	"processid":       models.FieldPID,
	"parentospid":     models.FieldParentPID,
	"parentprocessid": models.FieldParentPID,
	"eventtype":       models.FieldActivityType,
	"timestamp":       models.FieldEventTime,
	"path":            models.FieldFilename,
	"registrypath":    models.FieldRegPath,
	"keypath":         models.FieldRegPath,
}

// Parse decodes one flat sensor record of a known domain.
func Parse(domain models.Domain, partition models.Partition, data []byte) (models.RawEvent, error) {
	raw, err := decode(data)
	if err != nil {
		return models.RawEvent{}, err
	}
	return FromMap(domain, partition, raw), nil
}

// ParseEnvelope decodes a record carrying its own domain, either
// {"domain": "...", "fields": {...}} or a flat record with a "domain" key.
func ParseEnvelope(partition models.Partition, data []byte) (models.RawEvent, error) {
	raw, err := decode(data)
	if err != nil {
		return models.RawEvent{}, err
	}
	name := getString(raw, "domain", "event_domain")
	domain, ok := models.ParseDomain(name)
	if !ok {
		return models.RawEvent{}, fmt.Errorf("unknown domain %q", name)
	}
	if v, ok := getPath(raw, "fields"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			raw = m
		}
	} else {
		delete(raw, "domain")
		delete(raw, "event_domain")
	}
	return FromMap(domain, partition, raw), nil
}

// FromMap normalizes a decoded record into a RawEvent.
func FromMap(domain models.Domain, partition models.Partition, raw map[string]interface{}) models.RawEvent {
	ev := models.NewRawEvent(domain, partition)
	flatten(ev.Fields, "", raw)

	for _, name := range models.NumericFields[domain] {
		v, ok := ev.Fields[name]
		if !ok {
			continue
		}
		if name == models.FieldEventTime && v.Kind == models.KindText {
			if t, ok := parseUtcTime(v.String()); ok {
				ev.Fields[name] = models.NumberLiteral(fmt.Sprintf("%d", codec.PlatformTicks(t)))
				continue
			}
		}
		ev.Fields[name] = v.AsNumber()
	}

	if ev.Get(models.FieldPidHash).IsEmpty() {
		logger.Debugf("Record without pid hash (domain=%s, partition=%s)", domain, partition)
	}
	return ev
}

type aliased struct {
	source string
	target string
	value  interface{}
}

// flatten copies src into dst under normalized keys. Nested objects are
// concatenated into their parent key. Canonical names win over aliases.
func flatten(dst map[string]models.RawValue, prefix string, src map[string]interface{}) {
	var deferred []aliased
	for k, v := range src {
		key := models.FieldKey(prefix + k)
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(dst, key, nested)
			continue
		}
		if target, ok := aliases[key]; ok {
			deferred = append(deferred, aliased{source: key, target: target, value: v})
			continue
		}
		dst[key] = models.ParseRawValue(v)
	}

	sort.Slice(deferred, func(i, j int) bool { return deferred[i].source < deferred[j].source })
	for _, a := range deferred {
		if existing, ok := dst[a.target]; ok && !existing.IsEmpty() {
			continue
		}
		dst[a.target] = models.ParseRawValue(a.value)
	}
}

func decode(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("record is not an object")
	}
	return raw, nil
}

func parseUtcTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range []string{
		"2006-01-02 15:04:05.0000000",
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return val
			case fmt.Stringer:
				return val.String()
			}
		}
	}
	return ""
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
