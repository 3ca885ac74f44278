package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a RawValue.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
)

// RawValue is a normalized sensor field: Empty, Text or Number.
// Numbers keep their source literal so large integers (platform ticks)
// survive without float rounding.
type RawValue struct {
	Kind ValueKind
	text string
	num  float64
}

// Empty returns the absent value.
func Empty() RawValue {
	return RawValue{}
}

// Text wraps a string. Blank strings normalize to Empty.
func Text(s string) RawValue {
	if strings.TrimSpace(s) == "" {
		return RawValue{}
	}
	return RawValue{Kind: KindText, text: s}
}

// Number wraps a float. NaN and infinities normalize to Empty.
func Number(f float64) RawValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return RawValue{}
	}
	return RawValue{Kind: KindNumber, num: f, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Int wraps an integer without going through float formatting.
func Int(i int64) RawValue {
	return RawValue{Kind: KindNumber, num: float64(i), text: strconv.FormatInt(i, 10)}
}

// NumberLiteral parses a decimal literal, falling back to Text when it is not numeric.
func NumberLiteral(s string) RawValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return RawValue{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Text(s)
	}
	return RawValue{Kind: KindNumber, num: f, text: s}
}

// ParseRawValue normalizes a decoded JSON value.
func ParseRawValue(v interface{}) RawValue {
	switch val := v.(type) {
	case nil:
		return RawValue{}
	case RawValue:
		return val
	case string:
		return Text(val)
	case json.Number:
		return NumberLiteral(string(val))
	case float64:
		return Number(val)
	case float32:
		return Number(float64(val))
	case int:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint32:
		return Int(int64(val))
	case uint64:
		return NumberLiteral(strconv.FormatUint(val, 10))
	case bool:
		return Text(strconv.FormatBool(val))
	default:
		return Text(fmt.Sprintf("%v", val))
	}
}

// IsEmpty reports whether the value is absent.
func (v RawValue) IsEmpty() bool {
	return v.Kind == KindEmpty
}

// String returns the textual form; Empty renders as "".
func (v RawValue) String() string {
	return v.text
}

// Float returns the numeric value. Text that parses as a number is accepted.
func (v RawValue) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int64 returns the value as an integer, truncating fractional numbers.
func (v RawValue) Int64() (int64, bool) {
	if v.Kind == KindEmpty {
		return 0, false
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(v.text), 10, 64); err == nil {
		return i, true
	}
	f, ok := v.Float()
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Uint64 returns the value as an unsigned integer.
func (v RawValue) Uint64() (uint64, bool) {
	if v.Kind == KindEmpty {
		return 0, false
	}
	if u, err := strconv.ParseUint(strings.TrimSpace(v.text), 10, 64); err == nil {
		return u, true
	}
	f, ok := v.Float()
	if !ok || f < 0 || f > math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}

// AsNumber converts numeric text to a Number; anything else is returned unchanged.
func (v RawValue) AsNumber() RawValue {
	if v.Kind != KindText {
		return v
	}
	n := NumberLiteral(v.text)
	if n.Kind == KindNumber {
		return n
	}
	return v
}

// Compare orders values: Empty < Number < Text. Integral numbers compare exactly.
func Compare(a, b RawValue) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNumber:
		ai, aerr := strconv.ParseInt(a.text, 10, 64)
		bi, berr := strconv.ParseInt(b.text, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case KindText:
		return strings.Compare(a.text, b.text)
	}
	return 0
}

// MarshalJSON renders Empty as null, Number as its literal and Text as a string.
func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return []byte(v.text), nil
	case KindText:
		return json.Marshal(v.text)
	}
	return []byte("null"), nil
}

// FieldKey normalizes a sensor field name: lower case, underscores removed.
func FieldKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
}

// RawEvent is one sensor emission of a single domain.
type RawEvent struct {
	Domain    Domain              `json:"domain"`
	Partition Partition           `json:"partition"`
	Fields    map[string]RawValue `json:"fields"`
}

// NewRawEvent returns an event with an empty field map.
func NewRawEvent(domain Domain, partition Partition) RawEvent {
	return RawEvent{Domain: domain, Partition: partition, Fields: make(map[string]RawValue)}
}

// Set stores a value under the normalized field name.
func (e RawEvent) Set(name string, v RawValue) RawEvent {
	if e.Fields == nil {
		e.Fields = make(map[string]RawValue)
	}
	e.Fields[FieldKey(name)] = v
	return e
}

// Get returns a field value, Empty when absent.
func (e RawEvent) Get(name string) RawValue {
	if e.Fields == nil {
		return RawValue{}
	}
	if v, ok := e.Fields[name]; ok {
		return v
	}
	return e.Fields[FieldKey(name)]
}

// Text returns a field as a string.
func (e RawEvent) Text(name string) string {
	return e.Get(name).String()
}

// ActivityType returns the upper-cased activity tag.
func (e RawEvent) ActivityType() string {
	return strings.ToUpper(strings.TrimSpace(e.Text("activitytype")))
}
