// Package reduce folds multisets of raw sensor rows into one row per
// natural key.
package reduce

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"entitygraph/pkg/models"
)

// Rule selects how a field is resolved across the rows of a group.
type Rule int

const (
	// FirstNonEmpty picks one non-empty representative (see TieBreak).
	FirstNonEmpty Rule = iota
	Max
	Min
	Sum
	// CountDistinct resolves to the number of distinct non-empty values.
	CountDistinct
	// Count resolves to the number of rows accepted by When, or the sum of
	// their Weight when one is set.
	Count
)

func (r Rule) String() string {
	switch r {
	case FirstNonEmpty:
		return "first_non_empty"
	case Max:
		return "max"
	case Min:
		return "min"
	case Sum:
		return "sum"
	case CountDistinct:
		return "count_distinct"
	case Count:
		return "count"
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// TieBreak decides which value FirstNonEmpty keeps.
type TieBreak int

const (
	// Smallest keeps the lexicographically smallest value. Independent of input order.
	Smallest TieBreak = iota
	// FirstSeen keeps the first value in input order.
	FirstSeen
)

// ParseTieBreak maps a config string to a TieBreak.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "smallest", "lexicographic":
		return Smallest, nil
	case "first", "first_seen", "firstseen":
		return FirstSeen, nil
	}
	return Smallest, fmt.Errorf("unknown tie break %q", s)
}

// KeyFunc extracts the grouping key of a row.
type KeyFunc func(models.RawEvent) string

// FieldSpec resolves one raw field into one output value.
type FieldSpec struct {
	Field string
	// As names the output value; defaults to Field.
	As   string
	Rule Rule
	// When restricts which rows contribute. nil accepts all.
	When func(models.RawEvent) bool
	// Weight is how many events a row stands for under Count. nil counts 1.
	Weight func(models.RawEvent) int64
}

func (f FieldSpec) name() string {
	if f.As != "" {
		return f.As
	}
	return f.Field
}

// Options tune empty handling and tie-breaks.
type Options struct {
	// Sentinels are text values treated as absent, compared case-insensitively.
	Sentinels []string
	// CountEmptyAsDistinct makes empty values count toward num_<field>.
	CountEmptyAsDistinct bool
	TieBreak             TieBreak
}

// DefaultOptions treats "na" as absent and keeps the smallest value.
func DefaultOptions() Options {
	return Options{Sentinels: []string{"na"}, TieBreak: Smallest}
}

// Group is one reduced entity.
type Group struct {
	Key    string
	Values map[string]models.RawValue
	// Distinct holds num_<field> counts for FirstNonEmpty fields.
	Distinct map[string]int64
	Rows     int64
}

// Value returns a resolved value, Empty when absent.
func (g Group) Value(name string) models.RawValue {
	return g.Values[name]
}

// Text returns a resolved value as a string.
func (g Group) Text(name string) string {
	return g.Values[name].String()
}

// Int returns a resolved value as *int64, nil when absent or non-numeric.
func (g Group) Int(name string) *int64 {
	v, ok := g.Values[name].Int64()
	if !ok {
		return nil
	}
	return &v
}

// Float returns a resolved value as *float64, nil when absent or non-numeric.
func (g Group) Float(name string) *float64 {
	v, ok := g.Values[name].Float()
	if !ok {
		return nil
	}
	return &v
}

// Count returns a resolved counter, zero when absent.
func (g Group) Count(name string) int64 {
	v, _ := g.Values[name].Int64()
	return v
}

// Num returns the num_<name> diagnostic.
func (g Group) Num(name string) int64 {
	return g.Distinct[name]
}

// Reducer applies a fixed key and field set to batches of rows.
type Reducer struct {
	key    KeyFunc
	fields []FieldSpec
	opts   Options
}

// New builds a reducer.
func New(key KeyFunc, fields []FieldSpec, opts Options) *Reducer {
	sentinels := make([]string, 0, len(opts.Sentinels))
	for _, s := range opts.Sentinels {
		if s = strings.TrimSpace(s); s != "" {
			sentinels = append(sentinels, s)
		}
	}
	opts.Sentinels = sentinels
	return &Reducer{key: key, fields: fields, opts: opts}
}

// ByField keys rows on a single raw field.
func ByField(name string) KeyFunc {
	return func(e models.RawEvent) string {
		return e.Text(name)
	}
}

// ByFields keys rows on several raw fields joined with a NUL separator.
func ByFields(names ...string) KeyFunc {
	return func(e models.RawEvent) string {
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = e.Text(n)
		}
		return strings.Join(parts, "\x00")
	}
}

type fieldAcc struct {
	value    models.RawValue
	distinct map[string]struct{}
	intSum   int64
	floatSum float64
	isFloat  bool
	count    int64
	seen     bool
}

type groupAcc struct {
	rows   int64
	fields []fieldAcc
}

// Reduce groups rows by key and resolves every field. Output is sorted by key.
func (r *Reducer) Reduce(rows []models.RawEvent) []Group {
	groups := make(map[string]*groupAcc)
	for _, row := range rows {
		k := r.key(row)
		g, ok := groups[k]
		if !ok {
			g = &groupAcc{fields: make([]fieldAcc, len(r.fields))}
			groups[k] = g
		}
		g.rows++
		for i, spec := range r.fields {
			if spec.When != nil && !spec.When(row) {
				continue
			}
			r.accumulate(&g.fields[i], spec, row)
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Group, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.finish(k, groups[k]))
	}
	return out
}

func (r *Reducer) absent(v models.RawValue) bool {
	if v.IsEmpty() {
		return true
	}
	if v.Kind != models.KindText {
		return false
	}
	s := strings.TrimSpace(v.String())
	for _, sentinel := range r.opts.Sentinels {
		if strings.EqualFold(s, sentinel) {
			return true
		}
	}
	return false
}

func (r *Reducer) accumulate(acc *fieldAcc, spec FieldSpec, row models.RawEvent) {
	if spec.Rule == Count {
		if spec.Weight != nil {
			acc.count += spec.Weight(row)
		} else {
			acc.count++
		}
		acc.seen = true
		return
	}

	v := row.Get(spec.Field)
	empty := r.absent(v)

	switch spec.Rule {
	case FirstNonEmpty:
		if acc.distinct == nil {
			acc.distinct = make(map[string]struct{})
		}
		if empty {
			if r.opts.CountEmptyAsDistinct {
				acc.distinct[""] = struct{}{}
			}
			return
		}
		acc.distinct[v.String()] = struct{}{}
		switch {
		case !acc.seen:
			acc.value = v
		case r.opts.TieBreak == Smallest && v.String() < acc.value.String():
			acc.value = v
		}
		acc.seen = true

	case Max, Min:
		if empty {
			return
		}
		v = v.AsNumber()
		if !acc.seen {
			acc.value = v
			acc.seen = true
			return
		}
		c := models.Compare(v, acc.value)
		if (spec.Rule == Max && c > 0) || (spec.Rule == Min && c < 0) {
			acc.value = v
		}

	case Sum:
		if empty {
			return
		}
		if i, err := parseInt(v); err == nil && !acc.isFloat {
			acc.intSum += i
			acc.seen = true
			return
		}
		f, ok := v.Float()
		if !ok {
			return
		}
		if !acc.isFloat {
			acc.floatSum = float64(acc.intSum)
			acc.isFloat = true
		}
		acc.floatSum += f
		acc.seen = true

	case CountDistinct:
		if acc.distinct == nil {
			acc.distinct = make(map[string]struct{})
		}
		acc.seen = true
		if empty {
			if r.opts.CountEmptyAsDistinct {
				acc.distinct[""] = struct{}{}
			}
			return
		}
		acc.distinct[v.String()] = struct{}{}
	}
}

func parseInt(v models.RawValue) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
}

func (r *Reducer) finish(key string, g *groupAcc) Group {
	out := Group{
		Key:      key,
		Values:   make(map[string]models.RawValue, len(r.fields)),
		Distinct: make(map[string]int64),
		Rows:     g.rows,
	}
	for i, spec := range r.fields {
		acc := g.fields[i]
		name := spec.name()
		switch spec.Rule {
		case FirstNonEmpty:
			out.Values[name] = acc.value
			out.Distinct[name] = int64(len(acc.distinct))
		case Max, Min:
			out.Values[name] = acc.value
		case Sum:
			switch {
			case !acc.seen:
				out.Values[name] = models.Empty()
			case acc.isFloat:
				out.Values[name] = models.Number(acc.floatSum)
			default:
				out.Values[name] = models.Int(acc.intSum)
			}
		case CountDistinct:
			if acc.seen {
				out.Values[name] = models.Int(int64(len(acc.distinct)))
			}
		case Count:
			out.Values[name] = models.Int(acc.count)
		}
	}
	return out
}
