// Package join provides the left outer join used to attach per-entity
// summaries to canonical entity rows.
package join

// Index maps a key to the first right-side row carrying it.
type Index[K comparable, R any] map[K]R

// NewIndex indexes rows by key. Later rows with a duplicate key are ignored,
// and rows with the zero key are not indexed.
func NewIndex[K comparable, R any](rows []R, key func(R) K) Index[K, R] {
	idx := make(Index[K, R], len(rows))
	var zero K
	for _, r := range rows {
		k := key(r)
		if k == zero {
			continue
		}
		if _, ok := idx[k]; ok {
			continue
		}
		idx[k] = r
	}
	return idx
}

// Lookup returns the row for k, or nil. An unresolved (zero) key never
// matches.
func (idx Index[K, R]) Lookup(k K) *R {
	var zero K
	if k == zero {
		return nil
	}
	r, ok := idx[k]
	if !ok {
		return nil
	}
	return &r
}

// Left joins every left row with at most one right row. merge receives nil
// when no right row matches. The output has exactly one row per left row, in
// left order.
func Left[L, R, O any, K comparable](left []L, right []R, lkey func(L) K, rkey func(R) K, merge func(L, *R) O) []O {
	idx := NewIndex(right, rkey)
	out := make([]O, 0, len(left))
	for _, l := range left {
		out = append(out, merge(l, idx.Lookup(lkey(l))))
	}
	return out
}
