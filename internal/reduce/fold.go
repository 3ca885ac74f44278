package reduce

import (
	"sort"
	"strings"
)

// Key joins composite key parts with a NUL separator.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// Fold groups typed rows by key and merges each group into one value.
// start seeds a group from its first row; merge folds every later row in.
// Output is sorted by key, so merge must be associative and commutative for
// the result to be independent of input order.
func Fold[T, A any](items []T, key func(T) string, start func(T) A, merge func(A, T) A) []A {
	acc := make(map[string]A)
	for _, it := range items {
		k := key(it)
		if cur, ok := acc[k]; ok {
			acc[k] = merge(cur, it)
			continue
		}
		acc[k] = start(it)
	}

	keys := make([]string, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]A, 0, len(keys))
	for _, k := range keys {
		out = append(out, acc[k])
	}
	return out
}
