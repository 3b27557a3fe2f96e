package utils

import (
	"cmp"
	"slices"
)

// RemoveIf removes all elements matching pred from the slice, keeping the
// order of the remaining elements.
func RemoveIf[T any](slice []T, pred func(T) bool) []T {
	return slices.DeleteFunc(slice, pred)
}

// RemoveNils removes all nil pointers from the slice.
func RemoveNils[T any](slice []*T) []*T {
	return RemoveIf(slice, func(ptr *T) bool {
		return ptr == nil
	})
}

// IterateOrderedMap returns a func yielding the key-value pairs of m in
// ascending key order. Until range-over-func is available it has to be
// invoked directly with a yield callback.
func IterateOrderedMap[K cmp.Ordered, V any](m map[K]V) func(func(K, V) bool) {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	return func(yield func(K, V) bool) {
		for _, key := range keys {
			if !yield(key, m[key]) {
				return
			}
		}
	}
}
