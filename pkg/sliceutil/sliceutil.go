// Single-pass slice transforms used across the framework. Each helper allocates its result and never mutates its
// input; none of them are clever, they just keep call sites short.

package sliceutil

// Concat returns a new slice holding the elements of a followed by the elements of b.
func Concat[T any](a, b []T) []T {
	result := make([]T, 0, len(a)+len(b))
	result = append(result, a...)
	return append(result, b...)
}

// Between returns the elements of s in the index range [from, to). Both bounds are clamped to the slice, so
// out-of-range requests yield an empty slice instead of panicking.
func Between[T any](s []T, from, to int) []T {
	from = max(from, 0)
	to = min(to, len(s))
	if from >= to {
		return []T{}
	}
	result := make([]T, to-from)
	copy(result, s[from:to])
	return result
}

// Apply maps fn over every element of s.
func Apply[T, U any](s []T, fn func(T) U) []U {
	result := make([]U, len(s))
	for i, element := range s {
		result[i] = fn(element)
	}
	return result
}

// Position returns the index of the first element satisfying pred, or -1 when none does.
func Position[T any](s []T, pred func(T) bool) int {
	for i, element := range s {
		if pred(element) {
			return i
		}
	}
	return -1
}

// Where returns the elements of s satisfying pred, preserving order.
func Where[T any](s []T, pred func(T) bool) []T {
	result := make([]T, 0, len(s))
	for _, element := range s {
		if pred(element) {
			result = append(result, element)
		}
	}
	return result
}
