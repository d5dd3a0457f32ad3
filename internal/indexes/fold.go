package indexes

import "iter"

// Latest scans items newest first and returns the first value pick accepts.
// Items pick fails on are skipped, so history written under an older schema
// never stops the scan.
func Latest[T, R any](items []T, pick func(T) (R, bool, error)) (R, bool) {
	for item := range Backward(items) {
		r, ok, err := pick(item)
		if err != nil {
			continue
		}
		if ok {
			return r, true
		}
	}
	var zero R
	return zero, false
}

// Backward yields items newest first.
func Backward[T any](items []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := len(items) - 1; i >= 0; i-- {
			if !yield(items[i]) {
				return
			}
		}
	}
}
