package flow

import (
	"reflect"
)

// Equal reports whether two items are the same for deduplication.
type Equal[T any] func(a, b T) bool

// ErrorEqual reports whether two failures are the same for deduplication.
type ErrorEqual func(a, b error) bool

// DefaultEqual compares items structurally with reflect.DeepEqual.
func DefaultEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// DefaultErrorEqual treats two errors as equal when they have the same
// dynamic type, that type is comparable, and the values are ==. Pointer
// errors therefore compare by identity.
func DefaultErrorEqual(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return safeEqual(a, b)
}

// safeEqual compares interface values whose static type is comparable but
// whose fields may still hold incomparable dynamic values.
func safeEqual(a, b error) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// SameResult applies the dedup rule: two successes are the same when they
// have equal length and pairwise equal items, two failures when errEqual
// says so, and a success never equals a failure. It panics on an invalid
// result.
func SameResult[T any](a, b Result[T], equal Equal[T], errEqual ErrorEqual) bool {
	if a.kind == kindInvalid || b.kind == kindInvalid {
		panic("flow: invalid result reached the dedup comparator")
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == kindFailure {
		return errEqual(a.err, b.err)
	}
	if len(a.items) != len(b.items) {
		return false
	}
	for i := range a.items {
		if !equal(a.items[i], b.items[i]) {
			return false
		}
	}
	return true
}
