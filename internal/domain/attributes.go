package domain

import "time"

// Null-safe attribute comparison used for drift detection. A value changing
// to or from null counts as a change.

// EqualPtr compares two optional scalar attributes.
func EqualPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// EqualDatePtr compares two optional dates by calendar day.
func EqualDatePtr(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EqualTimePtr compares two optional timestamps at full precision.
func EqualTimePtr(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}
