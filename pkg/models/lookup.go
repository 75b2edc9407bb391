package models

// Lookup is the outcome of a single external fetch. A failed lookup still carries
// the zero value, so callers that fail open can use Value directly while the
// failure stays visible through OK and Err.
type Lookup[T any] struct {
	Value T
	Err   error
}

// Succeeded wraps a value from a lookup that completed
func Succeeded[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v}
}

// Failed records a lookup that degraded to the zero value
func Failed[T any](err error) Lookup[T] {
	return Lookup[T]{Err: err}
}

// OK reports whether the lookup completed
func (l Lookup[T]) OK() bool {
	return l.Err == nil
}

// AgeFrom converts an age lookup in days into an AgeResult; failures become unknown
func AgeFrom(l Lookup[int]) AgeResult {
	if !l.OK() {
		return AgeResult{}
	}
	return KnownAge(l.Value)
}
