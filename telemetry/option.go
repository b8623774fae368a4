package telemetry

// Option is a decoded value that may be absent from a poll
type Option[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

// None is the absent value
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSome reports whether the value is present
func (o Option[T]) IsSome() bool {
	return o.ok
}

// Keep returns the option's value when present and prev otherwise.
// This is the stale-value-wins rule for a single field.
func Keep[T any](prev T, o Option[T]) T {
	if o.ok {
		return o.value
	}
	return prev
}

// Map converts a present value with f; None stays None
func Map[T, U any](o Option[T], f func(T) U) Option[U] {
	if !o.ok {
		return None[U]()
	}
	return Some(f(o.value))
}

// lookup returns Some(decoded[key]) when the key is present
func lookup(decoded map[string]float64, key string) Option[float64] {
	v, ok := decoded[key]
	if !ok {
		return None[float64]()
	}
	return Some(v)
}

// asFlag interprets a numeric telemetry value as a flag: non-zero is true
func asFlag(v float64) bool {
	return v != 0
}
