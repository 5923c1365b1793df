package store

// ring is a fixed-capacity FIFO container backed by a circular slice.
// Appending at capacity evicts the oldest entry; eviction follows insertion
// order only, never timestamp values.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

// Append inserts v, evicting the oldest entry when full. O(1).
func (r *ring[T]) Append(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring[T]) Len() int { return r.size }

func (r *ring[T]) Cap() int { return len(r.buf) }

// Recent returns up to limit entries, most recent first. A non-positive or
// oversized limit is clamped to the current length.
func (r *ring[T]) Recent(limit int) []T {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]T, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.buf[(r.head+r.size-1-i+len(r.buf))%len(r.buf)]
	}
	return out
}

// All returns a copy of every entry, oldest first.
func (r *ring[T]) All() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Last returns the most recently appended entry.
func (r *ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// Clear drops every entry and releases references held in the buffer.
func (r *ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}
