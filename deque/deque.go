// Package deque implements a capacity-doubling circular buffer double-ended queue.
//
// Deque backs the overflow buffer of bounded merges and the pairing buffers of
// zip. It is not safe for concurrent use; callers serialise access the same way
// the rest of the runtime does, by touching a Deque only from its owning actor.
package deque

import "math/bits"

const minCapacity = 1

// Deque is a FIFO/LIFO queue with O(1) amortized Push, Pop, Shift and Unshift.
//
// The backing array is always sized as a power of two so that logical indices
// wrap with a mask instead of a modulo. When a Push or Unshift would overflow,
// the capacity doubles and the elements are copied in logical order.
//
// The zero value is an empty queue ready to use.
type Deque[T any] struct {
	buf   []T
	base  int
	count int
}

// New creates a Deque whose initial capacity is capacity rounded up to the
// next power of two.
func New[T any](capacity int) *Deque[T] {
	return &Deque[T]{buf: make([]T, roundUp(capacity))}
}

// roundUp returns the smallest power of two >= n (and >= minCapacity).
func roundUp(n int) int {
	if n <= minCapacity {
		return minCapacity
	}
	return 1 << bits.Len(uint(n-1))
}

// Len returns the number of queued elements.
func (d *Deque[T]) Len() int { return d.count }

// Cap returns the size of the backing array.
func (d *Deque[T]) Cap() int { return len(d.buf) }

// Push appends e at the tail.
func (d *Deque[T]) Push(e T) {
	d.growIfFull()
	d.buf[(d.base+d.count)&d.mask()] = e
	d.count++
}

// Pop removes and returns the tail element.
// Returns false if the queue is empty.
func (d *Deque[T]) Pop() (T, bool) {
	var zero T
	if d.count == 0 {
		return zero, false
	}
	d.count--
	i := (d.base + d.count) & d.mask()
	e := d.buf[i]
	d.buf[i] = zero // release the reference for the GC
	return e, true
}

// Unshift prepends e at the head.
func (d *Deque[T]) Unshift(e T) {
	d.growIfFull()
	d.base = (d.base - 1) & d.mask()
	d.buf[d.base] = e
	d.count++
}

// Shift removes and returns the head element.
// Returns false if the queue is empty.
func (d *Deque[T]) Shift() (T, bool) {
	var zero T
	if d.count == 0 {
		return zero, false
	}
	e := d.buf[d.base]
	d.buf[d.base] = zero
	d.base = (d.base + 1) & d.mask()
	d.count--
	return e, true
}

// Head returns the head element without removing it.
func (d *Deque[T]) Head() (T, bool) { return d.At(0) }

// Last returns the tail element without removing it.
func (d *Deque[T]) Last() (T, bool) { return d.At(d.count - 1) }

// At returns the element at logical index i (0 is the head).
func (d *Deque[T]) At(i int) (T, bool) {
	if i < 0 || i >= d.count {
		var zero T
		return zero, false
	}
	return d.buf[(d.base+i)&d.mask()], true
}

// Clear drops every element and shrinks the backing array to the minimum.
func (d *Deque[T]) Clear() {
	d.buf = make([]T, minCapacity)
	d.base = 0
	d.count = 0
}

// ToSlice returns the elements in logical order, head first.
func (d *Deque[T]) ToSlice() []T {
	out := make([]T, d.count)
	d.drainTo(out)
	return out
}

func (d *Deque[T]) mask() int { return len(d.buf) - 1 }

func (d *Deque[T]) growIfFull() {
	if len(d.buf) == 0 {
		d.buf = make([]T, minCapacity)
		return
	}
	if d.count == len(d.buf) {
		next := make([]T, len(d.buf)*2)
		d.drainTo(next)
		d.buf = next
		d.base = 0
	}
}

// drainTo copies the logical sequence into dst[0:count].
func (d *Deque[T]) drainTo(dst []T) {
	if d.count == 0 {
		return
	}
	// At most two contiguous runs: [base, end) and [0, rest).
	n := copy(dst, d.buf[d.base:min(d.base+d.count, len(d.buf))])
	if n < d.count {
		copy(dst[n:], d.buf[:d.count-n])
	}
}
