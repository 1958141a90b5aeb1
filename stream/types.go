package stream

import "fmt"

// Pair holds two values.
type Pair[A, B any] struct {
	First  A
	Second B
}

// MakePair builds a Pair.
func MakePair[A, B any](a A, b B) Pair[A, B] {
	return Pair[A, B]{First: a, Second: b}
}

func (p Pair[A, B]) String() string {
	return fmt.Sprintf("(%v, %v)", p.First, p.Second)
}

// Either holds a value of one of two types.
type Either[L, R any] struct {
	left    L
	right   R
	isRight bool
}

// Left builds an Either holding the left value v.
func Left[L, R any](v L) Either[L, R] {
	return Either[L, R]{left: v}
}

// Right builds an Either holding the right value v.
func Right[L, R any](v R) Either[L, R] {
	return Either[L, R]{right: v, isRight: true}
}

// IsRight reports whether e holds a right value.
func (e Either[L, R]) IsRight() bool { return e.isRight }

// Left returns the left value, if present.
func (e Either[L, R]) Left() (L, bool) { return e.left, !e.isRight }

// Right returns the right value, if present.
func (e Either[L, R]) Right() (R, bool) { return e.right, e.isRight }

func (e Either[L, R]) String() string {
	if e.isRight {
		return fmt.Sprintf("right(%v)", e.right)
	}
	return fmt.Sprintf("left(%v)", e.left)
}

// FoldEither applies onLeft or onRight depending on the side e holds.
func FoldEither[L, R, V any](e Either[L, R], onLeft func(L) V, onRight func(R) V) V {
	if e.isRight {
		return onRight(e.right)
	}
	return onLeft(e.left)
}

// Option is a value that may be absent.
type Option[T any] struct {
	value T
	ok    bool
}

// Some returns a present option.
func Some[T any](v T) Option[T] { return Option[T]{value: v, ok: true} }

// None returns an absent option.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.value, o.ok }

func (o Option[T]) String() string {
	if o.ok {
		return fmt.Sprintf("some(%v)", o.value)
	}
	return "none"
}
