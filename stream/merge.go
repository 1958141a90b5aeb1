package stream

import (
	"slices"

	"github.com/roach88/rill/deque"
	"github.com/roach88/rill/sched"
)

// Unbounded is the concurrency limit of a merge without a limit.
const Unbounded = 0

// mergeSource flattens outer values into inner streams, keeping at most
// limit of them open at a time. Outer values arriving while the limit is
// reached wait in a FIFO queue and start as running inner streams complete.
//
// The merged stream completes once the outer stream has completed, no inner
// stream is open and the queue is empty. Any Failure, outer or inner, is
// forwarded at once and never retried.
type mergeSource[A, B any] struct {
	outer   Stream[A]
	limit   int
	factory func() func(A) Stream[B]
}

func (m *mergeSource[A, B]) Properties() []sched.Property {
	return []sched.Property{sched.AllowSync()}
}

func (m *mergeSource[A, B]) Invoke(d *Dispatcher[B]) {
	if d.IsClosed() {
		return
	}

	var (
		base      Channel[A]
		alive     []Channel[B]
		queue     deque.Deque[A]
		outerDone bool
	)
	bind := m.factory()

	d.SetCloseHandler(func() {
		if base != nil {
			base.Close()
			base = nil
		}
		for _, c := range alive {
			c.Close()
		}
		alive = nil
		queue.Clear()
	})

	finish := func() {
		if outerDone && len(alive) == 0 && queue.Len() == 0 {
			d.EmitIfOpen(DoneEvent[B]())
		}
	}
	remove := func(c Channel[B]) {
		if i := slices.Index(alive, c); i >= 0 {
			alive = slices.Delete(alive, i, i+1)
		}
	}

	var start func(x A)
	start = func(x A) {
		bind(x).OpenWith(d.Callee(), func(c Channel[B]) Handler[B] {
			alive = append(alive, c)
			return func(e Event[B]) {
				switch e.Kind {
				case KindValue:
					d.EmitIfOpen(e)
				case KindFailure:
					remove(c)
					d.EmitIfOpen(e)
				case KindCompleted:
					remove(c)
					if d.IsClosed() {
						return
					}
					if next, ok := queue.Shift(); ok {
						start(next)
						return
					}
					finish()
				}
			}
		})
	}

	m.outer.OpenWith(d.Callee(), func(c Channel[A]) Handler[A] {
		base = c
		return func(e Event[A]) {
			switch e.Kind {
			case KindValue:
				if m.limit <= Unbounded || len(alive) < m.limit {
					start(e.Value)
				} else {
					queue.Push(e.Value)
				}
			case KindFailure:
				d.EmitIfOpen(FailEvent[B](e.Err))
			case KindCompleted:
				outerDone = true
				base = nil
				finish()
			}
		}
	})
}

// bindN is the general form of every flattening combinator. factory runs once
// per Open, so the function it returns may keep per-subscription state.
func bindN[A, B any](s Stream[A], limit int, factory func() func(A) Stream[B]) Stream[B] {
	return FromSource[B](&mergeSource[A, B]{outer: s, limit: limit, factory: factory})
}

func stateless[A, B any](f func(A) Stream[B]) func() func(A) Stream[B] {
	return func() func(A) Stream[B] { return f }
}

// FlatMap maps each value to an inner stream and concatenates them: inner
// streams run one at a time, in outer order.
func FlatMap[A, B any](s Stream[A], f func(A) Stream[B]) Stream[B] {
	return bindN(s, 1, stateless(f))
}

// FlatMapN is FlatMap with up to limit inner streams open at once.
func FlatMapN[A, B any](s Stream[A], limit int, f func(A) Stream[B]) Stream[B] {
	return bindN(s, limit, stateless(f))
}

// MergeMap is FlatMap without a concurrency limit.
func MergeMap[A, B any](s Stream[A], f func(A) Stream[B]) Stream[B] {
	return bindN(s, Unbounded, stateless(f))
}

// Flatten concatenates a stream of streams.
func Flatten[T any](s Stream[Stream[T]]) Stream[T] {
	return FlatMap(s, identity[Stream[T]])
}

// MergeAll merges a stream of streams without a concurrency limit.
func MergeAll[T any](s Stream[Stream[T]]) Stream[T] {
	return MergeMap(s, identity[Stream[T]])
}

// Concat plays the given streams one after another.
func Concat[T any](streams ...Stream[T]) Stream[T] {
	return Flatten(Of(streams...))
}

// Mix runs the given streams concurrently and completes when all have
// completed. The interleaving across inputs is unspecified.
func Mix[T any](streams ...Stream[T]) Stream[T] {
	return MergeAll(Of(streams...))
}

func identity[T any](v T) T { return v }

// switchSource keeps exactly one inner stream open: each outer value closes
// the previous inner stream before opening the next one.
type switchSource[A, B any] struct {
	outer Stream[A]
	f     func(A) Stream[B]
}

func (s *switchSource[A, B]) Properties() []sched.Property {
	return []sched.Property{sched.AllowSync()}
}

func (s *switchSource[A, B]) Invoke(d *Dispatcher[B]) {
	if d.IsClosed() {
		return
	}

	var (
		base      Channel[A]
		active    Channel[B]
		outerDone bool
	)
	d.SetCloseHandler(func() {
		if base != nil {
			base.Close()
			base = nil
		}
		if active != nil {
			active.Close()
			active = nil
		}
	})

	s.outer.OpenWith(d.Callee(), func(c Channel[A]) Handler[A] {
		base = c
		return func(e Event[A]) {
			switch e.Kind {
			case KindValue:
				if active != nil {
					active.Close()
					active = nil
				}
				s.f(e.Value).OpenWith(d.Callee(), func(c Channel[B]) Handler[B] {
					active = c
					return func(e Event[B]) {
						switch e.Kind {
						case KindCompleted:
							if active == c {
								active = nil
							}
							if outerDone && active == nil {
								d.EmitIfOpen(e)
							}
						default:
							d.EmitIfOpen(e)
						}
					}
				})
			case KindFailure:
				d.EmitIfOpen(FailEvent[B](e.Err))
			case KindCompleted:
				outerDone = true
				base = nil
				if active == nil {
					d.EmitIfOpen(DoneEvent[B]())
				}
			}
		}
	})
}

// SwitchMap maps each value to an inner stream and forwards only the latest
// one: a new outer value closes the active inner stream immediately.
func SwitchMap[A, B any](s Stream[A], f func(A) Stream[B]) Stream[B] {
	return FromSource[B](&switchSource[A, B]{outer: s, f: f})
}
