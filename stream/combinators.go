package stream

import (
	"time"

	"github.com/roach88/rill/sched"
)

// Map applies f to every value.
func Map[A, B any](s Stream[A], f func(A) B) Stream[B] {
	return New(func(d *Dispatcher[B]) {
		relay(d, s, func(e Event[A]) { d.EmitIfOpen(MapEvent(e, f)) })
	}, sched.AllowSync())
}

// MapTo replaces every value with v.
func MapTo[A, B any](s Stream[A], v B) Stream[B] {
	return Map(s, func(A) B { return v })
}

// Filter keeps the values satisfying pred.
func (s Stream[T]) Filter(pred func(T) bool) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		relay(d, s, func(e Event[T]) {
			if e.Kind != KindValue || pred(e.Value) {
				d.EmitIfOpen(e)
			}
		})
	}, sched.AllowSync())
}

// Foreach runs action on every value before passing it on.
func (s Stream[T]) Foreach(action func(T)) Stream[T] {
	return Map(s, func(v T) T {
		action(v)
		return v
	})
}

// OnClose schedules action on the consumer's context each time a
// subscription ends, whichever side ends it.
func (s Stream[T]) OnClose(action func()) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		if d.IsClosed() {
			return
		}
		var base Channel[T]
		d.SetCloseHandler(func() {
			d.Caller().Schedule(d.Callee(), 0, action)
			if base != nil {
				base.Close()
				base = nil
			}
		})
		s.OpenWith(d.Callee(), func(c Channel[T]) Handler[T] {
			base = c
			return forward(d)
		})
	}, sched.AllowSync())
}

// Take passes the first n values, then completes and closes the upstream.
// Take(0) is an empty stream.
func (s Stream[T]) Take(n int) Stream[T] {
	if n <= 0 {
		return Done[T]()
	}
	return New(func(d *Dispatcher[T]) {
		remaining := n
		relay(d, s, func(e Event[T]) {
			if e.Kind != KindValue {
				d.EmitIfOpen(e)
				return
			}
			if remaining == 0 {
				return
			}
			remaining--
			d.EmitIfOpen(e)
			if remaining == 0 {
				d.EmitIfOpen(DoneEvent[T]())
			}
		})
	}, sched.AllowSync())
}

// Skip drops the first n values. Skip(0) returns s itself.
func (s Stream[T]) Skip(n int) Stream[T] {
	if n <= 0 {
		return s
	}
	return New(func(d *Dispatcher[T]) {
		skipped := 0
		relay(d, s, func(e Event[T]) {
			if e.Kind == KindValue && skipped < n {
				skipped++
				return
			}
			d.EmitIfOpen(e)
		})
	}, sched.AllowSync())
}

// TakeWhile passes values while pred holds and completes at the first value
// that fails it.
func (s Stream[T]) TakeWhile(pred func(T) bool) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		relay(d, s, func(e Event[T]) {
			if e.Kind == KindValue && !pred(e.Value) {
				d.EmitIfOpen(DoneEvent[T]())
				return
			}
			d.EmitIfOpen(e)
		})
	}, sched.AllowSync())
}

// SkipWhile drops values while pred holds, then passes everything.
func (s Stream[T]) SkipWhile(pred func(T) bool) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		skipping := true
		relay(d, s, func(e Event[T]) {
			if skipping && e.Kind == KindValue {
				if pred(e.Value) {
					return
				}
				skipping = false
			}
			d.EmitIfOpen(e)
		})
	}, sched.AllowSync())
}

// Delay forwards every value after a fixed pause. Terminal events wait for
// the values still in flight.
func (s Stream[T]) Delay(pause time.Duration) Stream[T] {
	return MergeMap(s, func(v T) Stream[T] { return Timeout(pause, v) })
}

// Throttle forwards a value only if no newer value arrives within interval;
// a newer value restarts the window.
func (s Stream[T]) Throttle(interval time.Duration) Stream[T] {
	return SwitchMap(s, func(v T) Stream[T] { return Timeout(interval, v) })
}

// Recover replaces a Failure with the stream returned by f. Completed passes
// through untouched. The replacement's own failures are not recovered.
func (s Stream[T]) Recover(f func(error) Stream[T]) Stream[T] {
	return s.switchOnTerminal(func(e Event[T]) (Stream[T], bool) {
		if e.Kind == KindFailure {
			return f(e.Err), true
		}
		return Stream[T]{}, false
	})
}

// ContinueWith opens the stream returned by f when s completes and forwards
// it in place of the completion.
func (s Stream[T]) ContinueWith(f func() Stream[T]) Stream[T] {
	return s.switchOnTerminal(func(e Event[T]) (Stream[T], bool) {
		if e.Kind == KindCompleted {
			return f(), true
		}
		return Stream[T]{}, false
	})
}

// FailOnDone turns the completion of s into a Failure with err.
func (s Stream[T]) FailOnDone(err error) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		relay(d, s, func(e Event[T]) {
			if e.Kind == KindCompleted {
				d.EmitIfOpen(FailEvent[T](err))
				return
			}
			d.EmitIfOpen(e)
		})
	}, sched.AllowSync())
}

// switchOnTerminal forwards s until its terminal event; if next accepts that
// event, the returned stream is opened and forwarded in its place.
func (s Stream[T]) switchOnTerminal(next func(Event[T]) (Stream[T], bool)) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		if d.IsClosed() {
			return
		}
		var base Channel[T]
		d.SetCloseHandler(func() {
			if base != nil {
				base.Close()
				base = nil
			}
		})
		s.OpenWith(d.Callee(), func(c Channel[T]) Handler[T] {
			base = c
			return func(e Event[T]) {
				if !e.IsTerminal() {
					d.EmitIfOpen(e)
					return
				}
				base = nil
				repl, ok := next(e)
				if !ok || d.IsClosed() {
					d.EmitIfOpen(e)
					return
				}
				repl.OpenWith(d.Callee(), func(c Channel[T]) Handler[T] {
					base = c
					return forward(d)
				})
			}
		})
	}, sched.AllowSync())
}

// Fold reduces the values of s with f, emitting the final accumulator once s
// completes. A Failure is forwarded instead.
func Fold[A, B any](s Stream[A], initial B, f func(B, A) B) Stream[B] {
	return New(func(d *Dispatcher[B]) {
		acc := initial
		relay(d, s, func(e Event[A]) {
			switch e.Kind {
			case KindValue:
				acc = f(acc, e.Value)
			case KindFailure:
				d.EmitIfOpen(FailEvent[B](e.Err))
			case KindCompleted:
				d.EmitIfOpen(NextEvent(acc))
				d.EmitIfOpen(DoneEvent[B]())
			}
		})
	}, sched.AllowSync())
}

// Distinct suppresses a value equal to the previously emitted one.
func Distinct[T comparable](s Stream[T]) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		var (
			last    T
			hasLast bool
		)
		relay(d, s, func(e Event[T]) {
			if e.Kind == KindValue {
				if hasLast && e.Value == last {
					return
				}
				last, hasLast = e.Value, true
			}
			d.EmitIfOpen(e)
		})
	}, sched.AllowSync())
}

// Compact drops absent options and unwraps the present ones.
func Compact[T any](s Stream[Option[T]]) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		relay(d, s, func(e Event[Option[T]]) {
			switch e.Kind {
			case KindValue:
				if v, ok := e.Value.Get(); ok {
					d.EmitIfOpen(NextEvent(v))
				}
			default:
				d.EmitIfOpen(retype[Option[T], T](e))
			}
		})
	}, sched.AllowSync())
}

// Pack materializes every event of s, terminal ones included, as a value.
// The packed stream completes after the terminal event of s.
func Pack[T any](s Stream[T]) Stream[Event[T]] {
	return New(func(d *Dispatcher[Event[T]]) {
		relay(d, s, func(e Event[T]) {
			d.EmitIfOpen(NextEvent(e))
			if e.IsTerminal() {
				d.EmitIfOpen(DoneEvent[Event[T]]())
			}
		})
	}, sched.AllowSync())
}

// Unpack is the inverse of Pack: it re-emits the packed events, ending at the
// first packed terminal event.
func Unpack[T any](s Stream[Event[T]]) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		relay(d, s, func(e Event[Event[T]]) {
			switch e.Kind {
			case KindValue:
				d.EmitIfOpen(e.Value)
			default:
				d.EmitIfOpen(retype[Event[T], T](e))
			}
		})
	}, sched.AllowSync())
}

// ZipWith pairs every value with the constant v.
func ZipWith[A, B any](s Stream[A], v B) Stream[Pair[A, B]] {
	return Map(s, func(a A) Pair[A, B] { return MakePair(a, v) })
}

// WithContext pairs each value with the context the pipeline stage runs on.
func WithContext[T any](s Stream[T]) Stream[Pair[T, sched.Context]] {
	return Pipe(func(d *Dispatcher[Pair[T, sched.Context]]) Stream[Pair[T, sched.Context]] {
		return ZipWith(s, d.Callee())
	}, sched.AllowSync())
}

// Isolated runs f over each value of s on a context derived with props and
// delivers the results back on the original context. Values are processed
// one at a time, in order.
func Isolated[A, B any](s Stream[A], props []sched.Property, f func(Stream[A]) Stream[B]) Stream[B] {
	return FlatMap(s, func(v A) Stream[B] {
		return Pipe(func(*Dispatcher[B]) Stream[B] { return f(Pure(v)) }, props...)
	})
}

// ParMap computes f for every value on its own isolated actor. Results are
// emitted as they finish, so their order is unspecified in production.
func ParMap[A, B any](s Stream[A], f func(A) B) Stream[B] {
	return MergeMap(s, func(v A) Stream[B] {
		return Exec(func() B { return f(v) }, sched.Isolated())
	})
}

// Race runs a and b concurrently, tagging each value with its side.
func Race[A, B any](a Stream[A], b Stream[B]) Stream[Either[A, B]] {
	return Mix(
		Map(a, Left[A, B]),
		Map(b, Right[A, B]),
	)
}

// Barrier forwards the values of s only while no gate is open. Each stream
// emitted by gates is opened at once and its values are forwarded; values of
// s arriving while any gate is still open are dropped. The result completes
// when s, gates and every gate have completed.
func Barrier[T any](s Stream[T], gates Stream[Stream[T]]) Stream[T] {
	return bindN(Race(s, gates), Unbounded, func() func(Either[T, Stream[T]]) Stream[T] {
		open := 0
		return func(e Either[T, Stream[T]]) Stream[T] {
			return FoldEither(e,
				func(v T) Stream[T] {
					if open > 0 {
						return Done[T]()
					}
					return Pure(v)
				},
				func(gate Stream[T]) Stream[T] {
					open++
					return gate.OnClose(func() { open-- })
				})
		}
	})
}

// Seq zips the given streams positionally into slices. It ends with the
// shortest input; with no input it emits one empty slice.
func Seq[T any](streams ...Stream[T]) Stream[[]T] {
	if len(streams) == 0 {
		return Pure([]T{})
	}
	acc := Map(streams[0], func(v T) []T { return []T{v} })
	for _, s := range streams[1:] {
		acc = Map(Zip(acc, s), func(p Pair[[]T, T]) []T {
			out := make([]T, len(p.First), len(p.First)+1)
			copy(out, p.First)
			return append(out, p.Second)
		})
	}
	return acc
}
