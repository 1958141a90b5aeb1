package stream

import (
	"time"

	"github.com/roach88/rill/deque"
	"github.com/roach88/rill/sched"
)

// both opens a and b on d's callee and closes both when d closes. Closing a
// side that has already terminated is a no-op.
func both[A, B, T any](d *Dispatcher[T], a Stream[A], ha Handler[A], b Stream[B], hb Handler[B]) {
	var (
		ca Channel[A]
		cb Channel[B]
	)
	d.SetCloseHandler(func() {
		if ca != nil {
			ca.Close()
			ca = nil
		}
		if cb != nil {
			cb.Close()
			cb = nil
		}
	})
	a.OpenWith(d.Callee(), func(c Channel[A]) Handler[A] {
		ca = c
		return ha
	})
	b.OpenWith(d.Callee(), func(c Channel[B]) Handler[B] {
		cb = c
		return hb
	})
}

// Zip pairs the values of a and b positionally. Each side buffers values the
// other side has not matched yet; the zipped stream completes as soon as one
// side has completed with nothing left in its buffer, so the longer input is
// truncated.
func Zip[A, B any](a Stream[A], b Stream[B]) Stream[Pair[A, B]] {
	return New(func(d *Dispatcher[Pair[A, B]]) {
		if d.IsClosed() {
			return
		}
		var (
			qa           deque.Deque[A]
			qb           deque.Deque[B]
			doneA, doneB bool
		)
		check := func() {
			if (doneA && qa.Len() == 0) || (doneB && qb.Len() == 0) {
				d.EmitIfOpen(DoneEvent[Pair[A, B]]())
			}
		}

		both(d,
			a, func(e Event[A]) {
				switch e.Kind {
				case KindValue:
					if r, ok := qb.Shift(); ok {
						d.EmitIfOpen(NextEvent(MakePair(e.Value, r)))
					} else {
						qa.Push(e.Value)
					}
					check()
				case KindFailure:
					d.EmitIfOpen(FailEvent[Pair[A, B]](e.Err))
				case KindCompleted:
					doneA = true
					check()
				}
			},
			b, func(e Event[B]) {
				switch e.Kind {
				case KindValue:
					if l, ok := qa.Shift(); ok {
						d.EmitIfOpen(NextEvent(MakePair(l, e.Value)))
					} else {
						qb.Push(e.Value)
					}
					check()
				case KindFailure:
					d.EmitIfOpen(FailEvent[Pair[A, B]](e.Err))
				case KindCompleted:
					doneB = true
					check()
				}
			})
	}, sched.AllowSync())
}

// CombineLatest emits the latest pair whenever either side produces a value,
// once both sides have produced at least one. It completes when both sides
// have completed.
func CombineLatest[A, B any](a Stream[A], b Stream[B]) Stream[Pair[A, B]] {
	return New(func(d *Dispatcher[Pair[A, B]]) {
		if d.IsClosed() {
			return
		}
		var (
			la           Option[A]
			lb           Option[B]
			doneA, doneB bool
		)
		emit := func() {
			l, okl := la.Get()
			r, okr := lb.Get()
			if okl && okr {
				d.EmitIfOpen(NextEvent(MakePair(l, r)))
			}
		}
		check := func() {
			if doneA && doneB {
				d.EmitIfOpen(DoneEvent[Pair[A, B]]())
			}
		}

		both(d,
			a, func(e Event[A]) {
				switch e.Kind {
				case KindValue:
					la = Some(e.Value)
					emit()
				case KindFailure:
					d.EmitIfOpen(FailEvent[Pair[A, B]](e.Err))
				case KindCompleted:
					doneA = true
					check()
				}
			},
			b, func(e Event[B]) {
				switch e.Kind {
				case KindValue:
					lb = Some(e.Value)
					emit()
				case KindFailure:
					d.EmitIfOpen(FailEvent[Pair[A, B]](e.Err))
				case KindCompleted:
					doneB = true
					check()
				}
			})
	}, sched.AllowSync())
}

// Sample emits the latest value of s each time tick produces a value, or an
// absent option if s has not produced one yet. It ends when tick ends.
func Sample[T, X any](s Stream[T], tick Stream[X]) Stream[Option[T]] {
	return New(func(d *Dispatcher[Option[T]]) {
		if d.IsClosed() {
			return
		}
		var last Option[T]
		both(d,
			s, func(e Event[T]) {
				switch e.Kind {
				case KindValue:
					last = Some(e.Value)
				case KindFailure:
					d.EmitIfOpen(FailEvent[Option[T]](e.Err))
				}
			},
			tick, func(e Event[X]) {
				switch e.Kind {
				case KindValue:
					d.EmitIfOpen(NextEvent(last))
				default:
					d.EmitIfOpen(retype[X, Option[T]](e))
				}
			})
	}, sched.AllowSync())
}

// SampleEvery samples s once per interval.
func SampleEvery[T any](s Stream[T], interval time.Duration) Stream[Option[T]] {
	return Sample(s, Repeat(struct{}{}, interval))
}

// TakeUntil forwards s until notifier produces its first value, then
// completes. A notifier that completes without a value has no effect; a
// notifier failure is forwarded.
func TakeUntil[T, X any](s Stream[T], notifier Stream[X]) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		if d.IsClosed() {
			return
		}
		both(d,
			s, forward(d),
			notifier, func(e Event[X]) {
				switch e.Kind {
				case KindValue:
					d.EmitIfOpen(DoneEvent[T]())
				case KindFailure:
					d.EmitIfOpen(FailEvent[T](e.Err))
				}
			})
	}, sched.AllowSync())
}
