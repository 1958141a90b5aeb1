package stream

import (
	"time"

	"github.com/roach88/rill/sched"
)

// Source produces the events of one subscription.
//
// Invoke is called once per Open, on the callee context derived from the
// caller's context with Properties.
type Source[T any] interface {
	Properties() []sched.Property
	Invoke(d *Dispatcher[T])
}

// Stream is a cold, restartable description of an event sequence.
//
// The zero Stream is not usable; build streams with the constructors of
// this package.
type Stream[T any] struct {
	src Source[T]
}

// FromSource wraps a Source as a Stream.
func FromSource[T any](src Source[T]) Stream[T] {
	return Stream[T]{src: src}
}

// Open starts a new execution whose consumer runs on caller.
func (s Stream[T]) Open(caller sched.Context) Channel[T] {
	return s.OpenWith(caller, nil)
}

// OpenWith starts a new execution and lets cont attach a handler before the
// producer is invoked, so the first event cannot be missed. cont may return
// nil to subscribe later.
func (s Stream[T]) OpenWith(caller sched.Context, cont func(Channel[T]) Handler[T]) Channel[T] {
	d := NewDispatcher[T](caller, caller.Derive(s.src.Properties()...))
	if cont != nil {
		if h := cont(d); h != nil {
			d.Subscribe(h)
		}
	}
	src := s.src
	d.callee.Schedule(caller, 0, func() { src.Invoke(d) })
	return d
}

// Subscribe opens s on caller with h attached. Shorthand for OpenWith.
func (s Stream[T]) Subscribe(caller sched.Context, h Handler[T]) Channel[T] {
	return s.OpenWith(caller, func(Channel[T]) Handler[T] { return h })
}

type closureSource[T any] struct {
	props []sched.Property
	fn    func(*Dispatcher[T])
}

func (c *closureSource[T]) Properties() []sched.Property { return c.props }
func (c *closureSource[T]) Invoke(d *Dispatcher[T])      { c.fn(d) }

// New builds a Stream from a producer closure. fn runs once per Open on a
// context derived with props.
func New[T any](fn func(d *Dispatcher[T]), props ...sched.Property) Stream[T] {
	return FromSource[T](&closureSource[T]{props: props, fn: fn})
}

// Never returns a stream that emits nothing and never terminates.
func Never[T any]() Stream[T] {
	return New(func(*Dispatcher[T]) {})
}

// Pure returns a stream of exactly one value.
func Pure[T any](v T) Stream[T] {
	return New(func(d *Dispatcher[T]) { d.Flush(v) }, sched.AllowSync())
}

// Done returns an empty stream.
func Done[T any]() Stream[T] {
	return New(func(d *Dispatcher[T]) { d.Complete() }, sched.AllowSync())
}

// Fail returns a stream that fails immediately with err.
func Fail[T any](err error) Stream[T] {
	return New(func(d *Dispatcher[T]) { d.Fail(err) }, sched.AllowSync())
}

// Of returns a stream of the given values.
func Of[T any](vs ...T) Stream[T] {
	return FromSlice(vs)
}

// FromSlice returns a stream of the elements of vs. The slice is not copied.
func FromSlice[T any](vs []T) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		for i := 0; i < len(vs) && !d.IsClosed(); i++ {
			d.Next(vs[i])
		}
		d.EmitIfOpen(DoneEvent[T]())
	}, sched.AllowSync())
}

// Integer is the constraint of Range.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Range returns the half-open interval [from, to).
func Range[T Integer](from, to T) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		for i := from; i < to && !d.IsClosed(); i++ {
			d.Next(i)
		}
		d.EmitIfOpen(DoneEvent[T]())
	})
}

// Exec computes one value with f on a context derived with props.
func Exec[T any](f func() T, props ...sched.Property) Stream[T] {
	return New(func(d *Dispatcher[T]) { d.Flush(f()) }, props...)
}

// Repeat emits v every period until the subscription is closed. The first
// value arrives one period after the stream is opened.
func Repeat[T any](v T, period time.Duration) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		stopped := false
		d.SetCloseHandler(func() { stopped = true })

		ctx := d.Callee()
		var tick func()
		tick = func() {
			if stopped || d.IsClosed() {
				return
			}
			d.EmitIfOpen(NextEvent(v))
			ctx.Schedule(nil, period, tick)
		}
		ctx.Schedule(nil, period, tick)
	})
}

// Timeout emits v once after delay, then completes.
func Timeout[T any](delay time.Duration, v T) Stream[T] {
	return Repeat(v, delay).Take(1)
}

// Pipe lets f build the stream to forward from the dispatcher of the new
// subscription, typically to inspect its callee context.
func Pipe[T any](f func(d *Dispatcher[T]) Stream[T], props ...sched.Property) Stream[T] {
	return New(func(d *Dispatcher[T]) {
		relay(d, f(d), d.EmitIfOpen)
	}, props...)
}

// relay opens up on d's callee, passes every upstream event to h and closes
// the upstream when d closes.
func relay[A, T any](d *Dispatcher[T], up Stream[A], h Handler[A]) {
	if d.IsClosed() {
		return
	}
	var base Channel[A]
	d.SetCloseHandler(func() {
		if base != nil {
			base.Close()
			base = nil
		}
	})
	up.OpenWith(d.Callee(), func(c Channel[A]) Handler[A] {
		base = c
		return h
	})
}

// forward is the Handler that re-emits every event on d.
func forward[T any](d *Dispatcher[T]) Handler[T] {
	return d.EmitIfOpen
}
