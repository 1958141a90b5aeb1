// Package streamtest runs streams on a virtual executor and records what
// they deliver, for tests and diagnostics.
package streamtest

import (
	"time"

	"github.com/roach88/rill/sched"
	"github.com/roach88/rill/stream"
)

// Recorded is one delivered event with the virtual time it arrived at.
type Recorded[T any] struct {
	At    time.Duration
	Event stream.Event[T]
}

// Recorder records the events of one subscription.
//
// Recorder is driven by a VirtualExecutor and is not safe for concurrent use.
type Recorder[T any] struct {
	exec    *sched.VirtualExecutor
	ch      stream.Channel[T]
	events  []Recorded[T]
	onEvent func(Recorded[T])
}

// Record opens s on ctx and records every event it delivers.
func Record[T any](exec *sched.VirtualExecutor, ctx sched.Context, s stream.Stream[T]) *Recorder[T] {
	r := &Recorder[T]{exec: exec}
	r.ch = s.Subscribe(ctx, r.handle)
	return r
}

// OnEvent installs a callback invoked after each recorded event.
func (r *Recorder[T]) OnEvent(f func(Recorded[T])) {
	r.onEvent = f
}

func (r *Recorder[T]) handle(e stream.Event[T]) {
	rec := Recorded[T]{At: r.exec.Elapsed(), Event: e}
	r.events = append(r.events, rec)
	if r.onEvent != nil {
		r.onEvent(rec)
	}
}

// Channel returns the recorded subscription.
func (r *Recorder[T]) Channel() stream.Channel[T] { return r.ch }

// Close closes the recorded subscription.
func (r *Recorder[T]) Close() { r.ch.Close() }

// Events returns a copy of the recorded events.
func (r *Recorder[T]) Events() []Recorded[T] {
	out := make([]Recorded[T], len(r.events))
	copy(out, r.events)
	return out
}

// Values returns the recorded values in delivery order.
func (r *Recorder[T]) Values() []T {
	var out []T
	for _, rec := range r.events {
		if rec.Event.Kind == stream.KindValue {
			out = append(out, rec.Event.Value)
		}
	}
	return out
}

// ValuesAt returns the values delivered exactly at virtual time t.
func (r *Recorder[T]) ValuesAt(t time.Duration) []T {
	var out []T
	for _, rec := range r.events {
		if rec.At == t && rec.Event.Kind == stream.KindValue {
			out = append(out, rec.Event.Value)
		}
	}
	return out
}

// Terminal returns the terminal event, if one was delivered.
func (r *Recorder[T]) Terminal() (stream.Event[T], bool) {
	if n := len(r.events); n > 0 && r.events[n-1].Event.IsTerminal() {
		return r.events[n-1].Event, true
	}
	return stream.Event[T]{}, false
}

// Done reports whether a terminal event was delivered.
func (r *Recorder[T]) Done() bool {
	_, ok := r.Terminal()
	return ok
}

// Err returns the error of a Failure terminal, or nil.
func (r *Recorder[T]) Err() error {
	if e, ok := r.Terminal(); ok && e.Kind == stream.KindFailure {
		return e.Err
	}
	return nil
}

// Collect runs s on a fresh virtual executor until it terminates or no task
// is left, and returns its values and failure. The virtual clock jumps from
// one scheduled task to the next, so timed streams finish instantly.
//
// Collect never returns for a stream that keeps scheduling work forever
// without terminating; bound such streams with Take or TakeUntil.
func Collect[T any](s stream.Stream[T]) ([]T, error) {
	exec := sched.NewVirtualExecutor()
	ctx := exec.NewContext("collect")
	defer ctx.Close()

	rec := Record(exec, ctx, s)
	for !rec.Done() && exec.ConsumeNext() {
	}
	// Let close callbacks scheduled by the terminal delivery run.
	exec.ConsumeAll()
	return rec.Values(), rec.Err()
}

// MustCollect is Collect for streams expected to succeed. It panics on a
// Failure.
func MustCollect[T any](s stream.Stream[T]) []T {
	vs, err := Collect(s)
	if err != nil {
		panic(err)
	}
	return vs
}
