package stream

import (
	"sync"
	"weak"

	"github.com/roach88/rill/sched"
)

// Update is one value published by a Subject together with its origin tag.
//
// Origin identifies who made the update: the Subject itself for the replay
// a new subscription receives, the peer Subject for updates forwarded by a
// binding, or whatever the caller passed to Update.
type Update[T any] struct {
	Value  T
	Origin any
}

// Subject is a hot cell with a current value, multicast to every live
// subscription.
//
// Thread-safety: the value and subscriber set are guarded by a mutex, so
// Value, Set and Update may be called from any actor. Deliveries are always
// scheduled onto each subscription's own producer context.
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[*Dispatcher[Update[T]]]struct{}
	closed bool
}

// NewSubject creates a Subject holding initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[*Dispatcher[Update[T]]]struct{}),
	}
}

// Value returns the current value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value with an anonymous origin.
func (s *Subject[T]) Set(v T) {
	s.Update(v, nil)
}

// Update replaces the value and schedules its delivery, tagged with origin,
// to every live subscription. Updates after Close change the value but reach
// nobody.
func (s *Subject[T]) Update(v T, origin any) {
	s.mu.Lock()
	s.value = v
	targets := s.snapshot()
	s.mu.Unlock()

	u := Update[T]{Value: v, Origin: origin}
	for _, d := range targets {
		d.Callee().Schedule(nil, 0, func() { d.EmitIfOpen(NextEvent(u)) })
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close completes every live subscription. Later subscriptions receive the
// current value and complete at once.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	targets := s.snapshot()
	clear(s.subs)
	s.mu.Unlock()

	for _, d := range targets {
		d.Callee().Schedule(nil, 0, func() { d.EmitIfOpen(DoneEvent[Update[T]]()) })
	}
}

func (s *Subject[T]) snapshot() []*Dispatcher[Update[T]] {
	out := make([]*Dispatcher[Update[T]], 0, len(s.subs))
	for d := range s.subs {
		out = append(out, d)
	}
	return out
}

// Updates returns a stream of origin-tagged updates. Each subscription first
// receives the current value, tagged with the Subject as origin.
func (s *Subject[T]) Updates() Stream[Update[T]] {
	return New(func(d *Dispatcher[Update[T]]) {
		if d.IsClosed() {
			return
		}
		s.mu.Lock()
		current := Update[T]{Value: s.value, Origin: s}
		if s.closed {
			s.mu.Unlock()
			d.EmitIfOpen(NextEvent(current))
			d.EmitIfOpen(DoneEvent[Update[T]]())
			return
		}
		s.subs[d] = struct{}{}
		s.mu.Unlock()

		d.SetCloseHandler(func() {
			s.mu.Lock()
			delete(s.subs, d)
			s.mu.Unlock()
		})
		d.EmitIfOpen(NextEvent(current))
	}, sched.AllowSync())
}

// Unwrap returns a stream of the plain values of s.
func (s *Subject[T]) Unwrap() Stream[T] {
	return Map(s.Updates(), func(u Update[T]) T { return u.Value })
}

// Bimap derives a Subject holding f of a's value and keeps both in sync:
// setting a updates the derived Subject with f, setting the derived Subject
// updates a with g. The forwarding subscriptions run on ctx.
//
// Bimap subscribes on ctx, so it must be called on ctx's actor; a ctx of a
// sched.Executor is reached from outside through Executor.Do. Called
// elsewhere it panics with an ACTOR_MISMATCH violation.
//
// Each direction skips the replay of its source and ignores updates whose
// origin is its own target, so an update never travels back to where it
// came from. Each direction refers to its target weakly; once a target is
// collected, the forwarding subscription closes itself on the next update.
func Bimap[A, B any](a *Subject[A], f func(A) B, g func(B) A, ctx sched.Context) *Subject[B] {
	b := NewSubject(f(a.Value()))
	link(a, b, f, ctx)
	link(b, a, g, ctx)
	return b
}

// MapSubject derives a Subject following a one way through f. Like Bimap,
// it must be called on ctx's actor.
func MapSubject[A, B any](a *Subject[A], f func(A) B, ctx sched.Context) *Subject[B] {
	b := NewSubject(f(a.Value()))
	link(a, b, f, ctx)
	return b
}

// link forwards every update of src after the replay to dst through f,
// tagging it with src as origin.
func link[A, B any](src *Subject[A], dst *Subject[B], f func(A) B, ctx sched.Context) {
	target := weak.Make(dst)
	src.Updates().Skip(1).OpenWith(ctx, func(c Channel[Update[A]]) Handler[Update[A]] {
		return func(e Event[Update[A]]) {
			if e.Kind != KindValue {
				return
			}
			dst := target.Value()
			if dst == nil {
				c.Close()
				return
			}
			if e.Value.Origin == any(dst) {
				return
			}
			dst.Update(f(e.Value.Value), src)
		}
	})
}
