package stream

import (
	"runtime"
	"sync"
	"weak"

	"github.com/roach88/rill/sched"
)

// channelRef holds the channel wrapped by AutoClose. It is shared between
// the wrapper and the wrapper's cleanup, never the wrapper itself.
type channelRef[T any] struct {
	mu sync.Mutex
	ch Channel[T]
}

func (r *channelRef[T]) get() Channel[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch
}

func (r *channelRef[T]) take() Channel[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.ch
	r.ch = nil
	return ch
}

type autoClosing[T any] struct {
	ref *channelRef[T]
}

// AutoClose wraps c so that it is closed once the wrapper becomes
// unreachable. caller must be the context c was opened with; the close is
// scheduled there. Closing the wrapper closes c at once.
func AutoClose[T any](c Channel[T], caller sched.Context) Channel[T] {
	ref := &channelRef[T]{ch: c}
	a := &autoClosing[T]{ref: ref}
	runtime.AddCleanup(a, func(ref *channelRef[T]) {
		if ch := ref.take(); ch != nil {
			caller.Schedule(nil, 0, ch.Close)
		}
	}, ref)
	return a
}

func (a *autoClosing[T]) Subscribe(h Handler[T]) {
	if ch := a.ref.get(); ch != nil {
		ch.Subscribe(h)
	}
}

func (a *autoClosing[T]) Close() {
	if ch := a.ref.take(); ch != nil {
		ch.Close()
	}
}

// publishSource multicasts the events of one shared channel to every live
// subscription. A terminal event is kept and replayed to late subscribers.
type publishSource[T any] struct {
	mu     sync.Mutex
	subs   map[*Dispatcher[T]]struct{}
	final  *Event[T]
	origin Channel[T]
}

func (p *publishSource[T]) Properties() []sched.Property {
	return []sched.Property{sched.AllowSync()}
}

func (p *publishSource[T]) Invoke(d *Dispatcher[T]) {
	if d.IsClosed() {
		return
	}
	p.mu.Lock()
	if p.final != nil {
		e := *p.final
		p.mu.Unlock()
		d.EmitIfOpen(e)
		return
	}
	p.subs[d] = struct{}{}
	p.mu.Unlock()

	d.SetCloseHandler(func() {
		p.mu.Lock()
		delete(p.subs, d)
		p.mu.Unlock()
	})
}

func (p *publishSource[T]) broadcast(e Event[T]) {
	p.mu.Lock()
	targets := make([]*Dispatcher[T], 0, len(p.subs))
	for d := range p.subs {
		targets = append(targets, d)
	}
	if e.IsTerminal() {
		p.final = &e
		clear(p.subs)
	}
	p.mu.Unlock()

	for _, d := range targets {
		d.Callee().Schedule(nil, 0, func() { d.EmitIfOpen(e) })
	}
}

// Publish shares the already open channel c as a hot stream: every
// subscription receives the events c delivers from then on, and a late
// subscription after c terminated receives the terminal event alone.
// Closing a subscription never closes c; c is closed once the returned
// stream becomes unreachable.
//
// Publish subscribes to c, so it must be called on caller, the context c
// was opened with.
func Publish[T any](c Channel[T], caller sched.Context) Stream[T] {
	p := &publishSource[T]{
		subs:   make(map[*Dispatcher[T]]struct{}),
		origin: AutoClose(c, caller),
	}
	// The handler refers to the source weakly so that the subscription alone
	// does not keep the published stream reachable.
	target := weak.Make(p)
	p.origin.Subscribe(func(e Event[T]) {
		if src := target.Value(); src != nil {
			src.broadcast(e)
		}
	})
	return FromSource[T](p)
}
