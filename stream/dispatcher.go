package stream

import "github.com/roach88/rill/sched"

// Handler consumes the events of one subscription.
type Handler[T any] func(Event[T])

// Channel is the consumer's handle on a live subscription.
//
// Both methods must be called on the caller context the stream was opened
// with.
type Channel[T any] interface {
	// Subscribe installs the event handler. At most once per channel.
	Subscribe(h Handler[T])

	// Close ends the subscription from the consumer side. No event is
	// delivered after Close returns. Closing twice is a no-op.
	Close()
}

type closeState int

const (
	stateOpen closeState = iota
	stateClosing
	stateClosed
)

// Dispatcher is the producer's handle on a live subscription and the
// implementation of the consumer's Channel.
//
// Fields are split by side: the handler and callerOpen are touched only on
// the caller context, the close state and close callback only on the callee
// context. Every crossing between the two goes through Schedule.
type Dispatcher[T any] struct {
	caller sched.Context
	callee sched.Context

	// caller side
	handler    Handler[T]
	subscribed bool
	callerOpen bool

	// callee side
	state        closeState
	closeHandler func()
	closeSet     bool
}

// NewDispatcher creates a Dispatcher whose consumer runs on caller and whose
// producer runs on callee. Most code obtains dispatchers through Stream.Open
// or New instead.
func NewDispatcher[T any](caller, callee sched.Context) *Dispatcher[T] {
	return &Dispatcher[T]{
		caller:     caller,
		callee:     callee,
		callerOpen: true,
	}
}

// Caller returns the context the consumer runs on.
func (d *Dispatcher[T]) Caller() sched.Context { return d.caller }

// Callee returns the context the producer runs on.
func (d *Dispatcher[T]) Callee() sched.Context { return d.callee }

// Subscribe implements Channel.
func (d *Dispatcher[T]) Subscribe(h Handler[T]) {
	d.caller.AssertCurrent()
	if d.subscribed {
		sched.Violate(sched.ErrCodeDoubleSubscribe, d.caller.PID().String(), "channel already has a subscriber")
	}
	d.subscribed = true
	if d.callerOpen {
		d.handler = h
	}
}

// Close implements Channel.
func (d *Dispatcher[T]) Close() {
	d.caller.AssertCurrent()
	if !d.callerOpen {
		return
	}
	d.callerOpen = false
	d.handler = nil
	d.callee.Schedule(d.caller, 0, func() {
		if d.state == stateOpen {
			d.completeToClose()
		}
	})
}

// SetCloseHandler installs the callback run on the callee context when the
// subscription ends, whichever side ends it. At most once per dispatcher.
// If the subscription has already ended, f runs immediately.
func (d *Dispatcher[T]) SetCloseHandler(f func()) {
	d.callee.AssertCurrent()
	if d.closeSet {
		sched.Violate(sched.ErrCodeDoubleCloseHandler, d.callee.PID().String(), "close handler already installed")
	}
	d.closeSet = true
	if d.state == stateClosed {
		f()
		return
	}
	d.closeHandler = f
}

// IsClosed reports whether the producer may no longer emit. True once a
// terminal event was emitted or the consumer's close reached the callee.
func (d *Dispatcher[T]) IsClosed() bool {
	return d.state != stateOpen
}

// Emit sends e to the consumer. Emitting on a closed dispatcher is a
// violation; producers that may race with a consumer close check IsClosed
// or use EmitIfOpen.
func (d *Dispatcher[T]) Emit(e Event[T]) {
	d.callee.AssertCurrent()
	if d.state != stateOpen {
		sched.Violate(sched.ErrCodeEmitAfterClose, d.callee.PID().String(), "emit %s after close", e)
	}
	d.EmitIfOpen(e)
}

// EmitIfOpen sends e to the consumer, silently dropping it if the dispatcher
// is already closed.
func (d *Dispatcher[T]) EmitIfOpen(e Event[T]) {
	d.callee.AssertCurrent()
	if d.state != stateOpen {
		return
	}

	if !e.IsTerminal() {
		d.caller.Schedule(d.callee, 0, func() {
			if d.callerOpen && d.handler != nil {
				d.handler(e)
			}
		})
		return
	}

	d.state = stateClosing
	d.caller.Schedule(d.callee, 0, func() {
		if d.callerOpen {
			h := d.handler
			d.handler = nil
			d.callerOpen = false
			if h != nil {
				h(e)
			}
		}
		d.callee.Schedule(d.caller, 0, d.completeToClose)
	})
}

// Next emits a Value event.
func (d *Dispatcher[T]) Next(v T) { d.Emit(NextEvent(v)) }

// Fail emits a Failure event.
func (d *Dispatcher[T]) Fail(err error) { d.Emit(FailEvent[T](err)) }

// Complete emits a Completed event.
func (d *Dispatcher[T]) Complete() { d.Emit(DoneEvent[T]()) }

// Flush emits v followed by Completed.
func (d *Dispatcher[T]) Flush(v T) {
	d.callee.AssertCurrent()
	if d.state != stateOpen {
		sched.Violate(sched.ErrCodeEmitAfterClose, d.callee.PID().String(), "flush after close")
	}
	d.EmitIfOpen(NextEvent(v))
	d.EmitIfOpen(DoneEvent[T]())
}

// completeToClose runs on the callee context exactly once per dispatcher.
func (d *Dispatcher[T]) completeToClose() {
	d.state = stateClosed
	h := d.closeHandler
	d.closeHandler = nil
	if h != nil {
		h()
	}
	d.callee.Close()
}
