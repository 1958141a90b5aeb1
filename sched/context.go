// Package sched defines the scheduling abstraction of the rill runtime.
//
// A Context is an opaque handle to a logical locus of sequential execution
// (an actor). Every callback in the runtime is scheduled onto a Context, and
// the runtime assumes that no two tasks belonging to the same actor ever run
// concurrently. Cross-actor communication always goes through Schedule, never
// through direct mutation.
//
// Two implementations are provided:
//
//   - Executor: production backend. Each actor is a mailbox drained by one
//     goroutine; delayed tasks are armed with time.AfterFunc.
//   - VirtualExecutor: deterministic backend for tests. Tasks are collected
//     with logical fire times and run only when the test advances the clock.
package sched

import (
	"time"

	"github.com/google/uuid"
)

// Context is a scheduling handle bound to one actor.
//
// Contexts are shared by reference and never owned by a single stream.
type Context interface {
	// Schedule queues task to run on this context after delay.
	//
	// When delay is zero, AllowSync was granted to this context and caller
	// denotes the same actor, the implementation may run task inline before
	// Schedule returns. Inline execution is purely an optimisation: it never
	// changes the per-subscription delivery order.
	Schedule(caller Context, delay time.Duration, task func())

	// Derive returns a new context configured by props. Without an Actor
	// property the derived context inherits this context's actor, unless
	// Isolated is given, in which case a fresh actor is created.
	Derive(props ...Property) Context

	// AssertCurrent panics with a ViolationError unless the calling code is
	// executing on this context's actor.
	AssertCurrent()

	// Close releases the context. No further work may be scheduled on it.
	Close()

	// PID identifies the actor this context runs on.
	PID() PID

	// Now returns the current time on this context's timeline.
	Now() time.Time
}

// PID is a comparable handle naming an actor.
//
// Two contexts run on the same actor exactly when their PIDs are equal.
type PID struct {
	Name string
	ID   uuid.UUID
}

// NewPID creates a unique actor identity with a time-sortable UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func NewPID(name string) PID {
	return PID{Name: name, ID: uuid.Must(uuid.NewV7())}
}

// Named returns a PID identified by name alone. Two Named PIDs with the same
// name denote the same actor; used by the virtual executor and in tests.
func Named(name string) PID {
	return PID{Name: name}
}

// String returns a human-readable form of the PID.
func (p PID) String() string {
	if p.ID == uuid.Nil {
		return p.Name
	}
	return p.Name + "/" + p.ID.String()
}

// PropertyKind distinguishes the recognised derivation requests.
type PropertyKind int

const (
	// KindIsolated requests an independent concurrent actor.
	KindIsolated PropertyKind = iota + 1
	// KindActor binds the derived context to a named actor.
	KindActor
	// KindAllowSync permits inline execution of zero-delay tasks when caller
	// and callee share an actor.
	KindAllowSync
)

// Property is a request made when deriving a context.
type Property struct {
	Kind PropertyKind
	PID  PID // set for KindActor
}

// Isolated requests a fresh, independent actor for the derived context.
func Isolated() Property { return Property{Kind: KindIsolated} }

// Actor binds the derived context to pid.
func Actor(pid PID) Property { return Property{Kind: KindActor, PID: pid} }

// AllowSync opts the derived context into the inline fast path.
func AllowSync() Property { return Property{Kind: KindAllowSync} }

// Config is the parsed form of a property set.
type Config struct {
	Actor     PID
	HasActor  bool
	Isolated  bool
	AllowSync bool
}

// Parse folds props into a Config. Later properties of the same kind override
// earlier ones; order between kinds is irrelevant.
func Parse(props []Property) Config {
	var c Config
	for _, p := range props {
		switch p.Kind {
		case KindIsolated:
			c.Isolated = true
		case KindActor:
			c.Actor = p.PID
			c.HasActor = true
		case KindAllowSync:
			c.AllowSync = true
		}
	}
	return c
}

// sameActor reports whether caller is non-nil and runs on pid.
func sameActor(caller Context, pid PID) bool {
	return caller != nil && caller.PID() == pid
}
