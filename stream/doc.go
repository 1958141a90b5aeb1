// Package stream implements cold, restartable event streams and the
// handshake protocol that connects a producer to a consumer.
//
// # Model
//
// A Stream is an immutable description. Opening it against a sched.Context
// allocates a Dispatcher, derives the producer's context from the caller's
// context and schedules the Source exactly once on that derived context.
// Opening the same Stream twice runs two independent executions.
//
//	ch := stream.Of(1, 2, 3).Filter(isOdd).Open(ctx)
//	ch.Subscribe(func(e stream.Event[int]) { ... })
//
// Each subscription delivers zero or more Value events followed by at most
// one terminal event (Failure or Completed). Every delivery crosses exactly
// one scheduling hop from the producer's context to the consumer's context,
// so a consumer never runs producer code in place. The only exception is the
// opt-in sched.AllowSync fast path, which never reorders a subscription.
//
// # Close Handshake
//
// The producer side of a Dispatcher moves through Open, Closing and Closed.
// A producer that emits a terminal event flips to Closing; once the terminal
// event has been delivered, the close callback runs back on the producer's
// context and the Dispatcher is Closed. A consumer that calls Close clears its
// handler at once and schedules the close callback on the producer's context.
// Either way the close callback runs exactly once.
//
// Contract violations (subscribing twice, installing two close callbacks,
// emitting after termination, running on the wrong actor) panic with a
// *sched.ViolationError. They are never turned into Failure events.
//
// # Combinators
//
// Same-type combinators are methods (Filter, Take, Skip, Delay, Recover...).
// Combinators that change the element type are functions (Map, FlatMap,
// SwitchMap, Zip, CombineLatest, Fold...), since Go methods cannot introduce
// type parameters.
//
// # Subjects
//
// A Subject is a hot cell holding a current value and multicasting updates to
// every live subscription. Bimap links two subjects in both directions using
// origin tags so that an update never bounces back to the subject it came from.
//
// Publish shares one already open Channel as a hot Stream, and GroupBy splits
// a stream into per-key Channels.
package stream
