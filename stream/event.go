package stream

import "fmt"

// Kind distinguishes the three event variants.
type Kind int

const (
	// KindValue carries one element. Non-terminal and repeatable.
	KindValue Kind = iota + 1
	// KindFailure terminates the subscription with an error.
	KindFailure
	// KindCompleted terminates the subscription normally.
	KindCompleted
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFailure:
		return "failure"
	case KindCompleted:
		return "completed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the result of one delivery: a value, a failure or a completion.
type Event[T any] struct {
	Kind  Kind
	Value T     // set for KindValue
	Err   error // set for KindFailure
}

// NextEvent returns a Value event carrying v.
func NextEvent[T any](v T) Event[T] {
	return Event[T]{Kind: KindValue, Value: v}
}

// FailEvent returns a Failure event carrying err.
func FailEvent[T any](err error) Event[T] {
	return Event[T]{Kind: KindFailure, Err: err}
}

// DoneEvent returns a Completed event.
func DoneEvent[T any]() Event[T] {
	return Event[T]{Kind: KindCompleted}
}

// IsTerminal reports whether e ends its subscription.
func (e Event[T]) IsTerminal() bool {
	return e.Kind == KindFailure || e.Kind == KindCompleted
}

// String formats the event for logs and test failures.
func (e Event[T]) String() string {
	switch e.Kind {
	case KindValue:
		return fmt.Sprintf("value(%v)", e.Value)
	case KindFailure:
		return fmt.Sprintf("failure(%v)", e.Err)
	default:
		return e.Kind.String()
	}
}

// MapEvent applies f to the value of a Value event; terminal events are
// carried over unchanged.
func MapEvent[A, B any](e Event[A], f func(A) B) Event[B] {
	switch e.Kind {
	case KindValue:
		return NextEvent(f(e.Value))
	case KindFailure:
		return FailEvent[B](e.Err)
	default:
		return DoneEvent[B]()
	}
}

// retype converts a terminal event to another element type.
func retype[A, B any](e Event[A]) Event[B] {
	if e.Kind == KindFailure {
		return FailEvent[B](e.Err)
	}
	return DoneEvent[B]()
}
