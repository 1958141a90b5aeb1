package stream

import (
	"runtime"
	"sync"
	"weak"
)

// Attachments is a side table attaching one lazily created Subject to each
// owner object, keyed by the owner's identity.
//
// The table never keeps an owner alive. When an owner is garbage collected,
// its entry is removed and its Subject closed, which completes every live
// subscription to it.
type Attachments[O, T any] struct {
	mu      sync.Mutex
	initial func(*O) T
	entries map[weak.Pointer[O]]*Subject[T]
}

// NewAttachments creates a table whose subjects start with initial(owner).
func NewAttachments[O, T any](initial func(owner *O) T) *Attachments[O, T] {
	return &Attachments[O, T]{
		initial: initial,
		entries: make(map[weak.Pointer[O]]*Subject[T]),
	}
}

// For returns the Subject attached to owner, creating it on first use.
func (a *Attachments[O, T]) For(owner *O) *Subject[T] {
	key := weak.Make(owner)

	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.entries[key]; ok {
		return s
	}
	s := NewSubject(a.initial(owner))
	a.entries[key] = s
	runtime.AddCleanup(owner, a.detach, key)
	return s
}

// Lookup returns the Subject attached to owner without creating one.
func (a *Attachments[O, T]) Lookup(owner *O) (*Subject[T], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.entries[weak.Make(owner)]
	return s, ok
}

// Len returns the number of live entries.
func (a *Attachments[O, T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *Attachments[O, T]) detach(key weak.Pointer[O]) {
	a.mu.Lock()
	s, ok := a.entries[key]
	delete(a.entries, key)
	a.mu.Unlock()

	if ok {
		s.Close()
	}
}
