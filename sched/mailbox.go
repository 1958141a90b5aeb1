package sched

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/rill/deque"
)

// mailbox is the task queue of one production actor.
//
// The queue is unbounded so that a producer emitting in a tight loop never
// blocks on its consumer. Any goroutine may enqueue; exactly one goroutine
// (the actor loop started by the Executor) dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting in
// the actor loop, so Shutdown never hangs on an idle actor.
type mailbox struct {
	pid PID

	mu     sync.Mutex
	tasks  deque.Deque[func()]
	closed bool
	signal chan struct{} // signals task availability (buffered, size 1)

	// refs counts open contexts bound to this actor. Guarded by Executor.mu.
	// A mailbox with no refs stays registered until its loop has drained.
	refs int

	// goid is the goroutine running the actor loop, 0 before it starts.
	goid atomic.Uint64
}

func newMailbox(pid PID) *mailbox {
	return &mailbox{
		pid:    pid,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the mailbox is closed.
func (m *mailbox) Enqueue(task func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.tasks.Push(task)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case m.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front task without blocking.
func (m *mailbox) TryDequeue() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks.Shift()
}

// Wait returns a channel that signals when tasks may be available.
// The channel is closed once the mailbox is closed.
func (m *mailbox) Wait() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal
}

// Len returns the current queue length.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks.Len()
}

// Close stops accepting tasks. Tasks already queued are still drained by the
// actor loop before it exits.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	close(m.signal)
}

// Reopen accepts tasks again after Close. The actor loop observes the old
// signal channel as closed, drains, and keeps serving the reopened queue.
func (m *mailbox) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		return
	}

	m.closed = false
	m.signal = make(chan struct{}, 1)
	if m.tasks.Len() > 0 {
		m.signal <- struct{}{}
	}
}

// isCurrent reports whether the calling goroutine is the actor loop.
func (m *mailbox) isCurrent() bool {
	id := m.goid.Load()
	return id != 0 && id == goroutineID()
}
