package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultActorName names the root actor of an Executor.
const DefaultActorName = "main"

// Executor is the production scheduling backend.
//
// Each actor is a mailbox drained by exactly one goroutine, so tasks on the
// same actor never run concurrently while tasks on different actors run in
// parallel. Mailbox goroutines are owned by an errgroup and are started
// lazily the first time a context binds to an actor. An actor is retired
// once every context bound to it has been closed.
//
// Thread-safety model:
//   - NewContext, Do, Shutdown: safe from any goroutine
//   - Context.Schedule: safe from any goroutine
//   - Context.AssertCurrent: passes only on the actor's own goroutine
type Executor struct {
	logger *slog.Logger
	root   PID

	mu      sync.Mutex
	actors  map[PID]*mailbox
	stopped bool

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	isoSeq atomic.Int64
}

// ExecutorOption allows configuration of executor parameters.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for actor lifecycle messages.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithActorName sets the name of the root actor returned by NewContext.
//
// Default: "main" (DefaultActorName)
func WithActorName(name string) ExecutorOption {
	return func(e *Executor) {
		e.root = NewPID(name)
	}
}

// NewExecutor creates a running Executor. Call Shutdown to stop it.
func NewExecutor(opts ...ExecutorOption) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	e := &Executor{
		logger: slog.Default(),
		root:   NewPID(DefaultActorName),
		actors: make(map[PID]*mailbox),
		group:  group,
		ctx:    gctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewContext returns a new context bound to the root actor.
func (e *Executor) NewContext() Context {
	return &execContext{
		exec: e,
		mb:   e.acquire(e.root),
		name: e.root.Name,
	}
}

// Do runs fn on c's actor and blocks until it returns.
//
// Code outside the executor uses Do to subscribe to or close channels whose
// caller context belongs to this executor. Returns a ViolationError if the
// executor has been stopped or the actor retired.
func (e *Executor) Do(c Context, fn func()) error {
	ec, ok := c.(*execContext)
	if !ok || ec.exec != e {
		return &ViolationError{
			Code:    ErrCodeActorMismatch,
			Message: "context does not belong to this executor",
			Context: fmt.Sprint(c.PID()),
		}
	}

	done := make(chan struct{})
	if !ec.mb.Enqueue(func() {
		defer close(done)
		fn()
	}) {
		return &ViolationError{
			Code:    ErrCodeExecutorStopped,
			Message: "actor is no longer accepting tasks",
			Context: ec.name,
		}
	}

	select {
	case <-done:
		return nil
	case <-e.ctx.Done():
		return &ViolationError{
			Code:    ErrCodeExecutorStopped,
			Message: "executor stopped before task ran",
			Context: ec.name,
		}
	}
}

// Actors returns the number of actors with at least one open context.
func (e *Executor) Actors() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, mb := range e.actors {
		if mb.refs > 0 {
			n++
		}
	}
	return n
}

// Shutdown stops accepting work, lets every actor drain its mailbox and
// waits for all actor goroutines to exit.
//
// If ctx expires first, the actor loops are cancelled without draining and
// ctx.Err() is returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		for pid, mb := range e.actors {
			mb.Close()
			delete(e.actors, pid)
		}
	}
	e.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case err := <-done:
		e.cancel()
		e.logger.Info("executor stopped")
		return err
	case <-ctx.Done():
		e.cancel()
		e.logger.Warn("executor shutdown interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}

// acquire returns the mailbox of pid, starting its actor loop if needed, and
// takes a reference on it.
//
// A retiring mailbox whose loop has not exited yet is reopened rather than
// replaced, so one PID never has two loops.
func (e *Executor) acquire(pid PID) *mailbox {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		// Contexts derived after shutdown silently drop their tasks.
		mb := newMailbox(pid)
		mb.Close()
		return mb
	}

	mb, ok := e.actors[pid]
	switch {
	case !ok:
		mb = newMailbox(pid)
		e.actors[pid] = mb
		e.group.Go(func() error {
			return e.run(e.ctx, mb)
		})
	case mb.refs == 0:
		mb.Reopen()
		e.logger.Debug("actor reopened", "actor", pid.String())
	}
	mb.refs++
	return mb
}

// release drops a reference on mb and closes it when none remain. The loop
// unregisters the actor once the mailbox is drained.
func (e *Executor) release(mb *mailbox) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mb.refs--
	if mb.refs > 0 {
		return
	}
	mb.Close()
}

// retire unregisters mb after its loop drained it. Returns false if a
// context re-acquired the actor in the meantime or queued tasks while it
// was reopened.
func (e *Executor) retire(mb *mailbox) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.stopped && (mb.refs > 0 || mb.Len() > 0) {
		return false
	}
	if e.actors[mb.pid] == mb {
		delete(e.actors, mb.pid)
	}
	return true
}

// run is the single-writer loop of one actor.
//
// CRITICAL: all tasks of the actor run on this goroutine, one at a time.
// A closed mailbox is drained before the loop exits.
func (e *Executor) run(ctx context.Context, mb *mailbox) error {
	mb.goid.Store(goroutineID())
	e.logger.Debug("actor started", "actor", mb.pid.String())

	for {
		if task, ok := mb.TryDequeue(); ok {
			task()
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("actor cancelled", "actor", mb.pid.String(), "pending", mb.Len())
			return nil
		case _, open := <-mb.Wait():
			if open {
				continue
			}
			for {
				task, ok := mb.TryDequeue()
				if !ok {
					break
				}
				task()
			}
			if e.retire(mb) {
				e.logger.Debug("actor retired", "actor", mb.pid.String())
				return nil
			}
		}
	}
}

// execContext is a Context backed by an Executor mailbox.
type execContext struct {
	exec      *Executor
	mb        *mailbox
	name      string
	allowSync bool
	closed    atomic.Bool
}

func (c *execContext) Schedule(caller Context, delay time.Duration, task func()) {
	if delay <= 0 {
		if c.allowSync && sameActor(caller, c.mb.pid) && c.mb.isCurrent() {
			task()
			return
		}
		c.post(task)
		return
	}
	time.AfterFunc(delay, func() { c.post(task) })
}

func (c *execContext) post(task func()) {
	if !c.mb.Enqueue(task) {
		c.exec.logger.Debug("task dropped", "actor", c.mb.pid.String(), "context", c.name)
	}
}

func (c *execContext) Derive(props ...Property) Context {
	cfg := Parse(props)
	pid := c.mb.pid
	if cfg.Isolated {
		pid = NewPID(fmt.Sprintf("%s.iso%d", c.mb.pid.Name, c.exec.isoSeq.Add(1)))
	}
	if cfg.HasActor {
		pid = cfg.Actor
	}
	return &execContext{
		exec:      c.exec,
		mb:        c.exec.acquire(pid),
		name:      c.name + ">" + pid.Name,
		allowSync: cfg.AllowSync,
	}
}

func (c *execContext) AssertCurrent() {
	if !c.mb.isCurrent() {
		Violate(ErrCodeActorMismatch, c.name, "not running on actor %s", c.mb.pid)
	}
}

func (c *execContext) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.exec.release(c.mb)
	}
}

func (c *execContext) PID() PID { return c.mb.pid }

func (c *execContext) Now() time.Time { return time.Now() }
