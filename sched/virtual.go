package sched

import (
	"fmt"
	"time"
)

// MainActor is the actor of contexts returned by VirtualExecutor.NewContext.
// Test code running outside any task is treated as running on it.
var MainActor = Named("main")

// Epoch is the wall-clock origin reported by virtual contexts at elapsed 0.
var Epoch = time.Unix(0, 0).UTC()

// VirtualExecutor is a deterministic scheduler driven by a logical clock.
//
// Scheduled tasks are collected with a fire time and only run when the test
// advances time with ConsumeUntil, ConsumeAll, ConsumeNext or Advance. Tasks
// sharing a fire time run together in scheduling order.
//
// A stack of running contexts backs AssertCurrent: code may only act on a
// context whose actor matches the top of the stack, or MainActor when the
// stack is empty.
//
// Thread-safety: NOT safe for concurrent use. Tasks run on the goroutine
// that advances the clock.
type VirtualExecutor struct {
	now    time.Duration
	seq    int64 // scheduling order among tasks sharing a fire time
	tasks  []virtualTask
	stack  []*virtualContext
	live   int
	isoSeq int
}

type virtualTask struct {
	at  time.Duration
	seq int64
	ctx *virtualContext
	fn  func()
}

// NewVirtualExecutor creates an executor whose clock starts at 0.
func NewVirtualExecutor() *VirtualExecutor {
	return &VirtualExecutor{}
}

func (v *VirtualExecutor) nextSeq() int64 {
	v.seq++
	return v.seq
}

// NewContext returns a root context on MainActor.
func (v *VirtualExecutor) NewContext(name string) Context {
	return v.newContext(MainActor, name, false)
}

func (v *VirtualExecutor) newContext(pid PID, name string, allowSync bool) *virtualContext {
	v.live++
	return &virtualContext{exec: v, pid: pid, name: name, allowSync: allowSync}
}

// Elapsed returns the logical time since the executor was created.
func (v *VirtualExecutor) Elapsed() time.Duration { return v.now }

// Pending returns the number of scheduled tasks that have not run yet.
func (v *VirtualExecutor) Pending() int { return len(v.tasks) }

// LiveContexts returns the number of contexts created but not yet closed.
func (v *VirtualExecutor) LiveContexts() int { return v.live }

// ConsumeAll runs every task due at the current time, including tasks they
// schedule with zero delay. Reports whether any task ran.
func (v *VirtualExecutor) ConsumeAll() bool {
	return v.ConsumeUntil(v.now, nil)
}

// Advance moves the clock forward by d, running every task due on the way.
func (v *VirtualExecutor) Advance(d time.Duration) bool {
	return v.ConsumeUntil(v.now+d, nil)
}

// ConsumeUntil repeatedly finds the earliest fire time not after t, moves the
// clock there and runs every task due at that instant. It stops when no task
// is due by t or when cond (if non-nil) returns false, then sets the clock
// to t. Reports whether any task ran.
//
// Panics with a CLOCK_REWIND violation if t is before the current time.
func (v *VirtualExecutor) ConsumeUntil(t time.Duration, cond func() bool) bool {
	if t < v.now {
		Violate(ErrCodeClockRewind, "virtual", "cannot consume until %s, clock is at %s", t, v.now)
	}

	ran := false
	for cond == nil || cond() {
		batch := v.takeBatch(t)
		if len(batch) == 0 {
			break
		}
		v.now = batch[0].at
		for _, task := range batch {
			task.ctx.call(task.fn)
		}
		ran = true
	}
	v.now = t
	return ran
}

// ConsumeNext runs the earliest batch of due tasks regardless of how far in
// the future it lies. Reports false if nothing was scheduled.
func (v *VirtualExecutor) ConsumeNext() bool {
	batch := v.takeBatch(-1)
	if len(batch) == 0 {
		return false
	}
	v.now = batch[0].at
	for _, task := range batch {
		task.ctx.call(task.fn)
	}
	return true
}

// takeBatch removes and returns the tasks sharing the minimum fire time, in
// scheduling order. A negative limit means no limit.
func (v *VirtualExecutor) takeBatch(limit time.Duration) []virtualTask {
	var (
		minAt time.Duration
		found bool
	)
	for _, task := range v.tasks {
		if limit >= 0 && task.at > limit {
			continue
		}
		if !found || task.at < minAt {
			minAt = task.at
			found = true
		}
	}
	if !found {
		return nil
	}

	// v.tasks stays sorted by seq, so both halves keep scheduling order.
	var batch []virtualTask
	rest := v.tasks[:0]
	for _, task := range v.tasks {
		if task.at == minAt {
			batch = append(batch, task)
		} else {
			rest = append(rest, task)
		}
	}
	clear(v.tasks[len(rest):])
	v.tasks = rest
	return batch
}

func (v *VirtualExecutor) current() PID {
	if len(v.stack) == 0 {
		return MainActor
	}
	return v.stack[len(v.stack)-1].pid
}

// virtualContext is a Context driven by a VirtualExecutor.
type virtualContext struct {
	exec      *VirtualExecutor
	pid       PID
	name      string
	allowSync bool
	closed    bool
}

// Name returns the derivation path of the context.
func (c *virtualContext) Name() string { return c.name }

func (c *virtualContext) Schedule(caller Context, delay time.Duration, task func()) {
	if delay < 0 {
		delay = 0
	}
	if delay == 0 && c.allowSync && sameActor(caller, c.pid) {
		c.call(task)
		return
	}
	v := c.exec
	v.tasks = append(v.tasks, virtualTask{
		at:  v.now + delay,
		seq: v.nextSeq(),
		ctx: c,
		fn:  task,
	})
}

func (c *virtualContext) call(task func()) {
	v := c.exec
	v.stack = append(v.stack, c)
	defer func() {
		v.stack[len(v.stack)-1] = nil
		v.stack = v.stack[:len(v.stack)-1]
	}()
	task()
}

func (c *virtualContext) Derive(props ...Property) Context {
	cfg := Parse(props)
	pid := c.pid
	if cfg.Isolated {
		c.exec.isoSeq++
		pid = Named(fmt.Sprintf("iso%d", c.exec.isoSeq))
	}
	if cfg.HasActor {
		pid = cfg.Actor
	}
	return c.exec.newContext(pid, c.name+">"+pid.Name, cfg.AllowSync)
}

func (c *virtualContext) AssertCurrent() {
	if cur := c.exec.current(); cur != c.pid {
		Violate(ErrCodeActorMismatch, c.name, "running on actor %s, expected %s", cur, c.pid)
	}
}

func (c *virtualContext) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.exec.live--
}

func (c *virtualContext) PID() PID { return c.pid }

func (c *virtualContext) Now() time.Time { return Epoch.Add(c.exec.now) }
