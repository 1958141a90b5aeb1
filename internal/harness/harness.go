package harness

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/rill/internal/trace"
	"github.com/roach88/rill/sched"
	"github.com/roach88/rill/stream"
	"github.com/roach88/rill/stream/streamtest"
)

// Harness runs scenarios on a virtual executor.
type Harness struct {
	logger    *slog.Logger
	tick      time.Duration
	maxEvents int
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger for run diagnostics. Logs are discarded by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithTick sets the virtual duration of one scenario tick. Default: 1s.
func WithTick(tick time.Duration) Option {
	return func(h *Harness) {
		if tick > 0 {
			h.tick = tick
		}
	}
}

// WithMaxEvents bounds the number of events a run may record. Default:
// DefaultMaxEvents.
func WithMaxEvents(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.maxEvents = n
		}
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tick:      time.Second,
		maxEvents: DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with the default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(scenario)
}

// Run executes one scenario on a fresh virtual executor and returns the
// recorded timeline with every mismatch.
//
// The pipeline is opened at tick 0 by a consumer on the main actor. If
// close_at is set, events due at that tick are delivered before the
// consumer closes its channel. The clock then advances to run_until.
//
// A returned error means the scenario could not be built. Runtime contract
// violations raised while running are reported in the result.
func (h *Harness) Run(scenario *Scenario) (result *Result, err error) {
	pipeline, err := builder{tick: h.tick}.pipeline(scenario)
	if err != nil {
		return nil, fmt.Errorf("build scenario %s: %w", scenario.Name, err)
	}

	h.logger.Debug("scenario started",
		"scenario", scenario.Name,
		"ops", len(scenario.Ops),
		"run_until", scenario.RunUntil)

	exec := sched.NewVirtualExecutor()
	ctx := exec.NewContext(scenario.Name)
	result = NewResult()

	defer func() {
		if r := recover(); r != nil {
			if !sched.IsViolation(r) {
				panic(r)
			}
			result.AddError(fmt.Sprintf("runtime violation: %v", r))
			result.LiveContexts = exec.LiveContexts()
			h.logger.Debug("scenario aborted", "scenario", scenario.Name, "code", sched.CodeOf(r))
			err = nil
		}
	}()

	quota := NewEventQuota(h.maxEvents)
	rec := streamtest.Record(exec, ctx, pipeline)
	rec.OnEvent(func(r streamtest.Recorded[int64]) {
		if qerr := quota.Check(scenario.Name); qerr != nil {
			if quota.Current() == quota.Limit()+1 {
				result.AddError(qerr.Error())
				rec.Close()
			}
			return
		}
		result.Record(h.entry(r))
	})

	if scenario.CloseAt > 0 {
		exec.ConsumeUntil(h.ticks(scenario.CloseAt), nil)
		rec.Close()
	}
	exec.ConsumeUntil(h.ticks(scenario.RunUntil), nil)
	result.LiveContexts = exec.LiveContexts()

	if scenario.Expect != nil {
		compareTimeline(result, expectedTimeline(scenario.Expect))
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"events", len(result.Timeline),
		"live_contexts", result.LiveContexts,
		"pass", result.Pass)
	return result, nil
}

func (h *Harness) ticks(n int64) time.Duration {
	return time.Duration(n) * h.tick
}

// entry converts a recorded event to a timeline entry in ticks.
func (h *Harness) entry(r streamtest.Recorded[int64]) trace.Entry {
	at := int64(r.At / h.tick)
	switch r.Event.Kind {
	case stream.KindValue:
		return trace.Entry{At: at, Kind: trace.KindValue, Value: r.Event.Value}
	case stream.KindFailure:
		return trace.Entry{At: at, Kind: trace.KindFailure, Error: r.Event.Err.Error()}
	default:
		return trace.Entry{At: at, Kind: trace.KindCompleted}
	}
}

func expectedTimeline(expect []ExpectEntry) trace.Timeline {
	tl := make(trace.Timeline, len(expect))
	for i, e := range expect {
		tl[i] = e.Entry()
	}
	return tl
}

// compareTimeline records one error per differing position, then one for a
// length mismatch.
func compareTimeline(result *Result, want trace.Timeline) {
	got := result.Timeline
	n := min(len(got), len(want))
	for i := 0; i < n; i++ {
		if got[i] != want[i] {
			result.AddError(fmt.Sprintf("timeline[%d]: expected %s, got %s", i, want[i], got[i]))
		}
	}
	switch {
	case len(got) > len(want):
		result.AddError(fmt.Sprintf("timeline: unexpected entry %s (expected %d entries, got %d)", got[n], len(want), len(got)))
	case len(got) < len(want):
		result.AddError(fmt.Sprintf("timeline: missing entry %s (expected %d entries, got %d)", want[n], len(want), len(got)))
	}
}
