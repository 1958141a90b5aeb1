package harness

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rill/internal/trace"
)

// Scenario declares one stream pipeline, how long to run it and what it must
// produce. Times are in virtual ticks.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description" json:"description"`

	// Source is the stream the pipeline starts from.
	Source SourceSpec `yaml:"source" json:"source"`

	// Ops are applied to the source in order.
	Ops []OpSpec `yaml:"ops,omitempty" json:"ops,omitempty"`

	// RunUntil is the tick the virtual clock is advanced to.
	RunUntil int64 `yaml:"run_until" json:"run_until"`

	// CloseAt, when positive, closes the consumer's channel at that tick.
	CloseAt int64 `yaml:"close_at,omitempty" json:"close_at,omitempty"`

	// Expect is the complete expected timeline. Nil skips the comparison.
	Expect []ExpectEntry `yaml:"expect,omitempty" json:"expect,omitempty"`

	// Assertions are checked against the recorded run.
	Assertions []Assertion `yaml:"assertions,omitempty" json:"assertions,omitempty"`
}

// Hash returns the content hash of the scenario declaration. Two files that
// declare the same scenario, in YAML or CUE, hash the same.
func (s *Scenario) Hash() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("hash scenario %s: %w", s.Name, err)
	}
	return trace.Hash(trace.DomainScenario, data), nil
}

// SourceSpec describes a source stream of int64 values.
type SourceSpec struct {
	// Kind is one of the Source* constants.
	Kind string `yaml:"kind" json:"kind"`

	// Values feeds of, repeat (first value), pure and timer.
	Values []int64 `yaml:"values,omitempty" json:"values,omitempty"`

	// From and To bound range as [From, To).
	From int64 `yaml:"from,omitempty" json:"from,omitempty"`
	To   int64 `yaml:"to,omitempty" json:"to,omitempty"`

	// Period is the tick interval of repeat.
	Period int64 `yaml:"period,omitempty" json:"period,omitempty"`

	// Delay is the tick at which timer emits.
	Delay int64 `yaml:"delay,omitempty" json:"delay,omitempty"`

	// Error is the failure message of fail.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	// Sources are the children of concat and mix.
	Sources []SourceSpec `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// Source kinds.
const (
	SourceOf     = "of"
	SourceRange  = "range"
	SourceRepeat = "repeat"
	SourceNever  = "never"
	SourceFail   = "fail"
	SourcePure   = "pure"
	SourceTimer  = "timer"
	SourceConcat = "concat"
	SourceMix    = "mix"
)

// OpSpec describes one pipeline stage.
type OpSpec struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op" json:"op"`

	// Fn names the function of map, filter, take_while, skip_while, fold,
	// zip and combine_latest.
	Fn string `yaml:"fn,omitempty" json:"fn,omitempty"`

	// Arg is the operand of Fn.
	Arg int64 `yaml:"arg,omitempty" json:"arg,omitempty"`

	// N is the count of take and skip.
	N int `yaml:"n,omitempty" json:"n,omitempty"`

	// Ticks is the interval of delay and throttle.
	Ticks int64 `yaml:"ticks,omitempty" json:"ticks,omitempty"`

	// With is the second stream of binary ops.
	With *SourceSpec `yaml:"with,omitempty" json:"with,omitempty"`

	// Inner is the template of flat_map and switch_map. Each outer value x
	// opens Inner with x added to every value it emits.
	Inner *SourceSpec `yaml:"inner,omitempty" json:"inner,omitempty"`

	// Limit caps the open inner streams of flat_map; 0 means unbounded.
	Limit int `yaml:"limit,omitempty" json:"limit,omitempty"`

	// Init is the initial accumulator of fold.
	Init int64 `yaml:"init,omitempty" json:"init,omitempty"`
}

// Op names.
const (
	OpMap           = "map"
	OpFilter        = "filter"
	OpTake          = "take"
	OpSkip          = "skip"
	OpTakeWhile     = "take_while"
	OpSkipWhile     = "skip_while"
	OpDistinct      = "distinct"
	OpDelay         = "delay"
	OpThrottle      = "throttle"
	OpFold          = "fold"
	OpRecover       = "recover"
	OpMerge         = "merge"
	OpZip           = "zip"
	OpCombineLatest = "combine_latest"
	OpConcat        = "concat"
	OpFlatMap       = "flat_map"
	OpSwitchMap     = "switch_map"
	OpContinueWith  = "continue_with"
	OpTakeUntil     = "take_until"
)

// ExpectEntry is one expected timeline entry: a value, a completion (Done)
// or a failure (Error).
type ExpectEntry struct {
	At    int64  `yaml:"at" json:"at"`
	Value *int64 `yaml:"value,omitempty" json:"value,omitempty"`
	Done  bool   `yaml:"done,omitempty" json:"done,omitempty"`
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Entry converts the expectation to a timeline entry.
func (e ExpectEntry) Entry() trace.Entry {
	switch {
	case e.Error != "":
		return trace.Entry{At: e.At, Kind: trace.KindFailure, Error: e.Error}
	case e.Done:
		return trace.Entry{At: e.At, Kind: trace.KindCompleted}
	default:
		var v int64
		if e.Value != nil {
			v = *e.Value
		}
		return trace.Entry{At: e.At, Kind: trace.KindValue, Value: v}
	}
}

// Assertion checks one property of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type" json:"type"`

	// Values are the expected values, in order (values).
	Values []int64 `yaml:"values,omitempty" json:"values,omitempty"`

	// Count is the expected number of values (count) or of contexts still
	// open at the end of the run (live_contexts).
	Count *int `yaml:"count,omitempty" json:"count,omitempty"`

	// Terminal is completed, failure or none (terminal).
	Terminal string `yaml:"terminal,omitempty" json:"terminal,omitempty"`

	// Max bounds the number of timeline entries (max_events).
	Max int `yaml:"max,omitempty" json:"max,omitempty"`
}

// Assertion types.
const (
	AssertValues       = "values"
	AssertCount        = "count"
	AssertTerminal     = "terminal"
	AssertLiveContexts = "live_contexts"
	AssertMaxEvents    = "max_events"
)

// Terminal states of the terminal assertion.
const (
	TerminalCompleted = "completed"
	TerminalFailure   = "failure"
	TerminalNone      = "none"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when the timeline matched and every assertion held.
	Pass bool `json:"pass"`

	// Timeline holds every delivered event in order.
	Timeline trace.Timeline `json:"timeline"`

	// LiveContexts is the number of contexts still open after the run,
	// the consumer's own included. A run that released everything it
	// derived reports 1.
	LiveContexts int `json:"live_contexts"`

	// Errors lists every mismatch. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty timeline.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Timeline: trace.Timeline{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Record appends an entry to the timeline.
func (r *Result) Record(e trace.Entry) {
	r.Timeline = append(r.Timeline, e)
}
