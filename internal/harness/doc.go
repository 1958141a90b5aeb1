// Package harness runs declarative stream scenarios on a virtual executor
// and checks what they deliver.
//
// A scenario builds one pipeline over int64 values from a source and a list
// of ops, runs it for a number of virtual ticks and compares the recorded
// timeline with expectations and assertions.
//
// # Scenario Format
//
// Scenarios are YAML or CUE files with the following structure:
//
//	name: delayed_take
//	description: "Take closes the repeating source after three values"
//	source:
//	  kind: repeat
//	  values: [7]
//	  period: 2
//	ops:
//	  - op: take
//	    n: 3
//	  - op: delay
//	    ticks: 1
//	run_until: 10
//	expect:
//	  - { at: 3, value: 7 }
//	  - { at: 5, value: 7 }
//	  - { at: 7, value: 7 }
//	  - { at: 7, done: true }
//	assertions:
//	  - type: live_contexts
//	    count: 1
//
// Every file is checked against an embedded CUE schema before it runs, so
// a misspelled op or a repeat without a period is reported at load time.
//
// # Assertion Types
//
//   - values: the delivered values, in order
//   - count: the number of delivered values
//   - terminal: completed, failure or none
//   - live_contexts: contexts still open after the run, the consumer's own
//     included
//   - max_events: an upper bound on the timeline length
//
// # Deterministic Testing
//
// Each run gets a fresh VirtualExecutor, so timelines are identical across
// runs and can be compared against golden files:
//
//	result, err := harness.RunWithGolden(t, scenario)
//
// Golden files hold the canonical JSON of the timeline (see package trace).
package harness
