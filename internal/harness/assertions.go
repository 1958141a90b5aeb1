package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rill/internal/trace"
)

// AssertionError is returned when an assertion fails. It carries the
// recorded timeline for debugging context.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Timeline trace.Timeline // Full timeline for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Timeline) > 0 {
		fmt.Fprintf(&buf, "\nFull timeline:\n")
		for i, entry := range e.Timeline {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, entry)
		}
	}

	return buf.String()
}

// assertValues checks the delivered values, in order.
func assertValues(result *Result, a Assertion) error {
	got := result.Timeline.Values()
	if slices.Equal(got, a.Values) {
		return nil
	}
	return &AssertionError{
		Type:     AssertValues,
		Expected: fmt.Sprintf("values %v", a.Values),
		Actual:   fmt.Sprintf("values %v", got),
		Timeline: result.Timeline,
	}
}

// assertCount checks the number of delivered values.
func assertCount(result *Result, a Assertion) error {
	got := len(result.Timeline.Values())
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%d values", *a.Count),
		Actual:   fmt.Sprintf("%d values", got),
		Timeline: result.Timeline,
	}
}

// assertTerminal checks how the run ended.
func assertTerminal(result *Result, a Assertion) error {
	got := TerminalNone
	if e, ok := result.Timeline.Terminal(); ok {
		got = e.Kind
	}
	if got == a.Terminal {
		return nil
	}
	return &AssertionError{
		Type:     AssertTerminal,
		Expected: fmt.Sprintf("terminal %s", a.Terminal),
		Actual:   fmt.Sprintf("terminal %s", got),
		Timeline: result.Timeline,
	}
}

// assertLiveContexts checks the number of contexts still open after the
// run. Every derived context released gives 1, the consumer's own.
func assertLiveContexts(result *Result, a Assertion) error {
	if result.LiveContexts == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertLiveContexts,
		Expected: fmt.Sprintf("%d live contexts", *a.Count),
		Actual:   fmt.Sprintf("%d live contexts", result.LiveContexts),
	}
}

// assertMaxEvents bounds the length of the timeline.
func assertMaxEvents(result *Result, a Assertion) error {
	if len(result.Timeline) <= a.Max {
		return nil
	}
	return &AssertionError{
		Type:     AssertMaxEvents,
		Expected: fmt.Sprintf("at most %d events", a.Max),
		Actual:   fmt.Sprintf("%d events", len(result.Timeline)),
		Timeline: result.Timeline,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertValues:
			err = assertValues(result, a)
		case AssertCount, AssertLiveContexts:
			if a.Count == nil {
				err = fmt.Errorf("assertion[%d]: %s requires count", i, a.Type)
			} else if a.Type == AssertCount {
				err = assertCount(result, a)
			} else {
				err = assertLiveContexts(result, a)
			}
		case AssertTerminal:
			err = assertTerminal(result, a)
		case AssertMaxEvents:
			err = assertMaxEvents(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
