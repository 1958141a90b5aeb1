package harness

import (
	"errors"
	"fmt"
)

// DefaultMaxEvents bounds the timeline of one run unless WithMaxEvents says
// otherwise.
const DefaultMaxEvents = 10000

// EventQuota counts the events delivered to a run and enforces a limit.
//
// A repeat source run for a long virtual time can deliver without bound;
// the quota turns that into a scenario error instead of a hung test.
type EventQuota struct {
	limit   int
	current int
}

// NewEventQuota creates a quota allowing limit events.
func NewEventQuota(limit int) *EventQuota {
	return &EventQuota{limit: limit}
}

// Check counts one event and returns EventsExceededError once the count
// goes past the limit.
func (q *EventQuota) Check(scenario string) error {
	q.current++
	if q.current > q.limit {
		return &EventsExceededError{Scenario: scenario, Events: q.current, Limit: q.limit}
	}
	return nil
}

// Current returns the number of events counted so far.
func (q *EventQuota) Current() int {
	return q.current
}

// Limit returns the configured limit.
func (q *EventQuota) Limit() int {
	return q.limit
}

// EventsExceededError reports a run cut short by its event quota.
type EventsExceededError struct {
	Scenario string
	Events   int
	Limit    int
}

func (e *EventsExceededError) Error() string {
	return fmt.Sprintf("scenario %s exceeded event quota: %d events > %d limit", e.Scenario, e.Events, e.Limit)
}

// IsEventsExceededError reports whether err is an EventsExceededError.
func IsEventsExceededError(err error) bool {
	var ee *EventsExceededError
	return errors.As(err, &ee)
}
