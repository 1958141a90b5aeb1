package trace

import (
	"encoding/json"
	"fmt"
)

// Entry kinds.
const (
	KindValue     = "value"
	KindFailure   = "failure"
	KindCompleted = "completed"
)

// Entry is one delivered event of a recorded timeline. At is in virtual
// ticks since the run started.
type Entry struct {
	At    int64  `json:"at"`
	Kind  string `json:"kind"`
	Value int64  `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// CanonicalValue implements Canonical. Value is always present for value
// entries, even when zero, and error only for failures.
func (e Entry) CanonicalValue() any {
	obj := map[string]any{
		"at":   e.At,
		"kind": e.Kind,
	}
	switch e.Kind {
	case KindValue:
		obj["value"] = e.Value
	case KindFailure:
		obj["error"] = e.Error
	}
	return obj
}

// String formats the entry for text output.
func (e Entry) String() string {
	switch e.Kind {
	case KindValue:
		return fmt.Sprintf("t=%d value %d", e.At, e.Value)
	case KindFailure:
		return fmt.Sprintf("t=%d failure %q", e.At, e.Error)
	default:
		return fmt.Sprintf("t=%d %s", e.At, e.Kind)
	}
}

// Timeline is an ordered list of recorded entries.
type Timeline []Entry

// Encode returns the canonical JSON array of the timeline.
func (t Timeline) Encode() ([]byte, error) {
	arr := make([]any, len(t))
	for i, e := range t {
		arr[i] = e
	}
	return MarshalCanonical(arr)
}

// Digest returns the content hash of the encoded timeline.
func (t Timeline) Digest() (string, error) {
	data, err := t.Encode()
	if err != nil {
		return "", err
	}
	return Hash(DomainTimeline, data), nil
}

// Values returns the values of the value entries in order.
func (t Timeline) Values() []int64 {
	var out []int64
	for _, e := range t {
		if e.Kind == KindValue {
			out = append(out, e.Value)
		}
	}
	return out
}

// Terminal returns the last entry if it is terminal.
func (t Timeline) Terminal() (Entry, bool) {
	if n := len(t); n > 0 && t[n-1].Kind != KindValue {
		return t[n-1], true
	}
	return Entry{}, false
}

// Decode parses a timeline previously produced by Encode.
func Decode(data []byte) (Timeline, error) {
	var t Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	for i, e := range t {
		switch e.Kind {
		case KindValue, KindFailure, KindCompleted:
		default:
			return nil, fmt.Errorf("decode timeline: entry %d: unknown kind %q", i, e.Kind)
		}
	}
	return t, nil
}
