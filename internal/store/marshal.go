package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rill/internal/trace"
)

// marshalErrors converts run errors to canonical JSON TEXT for storage.
func marshalErrors(errs []string) (string, error) {
	arr := make([]any, len(errs))
	for i, e := range errs {
		arr[i] = e
	}
	data, err := trace.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return string(data), nil
}

// unmarshalErrors parses the errors column. Returns an empty slice, not
// nil, for a run without errors.
func unmarshalErrors(data string) ([]string, error) {
	errs := []string{}
	if data == "" || data == "[]" {
		return errs, nil
	}
	if err := json.Unmarshal([]byte(data), &errs); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return errs, nil
}
