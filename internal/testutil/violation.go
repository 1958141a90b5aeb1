// Package testutil holds helpers shared by tests across the module.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/sched"
)

// RequireViolation runs fn and fails the test unless it panics with a
// *sched.ViolationError carrying code.
func RequireViolation(t testing.TB, code sched.ViolationCode, fn func()) {
	t.Helper()
	r := capturePanic(fn)
	require.NotNil(t, r, "expected a %s violation, got none", code)
	require.True(t, sched.IsViolation(r), "panic value %v is not a violation", r)
	assert.Equal(t, code, sched.CodeOf(r))
}

// RequireNoViolation runs fn and fails the test if it panics.
func RequireNoViolation(t testing.TB, fn func()) {
	t.Helper()
	r := capturePanic(fn)
	require.Nil(t, r, "unexpected panic: %v", r)
}

func capturePanic(fn func()) (recovered any) {
	defer func() { recovered = recover() }()
	fn()
	return nil
}
