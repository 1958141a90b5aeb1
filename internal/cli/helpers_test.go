package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const takeTwoScenario = `
name: take_two
description: "Take two values of a repeating source"
source: { kind: repeat, values: [7], period: 2 }
ops:
  - { op: take, n: 2 }
run_until: 10
expect:
  - { at: 2, value: 7 }
  - { at: 4, value: 7 }
  - { at: 4, done: true }
`

const doubledScenario = `
name: doubled
description: "Map doubles every value"
source: { kind: of, values: [1, 2] }
ops:
  - { op: map, fn: mul, arg: 2 }
run_until: 1
assertions:
  - { type: values, values: [2, 4] }
  - { type: terminal, terminal: completed }
`

const wrongExpectScenario = `
name: wrong_expect
description: "Expects a value the pipeline never produces"
source: { kind: of, values: [1] }
run_until: 1
expect:
  - { at: 0, value: 2 }
  - { at: 0, done: true }
`

// takeTwoGolden is the golden snapshot of takeTwoScenario.
const takeTwoGolden = `{"scenario":"take_two","timeline":[{"at":2,"kind":"value","value":7},{"at":4,"kind":"value","value":7},{"at":4,"kind":"completed"}]}`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns its stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
