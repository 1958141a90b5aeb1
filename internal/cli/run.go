package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/harness"
	"github.com/roach88/rill/internal/store"
	"github.com/roach88/rill/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// IDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs store.IDGenerator
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario     string         `json:"scenario"`
	Pass         bool           `json:"pass"`
	Timeline     trace.Timeline `json:"timeline"`
	LiveContexts int            `json:"live_contexts"`
	Digest       string         `json:"digest"`
	RunID        string         `json:"run_id,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario and print its timeline",
		Long: `Run a single scenario on the virtual clock and print every event
it delivered, with the timeline digest and the number of contexts left open.

With --db the run is also persisted and can be inspected with rill trace.

Example:
  rill run ./testdata/scenarios/repeat_take.yaml
  rill run --db ./runs.db ./testdata/scenarios/zip.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "persist the run to this SQLite database")

	return cmd
}

func runScenarioFile(opts *RunOptions, file string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		le := toValidationError(file, err)
		_ = formatter.Error(le.Code, le.Message, nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	formatter.VerboseLog("Running %s from %s", scenario.Name, file)
	result, err := harness.New(harness.WithLogger(logger)).Run(scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	digest, err := result.Timeline.Digest()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash timeline", err)
	}

	out := RunOutput{
		Scenario:     scenario.Name,
		Pass:         result.Pass,
		Timeline:     result.Timeline,
		LiveContexts: result.LiveContexts,
		Digest:       digest,
		Errors:       result.Errors,
	}

	if opts.Database != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		run, err := saveRun(ctx, st, idGenerator(opts.IDs), scenario, result)
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to persist run", err)
		}
		out.RunID = run.ID
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: out}
		if !out.Pass {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    ErrCodeTestFailed,
				Message: fmt.Sprintf("scenario %s failed", out.Scenario),
			}
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}
	} else {
		outputRunText(formatter, out)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Scenario))
	}
	return nil
}

// outputRunText prints the timeline and outcome of a run.
func outputRunText(formatter *OutputFormatter, out RunOutput) {
	w := formatter.Writer

	fmt.Fprintf(w, "Scenario: %s\n", out.Scenario)
	if out.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", out.RunID)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(out.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range out.Timeline {
		fmt.Fprintf(w, "  %s\n", e)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Digest:        %s\n", out.Digest)
	fmt.Fprintf(w, "Live contexts: %d\n", out.LiveContexts)

	if out.Pass {
		fmt.Fprintln(w, "✓ PASS")
		return
	}
	fmt.Fprintln(w, "✗ FAIL")
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
