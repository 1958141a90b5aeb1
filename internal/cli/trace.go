package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/store"
	"github.com/roach88/rill/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Scenario string
	Latest   bool
	Compare  string // run ID whose timeline is compared with the selected run
}

// RunSummary is one stored run without its timeline.
type RunSummary struct {
	ID           string `json:"id"`
	Seq          int64  `json:"seq"`
	Scenario     string `json:"scenario"`
	Pass         bool   `json:"pass"`
	LiveContexts int    `json:"live_contexts"`
	Digest       string `json:"digest"`
}

// TraceList is the output of trace without a selected run.
type TraceList struct {
	Runs []RunSummary `json:"runs"`
}

// TraceResult is the output of trace for one run.
type TraceResult struct {
	Run          RunSummary     `json:"run"`
	ScenarioHash string         `json:"scenario_hash"`
	Verified     bool           `json:"verified"`
	Errors       []string       `json:"errors,omitempty"`
	Timeline     trace.Timeline `json:"timeline"`
	Comparison   *Comparison    `json:"comparison,omitempty"`
}

// Comparison reports whether two stored runs recorded the same timeline.
type Comparison struct {
	RunID     string `json:"run_id"`
	Identical bool   `json:"identical"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored runs",
		Long: `List the runs stored in a database, or print the timeline of one.

Without --run every stored run is listed in write order, optionally
restricted to one scenario. With --run (or --scenario and --latest) the
run's timeline is printed and its stored digest is verified against the
stored events. --compare checks that another run recorded the same
timeline, as a replay of the same scenario should.

Exit codes:
  0 - Success
  1 - Stored events do not match the run's digest, or the compared runs differ
  2 - Command error (database not found, unknown run, etc.)

Example:
  rill trace --db ./runs.db
  rill trace --db ./runs.db --scenario zip --latest
  rill trace --db ./runs.db --run 0190a5c2-...
  rill trace --db ./runs.db --scenario zip --latest --compare 0190a5c2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to print")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "restrict to runs of this scenario")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "print the latest run of --scenario")
	cmd.Flags().StringVar(&opts.Compare, "compare", "", "compare the selected run's timeline with this run")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Latest && opts.Scenario == "" {
		return NewExitError(ExitCommandError, "--latest requires --scenario")
	}
	if opts.Latest && opts.RunID != "" {
		return NewExitError(ExitCommandError, "--latest and --run are mutually exclusive")
	}
	if opts.Compare != "" && opts.RunID == "" && !opts.Latest {
		return NewExitError(ExitCommandError, "--compare requires --run or --latest")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" && !opts.Latest {
		runs, err := st.ListRuns(ctx, opts.Scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		list := TraceList{Runs: make([]RunSummary, len(runs))}
		for i, r := range runs {
			list.Runs[i] = summarize(r)
		}
		if opts.Format == "json" {
			return formatter.JSON(CLIResponse{Status: "ok", Data: list})
		}
		outputTraceList(formatter.Writer, list)
		return nil
	}

	var run store.Run
	if opts.Latest {
		run, err = st.LatestRun(ctx, opts.Scenario)
	} else {
		run, err = st.ReadRun(ctx, opts.RunID)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := TraceResult{
		Run:          summarize(run),
		ScenarioHash: run.ScenarioHash,
		Verified:     true,
		Errors:       run.Errors,
		Timeline:     run.Timeline,
	}

	verifyErr := st.VerifyRun(ctx, run.ID)
	var mismatch *store.DigestMismatchError
	switch {
	case errors.As(verifyErr, &mismatch):
		result.Verified = false
	case verifyErr != nil:
		return WrapExitError(ExitCommandError, "failed to verify run", verifyErr)
	}

	if opts.Compare != "" {
		identical, err := st.CompareRuns(ctx, run.ID, opts.Compare)
		if errors.Is(err, store.ErrRunNotFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "compared run not found", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to compare runs", err)
		}
		result.Comparison = &Comparison{RunID: opts.Compare, Identical: identical}
	}
	differs := result.Comparison != nil && !result.Comparison.Identical

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		switch {
		case mismatch != nil:
			response.Status = "error"
			response.Error = &CLIError{Code: ErrCodeDigestMismatch, Message: mismatch.Error()}
		case differs:
			response.Status = "error"
			response.Error = &CLIError{
				Code:    ErrCodeRunsDiffer,
				Message: fmt.Sprintf("run %s and run %s recorded different timelines", run.ID, opts.Compare),
			}
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}
	} else {
		outputTraceText(formatter.Writer, result, opts.Verbose)
	}

	if mismatch != nil {
		return WrapExitError(ExitFailure, "digest mismatch", mismatch)
	}
	if differs {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s and run %s recorded different timelines", run.ID, opts.Compare))
	}
	return nil
}

func summarize(r store.Run) RunSummary {
	return RunSummary{
		ID:           r.ID,
		Seq:          r.Seq,
		Scenario:     r.Scenario,
		Pass:         r.Pass,
		LiveContexts: r.LiveContexts,
		Digest:       r.Digest,
	}
}

// outputTraceList prints one line per stored run.
func outputTraceList(w io.Writer, list TraceList) {
	if len(list.Runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	for _, r := range list.Runs {
		fmt.Fprintf(w, "  [%d] %s %s %s %s\n", r.Seq, r.ID, passStatus(r.Pass), r.Scenario, truncateID(r.Digest))
	}
}

// outputTraceText prints the timeline of one run.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Scenario: %s\n", result.Run.Scenario)
	fmt.Fprintf(w, "Status: %s\n", passStatus(result.Run.Pass))
	if verbose {
		fmt.Fprintf(w, "Seq: %d\n", result.Run.Seq)
		fmt.Fprintf(w, "Scenario hash: %s\n", result.ScenarioHash)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  %s\n", e)
	}
	fmt.Fprintln(w)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "=== Errors ===")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Events:        %d\n", len(result.Timeline))
	fmt.Fprintf(w, "  Live contexts: %d\n", result.Run.LiveContexts)
	if result.Verified {
		fmt.Fprintf(w, "  Digest:        %s (verified)\n", result.Run.Digest)
	} else {
		fmt.Fprintf(w, "  Digest:        %s (MISMATCH)\n", result.Run.Digest)
	}
	if c := result.Comparison; c != nil {
		if c.Identical {
			fmt.Fprintf(w, "  Compared with: %s (identical)\n", c.RunID)
		} else {
			fmt.Fprintf(w, "  Compared with: %s (DIFFERS)\n", c.RunID)
		}
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

func passStatus(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
