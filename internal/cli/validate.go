package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/harness"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one scenario file that did not load.
type ValidationError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios-dir>",
		Short: "Validate scenario files without running them",
		Long: `Load and schema-check every scenario file under a directory.

YAML (.yaml, .yml) and CUE (.cue) files are parsed, checked against the
scenario schema and validated for consistency. Scenario names must be
unique because they name golden files. Nothing is run.

Exit codes:
  0 - All scenarios valid
  1 - One or more scenarios invalid
  2 - Command error (missing directory, no scenarios)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	files, code, err := scenarioFiles(dir)
	if err != nil {
		return outputValidateError(formatter, code, err.Error())
	}

	formatter.VerboseLog("Found %d scenario file(s) in %s", len(files), dir)

	var errs []ValidationError
	seen := make(map[string]string)
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)

		scenario, err := harness.LoadScenario(file)
		if err != nil {
			errs = append(errs, toValidationError(file, err))
			continue
		}
		if prev, ok := seen[scenario.Name]; ok {
			errs = append(errs, ValidationError{
				File:    file,
				Code:    ErrCodeDuplicate,
				Message: fmt.Sprintf("duplicate scenario name %q (also in %s)", scenario.Name, prev),
			})
			continue
		}
		seen[scenario.Name] = file
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(files), errs)
	}
	return outputValidateSuccess(formatter, len(files))
}

// scenarioFiles lists the scenario files under dir. On failure it also
// returns the CLI error code to report.
func scenarioFiles(dir string) ([]string, string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, ErrCodeNotFound, fmt.Errorf("scenarios directory not found: %s", dir)
	}
	if err != nil {
		return nil, ErrCodeNotFound, fmt.Errorf("error accessing scenarios directory: %w", err)
	}
	if !info.IsDir() {
		return nil, ErrCodeNotFound, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := harness.FindScenarios(dir)
	if err != nil {
		return nil, ErrCodeGeneric, fmt.Errorf("error scanning directory: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrCodeNoScenarios, fmt.Errorf("no scenario files found in %s", dir)
	}
	return files, "", nil
}

// toValidationError keeps the harness load error code when there is one.
func toValidationError(file string, err error) ValidationError {
	var le *harness.LoadError
	if errors.As(err, &le) {
		return ValidationError{File: file, Code: le.Code, Message: le.Message}
	}
	return ValidationError{File: file, Code: ErrCodeGeneric, Message: err.Error()}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d scenario(s) valid\n", files)
	return nil
}

// outputValidateError outputs a command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every invalid scenario file.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Files:  files,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintln(formatter.Writer, err.File)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return exitErr
}
