package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/onelane/internal/config"
)

// Validation error codes.
const (
	ErrCodeSchema     = "E001" // file violates the configuration schema
	ErrCodeUnreadable = "E002" // missing file or unsupported format
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	File      string           `json:"file"`
	Errors    []config.Problem `json:"errors,omitempty"`
	Effective *config.Config   `json:"effective,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Check a configuration file against the onelane schema without
starting anything.

CUE, YAML and JSON files are accepted. Every problem is reported with
its field path and, where known, its line. With --format json the
effective configuration (file merged over defaults) is included.

Exit codes:
  0 - Valid
  1 - Schema or consistency violations
  2 - File missing or format unsupported`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := config.Load(path)
	if err != nil {
		var loadErr *config.LoadError
		if errors.As(err, &loadErr) && len(loadErr.Problems) > 0 {
			return outputValidationErrors(formatter, path, loadErr.Problems)
		}
		return outputValidateError(formatter, ErrCodeUnreadable, err.Error(), nil)
	}

	formatter.VerboseLog("Loaded %s", path)
	return outputValidateSuccess(formatter, path, cfg)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, path string, cfg config.Config) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, File: path, Effective: &cfg})
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every schema problem.
func outputValidationErrors(formatter *OutputFormatter, path string, problems []config.Problem) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, File: path, Errors: problems},
			Error: &CLIError{
				Code:    ErrCodeSchema,
				Message: problemText(problems[0]),
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
	}

	fmt.Fprintf(formatter.Writer, "✗ %s: validation failed\n", path)
	fmt.Fprintln(formatter.Writer)

	for _, p := range problems {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", p.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", ErrCodeSchema, problemText(p))
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
}

func problemText(p config.Problem) string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}
