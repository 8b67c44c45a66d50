package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/feed"
)

// Error codes for failures before validation can run.
const (
	ErrCodeGeneric      = "E001" // unclassified failure
	ErrCodeFileNotFound = "E002" // feed file does not exist
	ErrCodeSchema       = "E200" // feed does not satisfy the feed schema
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                   `json:"valid"`
	Feed   string                 `json:"feed,omitempty"`
	Topics int                    `json:"topics,omitempty"`
	Errors []feed.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <feed.cue>",
		Short: "Validate a feed file",
		Long: `Validate a CUE feed file.

Checks the file against the feed schema, then applies the feed rules
(unique topic keys, generator parameters, durations). All rule
violations are reported, not just the first.`,
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
	formatter := newFormatter(opts, cmd)

	spec, errs, err := loadFeed(path)
	if err != nil {
		return outputValidateError(formatter, loadErrorCode(err), err.Error(), nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	formatter.VerboseLog("Validated feed %s: %d topic(s)", spec.Name, len(spec.Topics))
	return outputValidateSuccess(formatter, spec)
}

// loadFeed compiles and validates a feed file. Schema violations are
// returned as validation errors; err is set only when the file cannot be
// read or parsed.
func loadFeed(path string) (*feed.Spec, []feed.ValidationError, error) {
	spec, err := feed.LoadFile(path)
	if err != nil {
		var cErr *feed.CompileError
		if errors.As(err, &cErr) {
			line := 0
			if cErr.Pos.IsValid() {
				line = cErr.Pos.Line()
			}
			return nil, []feed.ValidationError{{
				Field:   cErr.Field,
				Message: cErr.Message,
				Code:    ErrCodeSchema,
				Line:    line,
			}}, nil
		}
		return nil, nil, err
	}
	if errs := feed.Validate(spec); len(errs) > 0 {
		return spec, errs, nil
	}
	return spec, nil, nil
}

func loadErrorCode(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrCodeFileNotFound
	}
	return ErrCodeGeneric
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, spec *feed.Spec) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{
			Valid:  true,
			Feed:   spec.Name,
			Topics: len(spec.Topics),
		})
	}

	fmt.Fprintf(formatter.Writer, "\u2713 Feed %s valid (%d topics)\n", spec.Name, len(spec.Topics))
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []feed.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failed
}
