package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/feed"
)

// Error codes for compile output.
const (
	ErrCodeWriteFailed = "E003" // output file could not be written
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled feed with its content digest.
type CompilationResult struct {
	Feed   json.RawMessage `json:"feed"`
	Digest string          `json:"digest"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <feed.cue>",
		Short: "Compile a feed to canonical JSON",
		Long: `Compile a CUE feed file to canonical JSON.

The feed is checked against the schema and the feed rules first. The
output carries a content digest: two files that compile to the same feed
have the same digest.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, errs, err := loadFeed(path)
	if err != nil {
		return outputCompileError(formatter, loadErrorCode(err), err.Error(), nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	formatter.VerboseLog("Compiling feed %s: %d topic(s)", spec.Name, len(spec.Topics))

	data, err := spec.MarshalCanonical()
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	digest, err := spec.Digest()
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, spec, CompilationResult{Feed: data, Digest: digest}, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, spec *feed.Spec, result CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "\u2713 Compiled feed %s: %d topic(s)\n", spec.Name, len(spec.Topics))
	fmt.Fprintf(formatter.Writer, "  delay %s, interval %s\n", spec.Delay, spec.Interval)
	fmt.Fprintf(formatter.Writer, "  digest %s\n\n", result.Digest)

	for _, t := range spec.Topics {
		fmt.Fprintf(formatter.Writer, "  %d: %s", t.Key, t.Generator)
		if len(t.Args) > 0 {
			fmt.Fprintf(formatter.Writer, " %v", t.Args)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote canonical feed to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
