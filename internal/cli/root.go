package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rtd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "rtd",
		Short:   "rtd - real-time data topic server",
		Version: fmt.Sprintf("%s (journal format %s)", ir.EngineVersion, ir.FormatVersion),
		Long: `A pull-based real-time data server: hosts subscribe to integer topics,
the server collects updates and hands them back in batches on refresh.

Feeds describe which topics exist and how their values are produced.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		// feeds
		NewValidateCommand(opts),
		NewCompileCommand(opts),
		NewRunCommand(opts),
		// conformance
		NewTestCommand(opts),
		// journal
		NewTraceCommand(opts),
		NewReplayCommand(opts),
	)

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
