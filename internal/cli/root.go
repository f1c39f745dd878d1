package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/duet/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose int    // -v info, -vv debug
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the duet CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "duet",
		Short: "duet - goal engine for paired audio devices",
		Long: `Run and inspect the goal engine of a dual-device audio accessory.

Scenarios drive one device against scripted collaborators on a virtual
clock, so every run is reproducible. Runs can be journaled to SQLite and
inspected later with "duet trace".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "verbose output (repeat for debug)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// logger builds the engine logger. It writes to w, normally stderr, so
// JSON output on stdout stays parseable.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	return logging.NewWriter(w, logging.Level(o.Verbose), logging.FormatText)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose > 0,
	}
}
