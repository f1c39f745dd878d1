package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/collab/fake"
	"github.com/roach88/duet/internal/config"
	"github.com/roach88/duet/internal/earbud"
	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/logging"
)

// ErrCodeTables is reported when behaviour loads but the goal or rule
// tables built from it are invalid.
const ErrCodeTables = "C006"

// ValidationError is one problem found by validate.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Behaviour *config.Behaviour `json:"behaviour,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <behaviour>",
		Short: "Validate a CUE behaviour file or directory",
		Long: `Validate product behaviour against the embedded schema.

The behaviour is unified with the schema, checked for concreteness and
then used to build the device's goal and rule tables, so timeouts and
profile sets that the tables reject are reported too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	b, err := config.Load(path)
	if err != nil {
		var loadErr *config.LoadError
		if errors.As(err, &loadErr) {
			if loadErr.Code == config.ErrCodeNotFound {
				return outputValidateError(formatter, loadErr.Code, loadErr.Message)
			}
			ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
			if loadErr.Pos.IsValid() {
				ve.File = loadErr.Pos.Filename()
				ve.Line = loadErr.Pos.Line()
			}
			return outputValidationErrors(formatter, []ValidationError{ve})
		}
		return outputValidateError(formatter, config.ErrCodeLoadFailed, err.Error())
	}
	formatter.VerboseLog("loaded behaviour from %s", path)

	if err := checkTables(b); err != nil {
		return outputValidationErrors(formatter, []ValidationError{{Code: ErrCodeTables, Message: err.Error()}})
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Behaviour: &b})
	}
	fmt.Fprintln(formatter.Writer, "✓ Behaviour valid")
	return nil
}

// checkTables builds a device over fake collaborators; nothing runs.
func checkTables(b config.Behaviour) error {
	loop := engine.New()
	bus := collab.NewBus(loop, logging.NewNop())
	_, err := earbud.New(loop, bus, fake.New(bus).Set(), b, earbud.WithLogger(logging.NewNop()))
	return err
}

// outputValidateError reports a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports invalid behaviour (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		_ = formatter.Error(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", e.File, e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
