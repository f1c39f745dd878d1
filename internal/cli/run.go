package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/harness"
	"github.com/roach88/duet/internal/metrics"
	"github.com/roach88/duet/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal   string
	Config    string
	ShowTrace bool
	Metrics   bool

	// RunIDs allows overriding the journal run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs goals.IDGenerator
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario string   `json:"scenario"`
	Pass     bool     `json:"pass"`
	State    string   `json:"state"`
	Messages []string `json:"messages"`
	Failures []string `json:"failures,omitempty"`
	Digest   string   `json:"digest"`
	Trace    []string `json:"trace,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Execute one scenario",
		Long: `Execute a scenario file and print the messages the application client
received.

With --journal the run and its trace are appended to a SQLite journal
(created if it doesn't exist). With --metrics the goal and lifecycle
metrics of the run are printed in Prometheus text format.

Example:
  duet run scenarios/happy_path.yaml
  duet run scenarios/pair_timeout.yaml --journal ./duet.db --trace
  duet run scenarios/peer_loss.yaml --config behaviour.cue --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite trace journal")
	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE behaviour overriding the scenario's")
	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "print the full trace")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print run metrics in Prometheus text format")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if opts.Config != "" {
		scenario.Config = opts.Config
	}

	runOpts := []harness.Option{harness.WithLogger(opts.logger(cmd.ErrOrStderr()))}

	var registry *prometheus.Registry
	if opts.Metrics {
		registry = prometheus.NewRegistry()
		collector, err := metrics.NewCollector(registry)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		runOpts = append(runOpts, harness.WithObserver(collector), harness.WithListener(collector))
	}

	formatter.VerboseLog("running scenario %s", scenario.Name)
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario could not run", err)
	}

	var runID string
	if opts.Journal != "" {
		if runID, err = journalRun(cmd.Context(), opts, result); err != nil {
			return err
		}
		formatter.VerboseLog("journaled run %s to %s", runID, opts.Journal)
	}

	out := RunOutput{
		Scenario: result.Scenario,
		Pass:     result.Pass,
		State:    string(result.State),
		Messages: result.Messages,
		Failures: result.Failures,
		Digest:   result.Digest,
	}
	if opts.ShowTrace {
		for _, rec := range result.Trace {
			out.Trace = append(out.Trace, rec.String())
		}
	}

	if opts.Format == "json" {
		status := "ok"
		if !result.Pass {
			status = "error"
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{Status: status, Data: out, RunID: runID}); err != nil {
			return err
		}
	} else {
		writeRunText(cmd.OutOrStdout(), out, runID)
	}

	if registry != nil {
		if err := writeMetrics(cmd.OutOrStdout(), registry); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", result.Scenario))
	}
	return nil
}

func writeRunText(w io.Writer, out RunOutput, runID string) {
	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (final state %s)\n", mark, out.Scenario, out.State)

	fmt.Fprintln(w, "Messages:")
	for _, m := range out.Messages {
		fmt.Fprintf(w, "  %s\n", m)
	}
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  FAIL %s\n", f)
	}
	if len(out.Trace) > 0 {
		fmt.Fprintln(w, "Trace:")
		for i, line := range out.Trace {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, line)
		}
	}
	fmt.Fprintf(w, "Digest: %s\n", out.Digest)
	if runID != "" {
		fmt.Fprintf(w, "Run: %s\n", runID)
	}
}

// journalRun writes the result to the journal and returns the run id.
func journalRun(ctx context.Context, opts *RunOptions, result *harness.Result) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ids := opts.RunIDs
	if ids == nil {
		ids = goals.UUIDv7Generator{}
	}

	st, err := store.Open(opts.Journal)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	run := store.Run{
		ID:       ids.Generate(),
		Scenario: result.Scenario,
		Digest:   result.Digest,
		Passed:   result.Pass,
		Failures: result.Failures,
	}
	if _, err := st.WriteRun(ctx, run, result.Trace); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to write journal", err)
	}
	return run.ID, nil
}

// writeMetrics prints every gathered family in the text exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
