package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/duet/internal/store"
	"github.com/roach88/duet/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal  string
	RunID    string
	Scenario string // latest run of this scenario
	Kind     string // optional - filter to one record kind
}

// RunSummary is one journaled run in listings.
type RunSummary struct {
	ID       string   `json:"id"`
	Seq      int64    `json:"seq"`
	Scenario string   `json:"scenario"`
	Passed   bool     `json:"passed"`
	Digest   string   `json:"digest"`
	Failures []string `json:"failures,omitempty"`
}

// TraceResult holds one run and its records.
type TraceResult struct {
	Run      RunSummary     `json:"run"`
	Verified bool           `json:"verified"`
	Records  []trace.Record `json:"records"`
	Stats    TraceStats     `json:"stats"`
}

// TraceStats counts records per kind.
type TraceStats struct {
	TotalRecords int            `json:"total_records"`
	ByKind       map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect the trace journal",
		Long: `Inspect runs recorded with "duet run --journal".

Without --run or --scenario every journaled run is listed in journal
order. With either, the run's records are printed and its digest is
recomputed and checked against the one journaled.

Examples:
  duet trace --journal ./duet.db
  duet trace --journal ./duet.db --run 01927c4e-...
  duet trace --journal ./duet.db --scenario pair_timeout --kind goal.completed
  duet trace --journal ./duet.db --scenario peer_loss --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite trace journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "show the latest run of this scenario")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter records to one kind (e.g. goal.completed)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.RunID != "" && opts.Scenario != "" {
		return NewExitError(ExitCommandError, "--run and --scenario are mutually exclusive")
	}

	// Opening creates the database, which a read-only command must not do.
	if _, err := os.Stat(opts.Journal); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.RunID == "" && opts.Scenario == "" {
		return listRuns(ctx, st, opts, cmd)
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx, opts.Scenario)
	}
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, "run not found")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	all, err := st.ReadRecords(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}
	records := all
	if opts.Kind != "" {
		if records, err = st.ReadRecordsOfKind(ctx, run.ID, opts.Kind); err != nil {
			return WrapExitError(ExitCommandError, "failed to read records", err)
		}
	}
	if records == nil {
		records = []trace.Record{}
	}

	verifyErr := st.Verify(ctx, run.ID)
	result := TraceResult{
		Run:      summarize(run),
		Verified: verifyErr == nil,
		Records:  records,
		Stats:    traceStats(all),
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{Status: "ok", Data: result, RunID: run.ID}); err != nil {
			return err
		}
	} else {
		outputTraceText(cmd.OutOrStdout(), result, opts.Verbose > 0)
	}

	if verifyErr != nil {
		return WrapExitError(ExitFailure, "journal verification failed", verifyErr)
	}
	return nil
}

func listRuns(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = summarize(r)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: summaries})
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs journaled.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%4d  %s  %-28s %s\n", s.Seq, passMark(s.Passed), s.Scenario, s.ID)
	}
	return nil
}

func summarize(r store.Run) RunSummary {
	return RunSummary{
		ID:       r.ID,
		Seq:      r.Seq,
		Scenario: r.Scenario,
		Passed:   r.Passed,
		Digest:   r.Digest,
		Failures: r.Failures,
	}
}

func traceStats(records []trace.Record) TraceStats {
	stats := TraceStats{TotalRecords: len(records), ByKind: map[string]int{}}
	for _, rec := range records {
		stats.ByKind[rec.Kind]++
	}
	return stats
}

// outputTraceText prints the run header, its records and per-kind counts.
// Verbose output adds activation ids.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Run %s (#%d): %s %s\n", result.Run.ID, result.Run.Seq, result.Run.Scenario, passWord(result.Run.Passed))
	fmt.Fprintf(w, "Digest: %s (%s)\n", result.Run.Digest, verifiedWord(result.Verified))
	for _, f := range result.Run.Failures {
		fmt.Fprintf(w, "  FAIL %s\n", f)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Records ===")
	if len(result.Records) == 0 {
		fmt.Fprintln(w, "  (no records)")
	}
	for _, rec := range result.Records {
		fmt.Fprintf(w, "  [%d] %s\n", rec.Seq, rec.String())
		if verbose && rec.ActivationID != "" {
			fmt.Fprintf(w, "       activation: %s\n", rec.ActivationID)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Records: %d\n", result.Stats.TotalRecords)
	for _, kind := range []string{
		trace.KindActivated, trace.KindQueued, trace.KindDropped, trace.KindCancelRequested,
		trace.KindCompleted, trace.KindCancelled, trace.KindState, trace.KindMessage, trace.KindNotification,
	} {
		if n := result.Stats.ByKind[kind]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", kind+":", n)
		}
	}
}

func passMark(passed bool) string {
	if passed {
		return "✓"
	}
	return "✗"
}

func passWord(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func verifiedWord(ok bool) string {
	if ok {
		return "verified"
	}
	return "MISMATCH"
}
