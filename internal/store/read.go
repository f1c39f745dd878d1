package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/duet/internal/trace"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		failures string
	)
	if err := row.Scan(&run.ID, &run.Seq, &run.Scenario, &run.Digest, &run.Passed, &failures); err != nil {
		return Run{}, err
	}
	f, err := unmarshalFailures(failures)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.Failures = f
	return run, nil
}

// ReadRuns returns every journaled run in journal order.
//
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, scenario, digest, passed, failures
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, seq, scenario, digest, passed, failures
		FROM runs
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recently journaled run of scenario, or
// ErrNotFound.
func (s *Store) LatestRun(ctx context.Context, scenario string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, seq, scenario, digest, passed, failures
		FROM runs
		WHERE scenario = ?
		ORDER BY seq DESC
		LIMIT 1
	`, scenario))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no runs of %q", ErrNotFound, scenario)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read latest run of %q: %w", scenario, err)
	}
	return run, nil
}

// ReadRecords returns the trace of a run in seq order.
//
// Returns an empty slice (not nil) if the run has no records.
func (s *Store) ReadRecords(ctx context.Context, runID string) ([]trace.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, subject, activation_id, detail, payload_hash
		FROM trace_records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace records: %w", err)
	}
	defer rows.Close()

	records := []trace.Record{}
	for rows.Next() {
		var rec trace.Record
		if err := rows.Scan(&rec.Seq, &rec.Kind, &rec.Subject, &rec.ActivationID, &rec.Detail, &rec.PayloadHash); err != nil {
			return nil, fmt.Errorf("scan trace record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace records: %w", err)
	}
	return records, nil
}

// ReadRecordsOfKind filters ReadRecords by record kind.
func (s *Store) ReadRecordsOfKind(ctx context.Context, runID, kind string) ([]trace.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, subject, activation_id, detail, payload_hash
		FROM trace_records
		WHERE run_id = ? AND kind = ?
		ORDER BY seq ASC
	`, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("query trace records: %w", err)
	}
	defer rows.Close()

	records := []trace.Record{}
	for rows.Next() {
		var rec trace.Record
		if err := rows.Scan(&rec.Seq, &rec.Kind, &rec.Subject, &rec.ActivationID, &rec.Detail, &rec.PayloadHash); err != nil {
			return nil, fmt.Errorf("scan trace record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace records: %w", err)
	}
	return records, nil
}

// Verify recomputes the digest of a run's stored trace and compares it to
// the digest recorded with the run.
func (s *Store) Verify(ctx context.Context, runID string) error {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return err
	}
	records, err := s.ReadRecords(ctx, runID)
	if err != nil {
		return err
	}
	got, err := trace.Digest(records)
	if err != nil {
		return fmt.Errorf("verify run %s: %w", runID, err)
	}
	if got != run.Digest {
		return fmt.Errorf("verify run %s: digest mismatch: stored %s, recomputed %s", runID, run.Digest, got)
	}
	return nil
}
