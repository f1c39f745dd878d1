package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/trace"
)

// Run is one journaled scenario run.
type Run struct {
	ID       string
	Seq      int64 // assigned by WriteRun
	Scenario string
	Digest   string
	Passed   bool
	Failures []string
}

// WriteRun appends run and its trace records in one transaction. The run's
// Seq is assigned from the journal's logical clock.
//
// A run whose id is already journaled is left untouched and inserted
// reports false.
func (s *Store) WriteRun(ctx context.Context, run Run, records []trace.Record) (inserted bool, err error) {
	failures, err := marshalFailures(run.Failures)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, scenario, digest, passed, failures)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.Digest,
		run.Passed,
		failures,
	)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_records
		(run_id, seq, kind, subject, activation_id, detail, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return false, fmt.Errorf("write run: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			run.ID,
			rec.Seq,
			rec.Kind,
			rec.Subject,
			rec.ActivationID,
			rec.Detail,
			rec.PayloadHash,
		); err != nil {
			return false, fmt.Errorf("write trace record %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run: commit: %w", err)
	}
	return true, nil
}

// marshalFailures stores failures as a canonical JSON array.
func marshalFailures(failures []string) (string, error) {
	if failures == nil {
		failures = []string{}
	}
	data, err := ir.MarshalCanonical(failures)
	if err != nil {
		return "", fmt.Errorf("marshal failures: %w", err)
	}
	return string(data), nil
}

func unmarshalFailures(data string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal failures: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
