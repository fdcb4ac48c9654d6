package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cubist/internal/cube"
)

// BeginRun records the start of a materialization run.
func (s *SQLiteStore) BeginRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, snapshot_hash, subsets, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.SnapshotHash, run.Subsets, string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordSubset stores or replaces the outcome of one subset.
func (s *SQLiteStore) RecordSubset(ctx context.Context, runID string, r SubsetResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_subsets (run_id, key, status, row_count, kept, dropped, content_hash, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, key) DO UPDATE SET
			status = excluded.status,
			row_count = excluded.row_count,
			kept = excluded.kept,
			dropped = excluded.dropped,
			content_hash = excluded.content_hash,
			error = excluded.error
	`, runID, r.Key, string(r.Status), r.Rows, r.Kept, r.Dropped, r.ContentHash, r.Error)
	if err != nil {
		return fmt.Errorf("record subset %s: %w", r.Key, err)
	}
	return nil
}

// FinishRun sets the final status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, string(status), formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// LatestRun returns the most recently begun run, optionally filtered by
// status, with its subset results ordered by key.
func (s *SQLiteStore) LatestRun(ctx context.Context, status RunStatus) (*Run, error) {
	query := `
		SELECT id, snapshot_hash, subsets, status, started_at, COALESCE(finished_at, '')
		FROM runs
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY seq DESC LIMIT 1`

	var run Run
	var st, started, finished string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&run.ID, &run.SnapshotHash, &run.Subsets, &st, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cube.Error{Code: cube.ErrCodeNotFound, Message: "no materialization run recorded"}
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	run.Status = RunStatus(st)
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, status, row_count, kept, dropped, content_hash, error
		FROM run_subsets
		WHERE run_id = ?
		ORDER BY key COLLATE BINARY ASC
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("query run subsets: %w", err)
	}
	defer rows.Close()

	run.Results = []SubsetResult{}
	for rows.Next() {
		var r SubsetResult
		var rs string
		if err := rows.Scan(&r.Key, &rs, &r.Rows, &r.Kept, &r.Dropped, &r.ContentHash, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run subset: %w", err)
		}
		r.Status = RunStatus(rs)
		run.Results = append(run.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run subsets: %w", err)
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
