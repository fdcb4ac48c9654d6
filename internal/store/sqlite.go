package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cubist/internal/cube"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on runs(status, seq) for LatestRun
const currentSchemaVersion = 1

// SQLiteStore keeps artifacts and run history in one SQLite database.
// Uses WAL mode so readers are not blocked by a writer.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_status_seq
		ON runs(status, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Put replaces the artifact header and all its rows in one transaction.
// Any failure before commit, including cancellation, rolls back and
// returns a PARTIAL_WRITE error; the previous artifact stays visible.
func (s *SQLiteStore) Put(ctx context.Context, a *cube.Artifact) error {
	if err := checkKey(a.Key); err != nil {
		return err
	}
	dims, err := marshalStrings(a.Dimensions)
	if err != nil {
		return fmt.Errorf("put %s: %w", a.Key, err)
	}
	measures, err := marshalStrings(a.Measures)
	if err != nil {
		return fmt.Errorf("put %s: %w", a.Key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO artifacts (key, dimensions, measures, snapshot_hash, content_hash, row_count, seq)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
			dimensions = excluded.dimensions,
			measures = excluded.measures,
			snapshot_hash = excluded.snapshot_hash,
			content_hash = excluded.content_hash,
			row_count = excluded.row_count,
			seq = artifacts.seq + 1
	`, a.Key, dims, measures, a.SnapshotHash, a.ContentHash, len(a.Rows))
	if err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("write header: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM artifact_rows WHERE key = ?`, a.Key); err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("clear rows: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifact_rows (key, ordinal, dim_values, measures, count)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("prepare rows: %w", err))
	}
	defer stmt.Close()

	for i, row := range a.Rows {
		values, err := marshalValues(row.Values)
		if err != nil {
			return cube.NewPartialWriteError(a.Key, fmt.Errorf("row %d: %w", i, err))
		}
		sums, err := marshalInts(row.Measures)
		if err != nil {
			return cube.NewPartialWriteError(a.Key, fmt.Errorf("row %d: %w", i, err))
		}
		if _, err := stmt.ExecContext(ctx, a.Key, i, values, sums, row.Count); err != nil {
			return cube.NewPartialWriteError(a.Key, fmt.Errorf("row %d: %w", i, err))
		}
	}

	// Last chance to observe cancellation before the artifact becomes visible.
	if err := ctx.Err(); err != nil {
		return cube.NewPartialWriteError(a.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Get reads an artifact and verifies its content hash.
//
// The header and rows are read in one transaction so a concurrent Put of
// the same key is seen entirely or not at all.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*cube.Artifact, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("get %s: begin: %w", key, err)
	}
	defer tx.Rollback()

	a := &cube.Artifact{Key: key}
	var dims, measures string
	var rowCount int
	err = tx.QueryRowContext(ctx, `
		SELECT dimensions, measures, snapshot_hash, content_hash, row_count
		FROM artifacts
		WHERE key = ?
	`, key).Scan(&dims, &measures, &a.SnapshotHash, &a.ContentHash, &rowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cube.NewNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	if a.Dimensions, err = unmarshalStrings(dims); err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if a.Measures, err = unmarshalStrings(measures); err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT dim_values, measures, count
		FROM artifact_rows
		WHERE key = ?
		ORDER BY ordinal ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: query rows: %w", key, err)
	}
	defer rows.Close()

	a.Rows = make([]cube.Row, 0, rowCount)
	for rows.Next() {
		var values, sums string
		var row cube.Row
		if err := rows.Scan(&values, &sums, &row.Count); err != nil {
			return nil, fmt.Errorf("get %s: scan row: %w", key, err)
		}
		if row.Values, err = unmarshalValues(values); err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		if row.Measures, err = unmarshalInts(sums); err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		a.Rows = append(a.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get %s: iterate rows: %w", key, err)
	}

	if err := verify(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Keys lists stored keys in byte order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM artifacts ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

var (
	_ Store       = (*SQLiteStore)(nil)
	_ RunRecorder = (*SQLiteStore)(nil)
)
