package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

var (
	catalogPath  = filepath.Join("..", "harness", "testdata", "catalogs", "collisions.cue")
	recordsPath  = filepath.Join("..", "harness", "testdata", "records", "brooklyn.csv")
	scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// materialized returns a database path holding a finished run over the
// test records.
func materialized(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "cubist.db")
	if _, err := execute(t, "materialize", catalogPath, "--records", recordsPath, "--db", db); err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	return db
}

