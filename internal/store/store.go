package store

import (
	"context"
	"time"

	"github.com/roach88/cubist/internal/cube"
)

// Store persists one artifact per canonical subset key.
//
// Put replaces any prior artifact under the key. A reader sees either the
// old artifact or the new one, never a mix. Concurrent Puts to the same key
// are serialized and the last writer wins.
type Store interface {
	// Put publishes the artifact under a.Key.
	Put(ctx context.Context, a *cube.Artifact) error

	// Get returns the artifact under key, or a NOT_FOUND error.
	Get(ctx context.Context, key string) (*cube.Artifact, error)

	// Keys returns every stored key in byte order.
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// RunStatus is the state of a materialization run or of one subset in it.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusOK      RunStatus = "ok"
	StatusFailed  RunStatus = "failed"
)

// Run is the bookkeeping record of one materialization run.
type Run struct {
	ID           string
	SnapshotHash string
	Subsets      int
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	Results      []SubsetResult
}

// SubsetResult is the outcome of one subset within a run.
type SubsetResult struct {
	Key         string
	Status      RunStatus
	Rows        int64
	Kept        int64
	Dropped     int64
	ContentHash string
	Error       string
}

// RunRecorder is implemented by stores that keep run history.
type RunRecorder interface {
	BeginRun(ctx context.Context, run Run) error
	RecordSubset(ctx context.Context, runID string, result SubsetResult) error
	FinishRun(ctx context.Context, runID string, status RunStatus, finishedAt time.Time) error

	// LatestRun returns the most recently started run with the given
	// status, or with any status when status is empty. NOT_FOUND if none.
	LatestRun(ctx context.Context, status RunStatus) (*Run, error)
}
