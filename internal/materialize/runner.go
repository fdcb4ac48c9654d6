package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cubist/internal/aggregate"
	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/metrics"
	"github.com/roach88/cubist/internal/store"
	"github.com/roach88/cubist/internal/subset"
)

// Invalidator is notified when a run completes. Lookup caches implement it.
type Invalidator interface {
	Invalidate()
}

// Config configures a Runner.
type Config struct {
	Catalog *catalog.Catalog
	Store   store.Store

	// Workers bounds concurrent subsets. Zero means runtime.NumCPU().
	Workers int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// IDs defaults to UUIDv7Generator.
	IDs IDGenerator

	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner materializes every subset of one catalog into one store.
type Runner struct {
	cat     *catalog.Catalog
	store   store.Store
	backend string
	subsets []subset.Subset
	workers int
	logger  *slog.Logger
	ids     IDGenerator
	now     func() time.Time

	mu           sync.Mutex
	invalidators []Invalidator

	// lastHash is the snapshot of the last successful run; see RunIfChanged.
	lastHash   string
	lastSeeded bool
}

// New validates the config and enumerates the catalog's subsets.
func New(cfg Config) (*Runner, error) {
	if cfg.Catalog == nil {
		return nil, cube.NewConfigError("materialize: catalog is required")
	}
	if cfg.Store == nil {
		return nil, cube.NewConfigError("materialize: store is required")
	}
	if cfg.Workers < 0 {
		return nil, cube.NewConfigError("materialize: workers must be positive, got %d", cfg.Workers)
	}

	subsets, err := subset.All(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cat:     cfg.Catalog,
		store:   cfg.Store,
		backend: store.BackendOf(cfg.Store),
		subsets: subsets,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		ids:     cfg.IDs,
		now:     cfg.Now,
	}
	if r.workers == 0 {
		r.workers = runtime.NumCPU()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "materialize")
	if r.ids == nil {
		r.ids = UUIDv7Generator{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Subsets returns the subsets a run materializes, in enumeration order.
func (r *Runner) Subsets() []subset.Subset {
	return r.subsets
}

// AddInvalidator registers a cache to invalidate after every run.
func (r *Runner) AddInvalidator(inv Invalidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidators = append(r.invalidators, inv)
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID        string
	SnapshotHash string
	Status       store.RunStatus
	StartedAt    time.Time
	FinishedAt   time.Time

	// Records is the input size; each subset's Kept+Dropped equals it.
	Records int

	// Results has one entry per subset, in enumeration order.
	Results []store.SubsetResult

	// Skipped is set by RunIfChanged when the snapshot was already
	// materialized. No other field but SnapshotHash is set then.
	Skipped bool
}

// Failed returns the results of failed subsets.
func (s *Summary) Failed() []store.SubsetResult {
	var failed []store.SubsetResult
	for _, res := range s.Results {
		if res.Status != store.StatusOK {
			failed = append(failed, res)
		}
	}
	return failed
}

// Run materializes every subset from records.
//
// The returned error covers setup only (hashing the snapshot, starting run
// bookkeeping). Subset failures, including those caused by cancelling ctx,
// are reported in the Summary with Status failed.
func (r *Runner) Run(ctx context.Context, records []cube.Record) (*Summary, error) {
	snap, err := cube.SnapshotHash(records, r.cat.Columns())
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	return r.run(ctx, records, snap)
}

func (r *Runner) run(ctx context.Context, records []cube.Record, snap string) (*Summary, error) {
	sum := &Summary{
		RunID:        r.ids.Generate(),
		SnapshotHash: snap,
		StartedAt:    r.now(),
		Records:      len(records),
		Results:      make([]store.SubsetResult, len(r.subsets)),
	}
	logger := r.logger.With("run_id", sum.RunID)

	// Bookkeeping outlives cancellation so failed runs are still recorded.
	bookCtx := context.WithoutCancel(ctx)
	recorder, _ := r.store.(store.RunRecorder)
	if recorder != nil {
		err := recorder.BeginRun(bookCtx, store.Run{
			ID:           sum.RunID,
			SnapshotHash: snap,
			Subsets:      len(r.subsets),
			StartedAt:    sum.StartedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("materialize: begin run: %w", err)
		}
	}

	logger.Info("run started", "subsets", len(r.subsets), "records", len(records), "workers", r.workers)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, sub := range r.subsets {
		i, sub := i, sub
		g.Go(func() error {
			res := r.materialize(ctx, logger, sub, records, snap)
			sum.Results[i] = res
			metrics.MaterializeSubsetsTotal.WithLabelValues(string(res.Status)).Inc()
			if recorder != nil {
				if err := recorder.RecordSubset(bookCtx, sum.RunID, res); err != nil {
					logger.Error("record subset failed", "key", res.Key, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sum.Status = store.StatusOK
	if len(sum.Failed()) > 0 {
		sum.Status = store.StatusFailed
	}
	sum.FinishedAt = r.now()

	if recorder != nil {
		if err := recorder.FinishRun(bookCtx, sum.RunID, sum.Status, sum.FinishedAt); err != nil {
			logger.Error("finish run failed", "error", err)
		}
	}
	if sum.Status == store.StatusOK {
		r.remember(snap)
	}
	r.invalidate()

	metrics.MaterializeRunsTotal.WithLabelValues(string(sum.Status)).Inc()
	metrics.MaterializeDuration.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())

	logger.Info("run finished",
		"status", sum.Status,
		"failed", len(sum.Failed()),
		"duration", sum.FinishedAt.Sub(sum.StartedAt))
	return sum, nil
}

// materialize aggregates and publishes one subset.
func (r *Runner) materialize(ctx context.Context, logger *slog.Logger, sub subset.Subset, records []cube.Record, snap string) store.SubsetResult {
	res := store.SubsetResult{Key: sub.Key(), Status: store.StatusFailed}

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	a, stats := aggregate.Aggregate(sub, r.cat, records)
	a.SnapshotHash = snap
	res.Rows = int64(len(a.Rows))
	res.Kept = stats.Kept
	res.Dropped = stats.Dropped()

	if stats.DroppedNullMeasure > 0 {
		metrics.MaterializeRowsDropped.WithLabelValues(metrics.ReasonNullMeasure).Add(float64(stats.DroppedNullMeasure))
	}
	if n := stats.Dropped() - stats.DroppedNullMeasure; n > 0 {
		metrics.MaterializeRowsDropped.WithLabelValues(metrics.ReasonNullDimension).Add(float64(n))
	}

	if err := r.store.Put(ctx, a); err != nil {
		metrics.StoreWritesTotal.WithLabelValues(r.backend, metrics.StatusFailed).Inc()
		logger.Warn("subset failed", "key", res.Key, "error", err)
		res.Error = err.Error()
		return res
	}
	metrics.StoreWritesTotal.WithLabelValues(r.backend, metrics.StatusOK).Inc()

	res.Status = store.StatusOK
	res.ContentHash = a.ContentHash
	logger.Debug("subset materialized",
		"key", res.Key,
		"rows", res.Rows,
		"kept", res.Kept,
		"dropped", res.Dropped)
	return res
}

func (r *Runner) invalidate() {
	r.mu.Lock()
	invs := append([]Invalidator(nil), r.invalidators...)
	r.mu.Unlock()
	for _, inv := range invs {
		inv.Invalidate()
	}
}

func (r *Runner) remember(snap string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHash = snap
	r.lastSeeded = true
}
