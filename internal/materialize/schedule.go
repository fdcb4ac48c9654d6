package materialize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/metrics"
	"github.com/roach88/cubist/internal/store"
)

// Source loads the current input snapshot.
type Source func(ctx context.Context) ([]cube.Record, error)

// RunIfChanged runs only when records differ from the snapshot of the last
// successful run. The first call seeds that snapshot from the store's run
// history when the store keeps one.
func (r *Runner) RunIfChanged(ctx context.Context, records []cube.Record) (*Summary, error) {
	snap, err := cube.SnapshotHash(records, r.cat.Columns())
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}

	last, err := r.lastSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if last == snap {
		r.logger.Info("snapshot unchanged, skipping run", "snapshot_hash", snap)
		metrics.MaterializeRunsTotal.WithLabelValues(metrics.StatusSkipped).Inc()
		return &Summary{SnapshotHash: snap, Skipped: true}, nil
	}
	return r.run(ctx, records, snap)
}

func (r *Runner) lastSnapshot(ctx context.Context) (string, error) {
	r.mu.Lock()
	seeded, last := r.lastSeeded, r.lastHash
	r.mu.Unlock()
	if seeded {
		return last, nil
	}

	recorder, ok := r.store.(store.RunRecorder)
	if !ok {
		return "", nil
	}
	run, err := recorder.LatestRun(ctx, store.StatusOK)
	if cube.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("materialize: latest run: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastSeeded {
		r.lastHash = run.SnapshotHash
		r.lastSeeded = true
	}
	return r.lastHash, nil
}

// ValidateSchedule reports whether spec is a schedule Schedule accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return cube.NewConfigError("invalid schedule %q: %v", spec, err)
	}
	return nil
}

// Schedule rematerializes on a cron schedule until ctx is done.
//
// spec uses the standard five-field syntax or a descriptor such as
// "@hourly" or "@every 10m". Each tick loads records from source and calls
// RunIfChanged. Ticks never overlap; a tick that fires while the previous
// one is still running is skipped.
func (r *Runner) Schedule(ctx context.Context, spec string, source Source) error {
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc(spec, func() {
		records, err := source(ctx)
		if err != nil {
			r.logger.Error("load records failed", "error", err)
			return
		}
		if _, err := r.RunIfChanged(ctx, records); err != nil {
			r.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return cube.NewConfigError("invalid schedule %q: %v", spec, err)
	}

	r.logger.Info("schedule started", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("schedule stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
