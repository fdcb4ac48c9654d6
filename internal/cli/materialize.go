package cli

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/ingest"
	"github.com/roach88/cubist/internal/materialize"
	"github.com/roach88/cubist/internal/store"
)

// MaterializeOptions holds flags for the materialize command.
type MaterializeOptions struct {
	*RootOptions
	EnvFlags
	Records  string
	Schedule string
	Workers  int

	// IDs overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs materialize.IDGenerator
}

// MaterializeResult is the outcome of one run.
type MaterializeResult struct {
	RunID        string          `json:"run_id,omitempty"`
	SnapshotHash string          `json:"snapshot_hash"`
	Status       string          `json:"status"`
	Records      int             `json:"records"`
	Skipped      bool            `json:"skipped,omitempty"`
	Subsets      []SubsetSummary `json:"subsets,omitempty"`
}

// SubsetSummary is one subset's line in a run summary.
type SubsetSummary struct {
	Key         string `json:"key"`
	Status      string `json:"status"`
	Rows        int64  `json:"rows"`
	Kept        int64  `json:"kept"`
	Dropped     int64  `json:"dropped"`
	ContentHash string `json:"content_hash,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaterializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "materialize <catalog.cue>",
		Short: "Build and store every subset artifact",
		Long: `Aggregate the input records over every non-empty subset of the
catalog's dimensions and store one artifact per subset.

Records are read from a CSV file with a header row or a YAML list of
mappings. With --schedule the run repeats on a cron schedule, rereading
the records file each time and skipping unchanged snapshots, until
interrupted.

Exit codes:
  0 - All subsets stored
  1 - One or more subsets failed
  2 - Command error (invalid paths, store unavailable, etc.)

Example:
  cubist materialize ./collisions.cue --records ./collisions.csv
  cubist materialize ./collisions.cue --records ./collisions.csv --store dir --dir ./artifacts
  cubist materialize ./collisions.cue --records ./collisions.csv --schedule "@every 1h"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(opts, args[0], cmd)
		},
	}

	opts.addStoreFlags(cmd)
	cmd.Flags().StringVar(&opts.Records, "records", "", "path to CSV or YAML records (required)")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "cron schedule for repeated runs (default $CUBIST_SCHEDULE)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent subsets (default $CUBIST_WORKERS or one per CPU)")
	_ = cmd.MarkFlagRequired("records")

	return cmd
}

func runMaterialize(opts *MaterializeOptions, catalogPath string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(ctx, opts.RootOptions, &opts.EnvFlags, formatter, catalogPath)
	if err != nil {
		return err
	}
	defer e.close()

	workers := e.cfg.Materialize.Workers
	if opts.Workers != 0 {
		workers = opts.Workers
	}
	runner, err := materialize.New(materialize.Config{
		Catalog: e.cat,
		Store:   e.store,
		Workers: workers,
		Logger:  e.logger,
		IDs:     opts.IDs,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err)
	}

	source := recordsSource(opts.Records, e.cat, e.logger)

	schedule := e.cfg.Materialize.Schedule
	if opts.Schedule != "" {
		schedule = opts.Schedule
	}
	if schedule != "" {
		formatter.VerboseLog("Materializing %s on schedule %q", opts.Records, schedule)
		if err := runner.Schedule(ctx, schedule, source); err != nil {
			return formatter.Fail(ExitCommandError, "schedule failed", err)
		}
		return nil
	}

	records, err := source(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read records", err)
	}
	summary, err := runner.Run(ctx, records)
	if err != nil {
		return formatter.Fail(ExitCommandError, "materialization failed", err)
	}

	if err := outputSummary(formatter, summary); err != nil {
		return err
	}
	if failed := summary.Failed(); len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d subset(s) failed", len(failed), len(summary.Results)))
	}
	return nil
}

// recordsSource reads path on every call and logs data-quality warnings.
func recordsSource(path string, cat *catalog.Catalog, logger *slog.Logger) materialize.Source {
	return func(ctx context.Context) ([]cube.Record, error) {
		records, report, err := ingest.ReadFile(path, cat)
		if err != nil {
			return nil, err
		}
		if w := report.Warning(); w != nil {
			logger.Warn("data quality", "records", report.Records, "warning", w.Message, "details", w.Details)
		}
		logger.Debug("records loaded", "path", path, "records", len(records))
		return records, nil
	}
}

func summaryResult(s *materialize.Summary) MaterializeResult {
	result := MaterializeResult{
		RunID:        s.RunID,
		SnapshotHash: s.SnapshotHash,
		Status:       string(s.Status),
		Records:      s.Records,
		Skipped:      s.Skipped,
	}
	for _, r := range s.Results {
		result.Subsets = append(result.Subsets, SubsetSummary{
			Key:         r.Key,
			Status:      string(r.Status),
			Rows:        r.Rows,
			Kept:        r.Kept,
			Dropped:     r.Dropped,
			ContentHash: r.ContentHash,
			Error:       r.Error,
		})
	}
	return result
}

func outputSummary(f *OutputFormatter, s *materialize.Summary) error {
	result := summaryResult(s)
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: responseStatus(s), Data: result})
	}

	mark := "✓"
	if s.Status != store.StatusOK {
		mark = "✗"
	}
	fmt.Fprintf(f.Writer, "%s run %s %s: %s from %s\n",
		mark, result.RunID, result.Status, plural(len(result.Subsets), "subset"), plural(result.Records, "record"))

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  KEY\tSTATUS\tROWS\tKEPT\tDROPPED")
	for _, sub := range result.Subsets {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\n", sub.Key, sub.Status, sub.Rows, sub.Kept, sub.Dropped)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, sub := range result.Subsets {
		if sub.Error != "" {
			fmt.Fprintf(f.Writer, "  %s: %s\n", sub.Key, sub.Error)
		}
	}
	return nil
}

func responseStatus(s *materialize.Summary) string {
	if s.Status == store.StatusOK {
		return "ok"
	}
	return "error"
}
