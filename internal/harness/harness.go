package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/ingest"
	"github.com/roach88/cubist/internal/lookup"
	"github.com/roach88/cubist/internal/materialize"
	"github.com/roach88/cubist/internal/store"
	"github.com/roach88/cubist/internal/testutil"
)

// epoch is the first instant of every scenario's clock.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The returned error
// covers setup failures (catalog, records, store); failed expectations
// are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	var opts []catalog.Option
	if scenario.MaxDimensions > 0 {
		opts = append(opts, catalog.WithMaxDimensions(scenario.MaxDimensions))
	}
	cat, err := catalog.Load(scenario.Catalog, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	records, report, err := loadRecords(scenario, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner, err := materialize.New(materialize.Config{
		Catalog: cat,
		Store:   st,
		Logger:  logger,
		IDs:     testutil.NewSequenceIDs(scenario.RunID),
		Now:     testutil.NewStepClock(epoch, time.Second).Now,
	})
	if err != nil {
		return nil, err
	}
	svc := lookup.NewService(cat, st, lookup.WithLogger(logger))
	runner.AddInvalidator(svc)

	summary, err := runner.Run(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize: %w", err)
	}

	result := NewResult()
	result.Summary = summary
	result.Report = report
	for _, res := range summary.Failed() {
		result.AddError(fmt.Sprintf("subset %s failed: %s", res.Key, res.Error))
	}

	keys, err := st.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		a, err := st.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		result.Artifacts = append(result.Artifacts, a)
	}

	for i, step := range scenario.Lookups {
		outcome := runLookup(ctx, svc, step)
		result.Lookups = append(result.Lookups, outcome)
		for _, msg := range checkExpect(step.Expect, outcome) {
			result.AddError(fmt.Sprintf("lookups[%d]: %s", i, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadRecords(scenario *Scenario, cat *catalog.Catalog) ([]cube.Record, *ingest.Report, error) {
	if scenario.RecordsFile != "" {
		return ingest.ReadFile(scenario.RecordsFile, cat)
	}
	return ingest.FromMaps(scenario.Records, cat)
}

func runLookup(ctx context.Context, svc *lookup.Service, step LookupStep) LookupOutcome {
	where := make(map[string]string, len(step.Where))
	for k, v := range step.Where {
		if v == nil {
			where[k] = ""
			continue
		}
		where[k] = fmt.Sprint(v)
	}

	outcome := LookupOutcome{Where: where}
	res, err := svc.QueryRaw(ctx, where)
	if err != nil {
		outcome.Error = errorCode(err)
		return outcome
	}
	outcome.Key = res.Key
	outcome.Rows = res.Objects()
	return outcome
}

func errorCode(err error) string {
	if cube.IsNotFound(err) {
		return string(cube.ErrCodeNotFound)
	}
	if code := cube.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
