package cli

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cubist/internal/lookup"
	"github.com/roach88/cubist/internal/materialize"
	"github.com/roach88/cubist/internal/metrics"
	"github.com/roach88/cubist/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	EnvFlags
	Listen   string
	Records  string
	Schedule string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <catalog.cue>",
		Short: "Serve lookups over HTTP",
		Long: `Start the read-only HTTP lookup API.

Endpoints:
  GET /v1/lookup?dim=value...   exact-match lookup
  GET /v1/artifacts             stored artifact keys
  GET /v1/artifacts/:key        one artifact
  GET /metrics                  Prometheus metrics
  GET /healthz                  liveness

With --records and --schedule the server also rematerializes on the
schedule; lookups see each run's artifacts once it finishes.

Example:
  cubist serve ./collisions.cue --listen :8080
  cubist serve ./collisions.cue --records ./collisions.csv --schedule "@hourly"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	opts.addStoreFlags(cmd)
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default $CUBIST_LISTEN_ADDR or :8080)")
	cmd.Flags().StringVar(&opts.Records, "records", "", "records to rematerialize on --schedule")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "cron schedule for rematerialization (default $CUBIST_SCHEDULE)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "log format, text or json (default $CUBIST_LOG_FORMAT or json)")

	return cmd
}

func runServe(opts *ServeOptions, catalogPath string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.LogFormat == "" && os.Getenv("CUBIST_LOG_FORMAT") == "" {
		opts.LogFormat = "json"
	}
	e, err := openEnv(ctx, opts.RootOptions, &opts.EnvFlags, formatter, catalogPath)
	if err != nil {
		return err
	}
	defer e.close()

	schedule := e.cfg.Materialize.Schedule
	if opts.Schedule != "" {
		schedule = opts.Schedule
	}
	if schedule != "" && opts.Records == "" {
		return NewExitError(ExitCommandError, "--schedule requires --records")
	}
	listen := e.cfg.Server.ListenAddr
	if opts.Listen != "" {
		listen = opts.Listen
	}

	var runner *materialize.Runner
	if schedule != "" {
		if err := materialize.ValidateSchedule(schedule); err != nil {
			return formatter.Fail(ExitFailure, "invalid schedule", err)
		}
		runner, err = materialize.New(materialize.Config{
			Catalog: e.cat,
			Store:   e.store,
			Workers: e.cfg.Materialize.Workers,
			Logger:  e.logger,
		})
		if err != nil {
			return formatter.Fail(ExitCommandError, "invalid configuration", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	svc := lookup.NewService(e.cat, e.store, lookup.WithLogger(e.logger))
	srv := server.New(server.Config{
		Lookup:          svc,
		Store:           e.store,
		Registry:        metrics.NewRegistry(),
		Logger:          e.logger,
		ListenAddr:      listen,
		ReadTimeout:     e.cfg.Server.ReadTimeout,
		WriteTimeout:    e.cfg.Server.WriteTimeout,
		ShutdownTimeout: e.cfg.Server.ShutdownTimeout,
	})

	// Everything that can fail is built before the server starts listening.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	if runner != nil {
		runner.AddInvalidator(svc)
		source := recordsSource(opts.Records, e.cat, e.logger)
		g.Go(func() error {
			return runner.Schedule(ctx, schedule, source)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}
