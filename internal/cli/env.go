package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/config"
	"github.com/roach88/cubist/internal/store"
)

// EnvFlags override the CUBIST_* environment defaults. Zero values keep
// the environment setting.
type EnvFlags struct {
	Backend       string
	Database      string
	Dir           string
	MaxDimensions int
	LogFormat     string
}

// addCatalogFlags registers the flags every catalog-loading command takes.
func (f *EnvFlags) addCatalogFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.MaxDimensions, "max-dimensions", 0, "dimension ceiling (default $CUBIST_MAX_DIMENSIONS or 16)")
}

// addStoreFlags registers the store selection flags.
func (f *EnvFlags) addStoreFlags(cmd *cobra.Command) {
	f.addCatalogFlags(cmd)
	cmd.Flags().StringVar(&f.Backend, "store", "", "store backend: sqlite, dir or s3 (default $CUBIST_STORE_BACKEND or sqlite)")
	cmd.Flags().StringVar(&f.Database, "db", "", "path to SQLite database (default $CUBIST_DB_PATH or cubist.db)")
	cmd.Flags().StringVar(&f.Dir, "dir", "", "artifact directory for the dir backend (default $CUBIST_ARTIFACT_DIR)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts *RootOptions, flags *EnvFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.Backend != "" {
		cfg.Store.Backend = flags.Backend
	}
	if flags.Database != "" {
		cfg.Store.Path = flags.Database
	}
	if flags.Dir != "" {
		cfg.Store.Dir = flags.Dir
	}
	if flags.MaxDimensions != 0 {
		cfg.Materialize.MaxDimensions = flags.MaxDimensions
	}
	if flags.LogFormat != "" {
		cfg.Log.Format = flags.LogFormat
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCatalog loads a catalog file, reporting a missing file as a command
// error and an invalid catalog as a failure.
func loadCatalog(f *OutputFormatter, path string, maxDimensions int) (*catalog.Catalog, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, "catalog not found", err)
	}
	cat, err := catalog.Load(path, catalog.WithMaxDimensions(maxDimensions))
	if err != nil {
		return nil, f.Fail(ExitFailure, "invalid catalog", err)
	}
	f.VerboseLog("Loaded catalog %s: %d dimensions, %d subsets", path, cat.Len(), cat.SubsetCount())
	return cat, nil
}

// env is everything a store-backed command needs.
type env struct {
	cfg    *config.Config
	cat    *catalog.Catalog
	store  store.Store
	logger *slog.Logger
}

// openEnv loads the configuration and catalog and opens the store.
// The caller must call close.
func openEnv(ctx context.Context, opts *RootOptions, flags *EnvFlags, f *OutputFormatter, catalogPath string) (*env, error) {
	cfg, err := loadConfig(opts, flags)
	if err != nil {
		return nil, f.Fail(ExitCommandError, "invalid configuration", err)
	}
	logger, err := cfg.Log.NewLogger(f.GetErrWriter())
	if err != nil {
		return nil, f.Fail(ExitCommandError, "invalid configuration", err)
	}

	cat, err := loadCatalog(f, catalogPath, cfg.Materialize.MaxDimensions)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening store", "config", cfg.String())
	st, err := store.OpenBackend(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		return nil, f.Fail(ExitCommandError, "failed to open store", err)
	}
	return &env{cfg: cfg, cat: cat, store: st, logger: logger}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}

// newFormatter builds the formatter for a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// plural formats n with a singular or plural noun.
func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
