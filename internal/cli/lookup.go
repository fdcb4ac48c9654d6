package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/lookup"
)

// LookupResult is a lookup answer.
type LookupResult struct {
	Key  string           `json:"key"`
	Rows []map[string]any `json:"rows"`
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &EnvFlags{}

	cmd := &cobra.Command{
		Use:   "lookup <catalog.cue> <dim=value>...",
		Short: "Look up stored aggregates",
		Long: `Answer an exact-match lookup from the stored artifacts.

The filtered dimensions select the artifact; every filter must match for
a row to be returned. Filtering on all of an artifact's dimensions
returns zero or one row.

Exit codes:
  0 - Lookup answered (possibly with no rows)
  1 - Subset not materialized, or an invalid dimension or value
  2 - Command error (bad arguments, store unavailable, etc.)

Example:
  cubist lookup ./collisions.cue borough=BRONX year=2020
  cubist lookup ./collisions.cue year=2021 --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(rootOpts, flags, args[0], args[1:], cmd)
		},
	}
	flags.addStoreFlags(cmd)

	return cmd
}

func runLookup(opts *RootOptions, flags *EnvFlags, catalogPath string, args []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts, cmd)

	filters, err := parseFilters(args)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid filter", err)
	}

	e, err := openEnv(ctx, opts, flags, formatter, catalogPath)
	if err != nil {
		return err
	}
	defer e.close()

	svc := lookup.NewService(e.cat, e.store, lookup.WithLogger(e.logger))
	res, err := svc.QueryRaw(ctx, filters)
	if err != nil {
		if cube.IsConfigError(err) {
			return formatter.Fail(ExitFailure, "lookup failed", err)
		}
		return formatter.Fail(ExitCommandError, "lookup failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(LookupResult{Key: res.Key, Rows: res.Objects()})
	}
	return outputRows(formatter, res)
}

// parseFilters parses dim=value arguments. A repeated dimension is an
// error; an empty value is kept and rejected by the lookup as null.
func parseFilters(args []string) (map[string]string, error) {
	filters := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, cube.NewConfigError("filter %q: want dim=value", arg)
		}
		if _, dup := filters[name]; dup {
			return nil, cube.NewConfigError("dimension %q given more than once", name)
		}
		filters[name] = value
	}
	return filters, nil
}

func outputRows(f *OutputFormatter, res *lookup.Result) error {
	w := f.Writer
	if len(res.Rows) == 0 {
		fmt.Fprintf(w, "No rows in %s.\n", res.Key)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := append(append([]string{}, res.Dimensions...), res.Measures...)
	header = append(header, cube.CountColumn)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))
	for _, row := range res.Rows {
		cells := make([]string, 0, len(header))
		for _, v := range row.Values {
			cells = append(cells, cube.Format(v))
		}
		for _, m := range row.Measures {
			cells = append(cells, fmt.Sprint(m))
		}
		cells = append(cells, fmt.Sprint(row.Count))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
