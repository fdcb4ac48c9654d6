package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cubist/internal/subset"
)

// SubsetsResult lists the canonical keys of every subset.
type SubsetsResult struct {
	Count int      `json:"count"`
	Keys  []string `json:"keys"`
}

// NewSubsetsCommand creates the subsets command.
func NewSubsetsCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &EnvFlags{}

	cmd := &cobra.Command{
		Use:   "subsets <catalog.cue>",
		Short: "List the canonical key of every subset",
		Long: `List the canonical artifact key of every non-empty subset of the
catalog's dimensions, in enumeration order.

Example:
  cubist subsets ./collisions.cue
  cubist subsets ./collisions.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubsets(rootOpts, flags, args[0], cmd)
		},
	}
	flags.addCatalogFlags(cmd)

	return cmd
}

func runSubsets(opts *RootOptions, flags *EnvFlags, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, flags)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err)
	}
	cat, err := loadCatalog(formatter, path, cfg.Materialize.MaxDimensions)
	if err != nil {
		return err
	}

	subs, err := subset.All(cat)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to enumerate subsets", err)
	}
	result := SubsetsResult{Count: len(subs), Keys: make([]string, len(subs))}
	for i, s := range subs {
		result.Keys[i] = s.Key()
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, key := range result.Keys {
		fmt.Fprintln(formatter.Writer, key)
	}
	return nil
}
