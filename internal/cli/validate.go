package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cubist/internal/catalog"
)

// ValidationResult describes a valid catalog.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Dimensions []string `json:"dimensions"`
	Measures   []string `json:"measures"`
	Subsets    int      `json:"subsets"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &EnvFlags{}

	cmd := &cobra.Command{
		Use:   "validate <catalog.cue>",
		Short: "Validate a dimension catalog",
		Long: `Validate a CUE dimension catalog without materializing anything.

Checks dimension kinds and domains, measure declarations, name collisions
after normalization, and the dimension ceiling. Prints the number of
artifacts a full run would produce.

Exit codes:
  0 - Catalog is valid
  1 - Catalog is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, flags, args[0], cmd)
		},
	}
	flags.addCatalogFlags(cmd)

	return cmd
}

func runValidate(opts *RootOptions, flags *EnvFlags, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, flags)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err)
	}
	cat, err := loadCatalog(formatter, path, cfg.Materialize.MaxDimensions)
	if err != nil {
		return err
	}

	if formatter.Format == "json" {
		return formatter.Success(validationResult(cat))
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Catalog valid: %s, %s, %s\n",
		plural(cat.Len(), "dimension"), plural(len(cat.Measures()), "measure"), plural(cat.SubsetCount(), "subset"))
	for _, d := range cat.Dimensions() {
		fmt.Fprintf(w, "  %-20s %s\n", d.Name, describeDimension(d))
	}
	return nil
}

func validationResult(cat *catalog.Catalog) ValidationResult {
	return ValidationResult{
		Valid:      true,
		Dimensions: cat.Names(),
		Measures:   cat.MeasureNames(),
		Subsets:    cat.SubsetCount(),
	}
}

func describeDimension(d catalog.Dimension) string {
	desc := string(d.Kind)
	switch {
	case len(d.Values) > 0:
		desc += fmt.Sprintf(" (%s)", plural(len(d.Values), "value"))
	case d.Range != nil:
		desc += fmt.Sprintf(" [%d, %d]", d.Range.Min, d.Range.Max)
	}
	if d.Nullable {
		desc += ", nullable"
	}
	return desc
}
