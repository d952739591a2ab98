package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkoosis/amalgam/internal/coverage"
)

func newCoverageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Work with Go cover profiles",
	}
	cmd.AddCommand(newCoverageReportCommand(a))
	return cmd
}

type coverageReportFlags struct {
	profile string
	opts    coverage.Options
}

// newCoverageReportCommand prints a cover profile as a markdown table.
// Flags default to the coverage block of the configuration.
func newCoverageReportCommand(a *app) *cobra.Command {
	var f coverageReportFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a cover profile as a markdown table",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			profile := a.cfg.CoverageProfile
			if flags.Changed("profile") {
				profile = f.profile
			}
			cc := a.cfg.Coverage
			opts := coverage.Options{
				SkipCovered: cc.SkipCovered,
				SkipEmpty:   cc.SkipEmpty,
				SortBy:      cc.SortBy,
				Precision:   cc.Precision,
				FailUnder:   cc.FailUnder,
				StripPrefix: cc.StripPrefix,
			}
			if flags.Changed("skip-covered") {
				opts.SkipCovered = f.opts.SkipCovered
			}
			if flags.Changed("skip-empty") {
				opts.SkipEmpty = f.opts.SkipEmpty
			}
			if flags.Changed("sort") {
				opts.SortBy = f.opts.SortBy
			}
			if flags.Changed("precision") {
				opts.Precision = f.opts.Precision
			}
			if flags.Changed("fail-under") {
				opts.FailUnder = f.opts.FailUnder
			}
			if flags.Changed("strip-prefix") {
				opts.StripPrefix = f.opts.StripPrefix
			}

			profiles, err := coverage.ParseFile(profile)
			if err != nil {
				return err
			}
			return coverage.NewReport(profiles).Markdown(a.stdout, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.profile, "profile", "", "Cover profile to read (default from config: coverage.out)")
	flags.BoolVar(&f.opts.SkipCovered, "skip-covered", false, "Omit files with full coverage")
	flags.BoolVar(&f.opts.SkipEmpty, "skip-empty", false, "Omit files with no statements")
	flags.StringVar(&f.opts.SortBy, "sort", "", "Sort rows by name, stmts, miss or cover")
	flags.IntVar(&f.opts.Precision, "precision", 0, "Digits after the decimal point in percentages")
	flags.Float64Var(&f.opts.FailUnder, "fail-under", 0, "Exit 2 when total coverage is below this percentage")
	flags.StringVar(&f.opts.StripPrefix, "strip-prefix", "", "Prefix removed from file names")
	return cmd
}
