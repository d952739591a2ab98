package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dkoosis/amalgam/internal/target"
)

// newTargetCommand returns the shortcut command for one built-in target,
// such as `amalgam lint`.
func newTargetCommand(a *app, name string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   name,
		Short: targetShort(name),
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTargets(cmd.Context(), dir, name)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "Run the steps in this directory")
	return cmd
}

func targetShort(name string) string {
	switch name {
	case target.Lint:
		return "Check and reformat templates and source"
	case target.Test:
		return "Run the test suite under coverage"
	case target.TestCoverage:
		return "Print the coverage report as markdown"
	}
	return "Run the " + name + " target"
}

func newRunCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "run <target>...",
		Short: "Run targets in order, stopping at the first failing step",
		Example: `  amalgam run lint test
  amalgam run test test-coverage --ci`,
		Args: args(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, names []string) error {
			return a.runTargets(cmd.Context(), dir, names...)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "Run the steps in this directory")
	return cmd
}

// runTargets runs names with the configured toolchain. With --json the
// step output streams to stderr and stdout carries only the report.
func (a *app) runTargets(ctx context.Context, dir string, names ...string) error {
	reg, err := target.Standard(a.cfg)
	if err != nil {
		return usage(err)
	}

	out := a.stdout
	if a.flags.json {
		out = a.stderr
	}
	runner := target.NewRunner(reg, a.logger,
		target.WithOutput(out),
		target.WithStream(a.streamOutput()),
		target.WithDir(dir),
		target.WithHistory(a.history),
	)

	report, runErr := runner.Run(ctx, names...)
	if report != nil && a.flags.json {
		data, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, string(data))
	}
	return runErr
}

type listEntry struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Steps       []listStep `json:"steps"`
}

type listStep struct {
	Label   string      `json:"label"`
	Command string      `json:"command"`
	Kind    target.Kind `json:"kind"`
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the targets of the configured toolchain and their steps",
		Args:  args(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			reg, err := target.Standard(a.cfg)
			if err != nil {
				return usage(err)
			}
			entries := make([]listEntry, 0, len(reg.Names()))
			for _, name := range reg.Names() {
				t, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				e := listEntry{Name: t.Name, Description: t.Description}
				for _, s := range t.Steps {
					e.Steps = append(e.Steps, listStep{Label: s.Label, Command: s.Command(), Kind: s.Kind})
				}
				entries = append(entries, e)
			}

			if a.flags.json {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}

			fmt.Fprintf(a.stdout, "Toolchain: %s\n\n", a.cfg.Toolchain)
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Description)
				for _, s := range e.Steps {
					fmt.Fprintf(tw, "  %s\t%s\t[%s]\n", s.Label, s.Command, s.Kind)
				}
			}
			return tw.Flush()
		},
	}
}
