package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dkoosis/amalgam/internal/version"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  args(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			info := map[string]string{
				"version":    version.Version,
				"commit":     version.CommitHash,
				"build_date": version.BuildDate,
				"go":         runtime.Version(),
			}
			if ok, err := a.printJSON(info); ok {
				return err
			}
			fmt.Fprintf(a.stdout, "amalgam %s (%s)\n", version.String(), runtime.Version())
			return nil
		},
	}
}
