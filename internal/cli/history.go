package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type historyEntry struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Step      string    `json:"step"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	ExitCode  int       `json:"exit_code"`
	Duration  string    `json:"duration"`
}

func newHistoryCommand(a *app) *cobra.Command {
	var (
		targetName string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded steps from the run history",
		Long: `history reads the step events recorded in history_file
(AMALGAM_HISTORY_FILE). With --target it also prints the target's pass rate.`,
		Args: args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.history.Enabled() {
				return usage(errors.New("run history is disabled: set history_file or AMALGAM_HISTORY_FILE"))
			}
			ctx := cmd.Context()
			events, err := a.history.Recent(ctx, targetName, limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}

			if a.flags.json {
				entries := make([]historyEntry, 0, len(events))
				for _, e := range events {
					entries = append(entries, historyEntry{
						Timestamp: e.Timestamp,
						RunID:     e.RunID,
						Target:    e.Target,
						Step:      e.Step,
						Command:   e.Command,
						Status:    e.Status,
						ExitCode:  e.ExitCode,
						Duration:  e.Duration.String(),
					})
				}
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}

			if len(events) == 0 {
				fmt.Fprintln(a.stdout, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTARGET\tSTEP\tSTATUS\tEXIT\tDURATION")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					e.Target, e.Step, e.Status, e.ExitCode, e.Duration.Round(time.Millisecond))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if targetName != "" {
				rate, err := a.history.PassRate(ctx, targetName)
				if err != nil {
					return fmt.Errorf("read pass rate: %w", err)
				}
				fmt.Fprintf(a.stdout, "\n%s pass rate: %.1f%%\n", targetName, rate*100)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetName, "target", "t", "", "Only show this target")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of steps to show")
	return cmd
}
