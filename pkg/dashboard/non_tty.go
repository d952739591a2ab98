package dashboard

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// RunNonTTY runs the tasks and streams "[group/name] line" output for
// non-interactive environments, then writes a summary. Output of raw
// formatters is written verbatim and left out of the summary when the
// task passed cleanly. It returns the tasks and the exit code of the first
// failed task (0 if none failed).
func RunNonTTY(ctx context.Context, specs []TaskSpec, out io.Writer) ([]*Task, int) {
	tasks, updates := StartTasks(ctx, specs)

	prefersBatch := make([]bool, len(tasks))
	prefersRaw := make([]bool, len(tasks))
	for i, task := range tasks {
		prefersBatch[i] = FormatterPrefersBatch(task.Spec.Command())
		prefersRaw[i] = FormatterPrefersRaw(task.Spec.Command())
	}

	for update := range updates {
		switch {
		case prefersRaw[update.Index]:
			fmt.Fprintln(out, update.Line)
		case update.Line == "" || prefersBatch[update.Index]:
		default:
			spec := tasks[update.Index].Spec
			fmt.Fprintf(out, "[%s/%s] %s\n", spec.Group, spec.Name, update.Line)
		}
	}

	renderSummary(out, tasks)
	return tasks, FirstFailure(tasks)
}

// FirstFailure returns the exit code of the first failed task, or 0.
func FirstFailure(tasks []*Task) int {
	for _, task := range tasks {
		if task.Status() == TaskFailed {
			return task.ExitCode()
		}
	}
	return 0
}

// WriteRawOutput writes the captured output of passed raw-formatter tasks
// to out, for use after the TUI has released the terminal.
func WriteRawOutput(out io.Writer, tasks []*Task) {
	for _, task := range tasks {
		if task.Status() != TaskSuccess || !FormatterPrefersRaw(task.Spec.Command()) {
			continue
		}
		for _, line := range task.GetOutput() {
			fmt.Fprintln(out, line)
		}
	}
}

func renderSummary(out io.Writer, tasks []*Task) {
	icons := currentTheme().Icons

	var shown []*Task
	for _, task := range tasks {
		if task.Status() == TaskSuccess && FormatterPrefersRaw(task.Spec.Command()) &&
			!Summarize(task.Spec.Command(), task.GetOutput()).Warning {
			continue
		}
		shown = append(shown, task)
	}
	if len(shown) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	failures, skipped := 0, 0
	for _, task := range shown {
		sum := Summarize(task.Spec.Command(), task.GetOutput())
		icon := icons.Success
		suffix := ""
		switch task.Status() {
		case TaskFailed:
			icon = icons.Error
			suffix = fmt.Sprintf(" exit %d", task.ExitCode())
			failures++
		case TaskSkipped:
			icon = icons.Skipped
			skipped++
		case TaskSuccess:
			if sum.Warning {
				icon = icons.Warning
			}
		default:
			icon = icons.Pending
		}

		line := fmt.Sprintf("  %s %s/%s", icon, task.Spec.Group, task.Spec.Name)
		if task.Status() != TaskSkipped {
			line += fmt.Sprintf(" (%s%s)", task.Duration().Round(10*time.Millisecond), suffix)
		}
		if sum.Headline != "" {
			line += ": " + sum.Headline
		}
		fmt.Fprintln(out, line)
		for _, d := range sum.Details {
			fmt.Fprintf(out, "      %s\n", d)
		}
	}

	if failures > 0 {
		msg := fmt.Sprintf("%d task(s) failed", failures)
		if skipped > 0 {
			msg += fmt.Sprintf(", %d skipped", skipped)
		}
		fmt.Fprintf(out, "\n%s\n", msg)
	}
}

// JoinOutput joins buffered output for tests.
func JoinOutput(task *Task) string {
	return strings.Join(task.GetOutput(), "\n")
}
