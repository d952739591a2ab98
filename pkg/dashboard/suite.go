package dashboard

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Suite orchestrates tasks with TUI or streaming output.
type Suite struct {
	title  string
	specs  []TaskSpec
	stream bool
	dir    string
}

// NewSuite creates a new dashboard suite with the given title.
func NewSuite(title string) *Suite {
	return &Suite{title: title}
}

// AddTask adds an external command.
func (s *Suite) AddTask(group, name string, argv ...string) *Suite {
	s.specs = append(s.specs, TaskSpec{Group: group, Name: name, Argv: argv, Dir: s.dir})
	return s
}

// AddFunc adds an in-process step.
func (s *Suite) AddFunc(group, name string, fn StepFunc) *Suite {
	s.specs = append(s.specs, TaskSpec{Group: group, Name: name, Func: fn, Dir: s.dir})
	return s
}

// InDir sets the working directory for tasks added afterwards.
func (s *Suite) InDir(dir string) *Suite {
	s.dir = dir
	return s
}

// ForceStream disables the TUI even when the writer is a terminal.
func (s *Suite) ForceStream(on bool) *Suite {
	s.stream = on
	return s
}

// Specs returns the queued task specs.
func (s *Suite) Specs() []TaskSpec {
	out := make([]TaskSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Run executes all tasks on stdout.
func (s *Suite) Run(ctx context.Context) ([]*Task, error) {
	return s.RunWithOutput(ctx, os.Stdout)
}

// RunWithOutput executes all tasks. It uses the TUI when w is a terminal
// and streaming output otherwise. The error is a *SuiteError when a task
// failed.
func (s *Suite) RunWithOutput(ctx context.Context, w io.Writer) ([]*Task, error) {
	if len(s.specs) == 0 {
		return nil, nil
	}

	if !s.stream && isTerminal(w) {
		tasks, _, err := RunDashboard(ctx, s.title, s.specs)
		if err != nil {
			return tasks, err
		}
		WriteRawOutput(w, tasks)
		return tasks, suiteError(tasks)
	}

	tasks, _ := RunNonTTY(ctx, s.specs, w)
	return tasks, suiteError(tasks)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func suiteError(tasks []*Task) error {
	for _, task := range tasks {
		if task.Status() == TaskFailed {
			return &SuiteError{
				ExitCode: task.ExitCode(),
				Group:    task.Spec.Group,
				Name:     task.Spec.Name,
				Err:      task.Err(),
			}
		}
	}
	return nil
}

// SuiteError reports the first failed task.
type SuiteError struct {
	ExitCode int
	Group    string
	Name     string
	Err      error
}

func (e *SuiteError) Error() string {
	return fmt.Sprintf("%s/%s failed with exit code %d", e.Group, e.Name, e.ExitCode)
}

func (e *SuiteError) Unwrap() error { return e.Err }
