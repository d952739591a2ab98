package target

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkoosis/amalgam/internal/observability"
	"github.com/dkoosis/amalgam/internal/telemetry"
	"github.com/dkoosis/amalgam/pkg/dashboard"
)

// Runner executes targets from a Registry.
type Runner struct {
	registry *Registry
	logger   *zap.Logger
	out      io.Writer
	stream   bool
	dir      string
	history  *telemetry.Telemetry
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOutput sets where the dashboard writes. Default os.Stdout.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) { r.out = w }
}

// WithStream forces prefixed streaming output instead of the TUI.
func WithStream(on bool) RunnerOption {
	return func(r *Runner) { r.stream = on }
}

// WithDir runs every step in dir.
func WithDir(dir string) RunnerOption {
	return func(r *Runner) { r.dir = dir }
}

// WithHistory records every step in t.
func WithHistory(t *telemetry.Telemetry) RunnerOption {
	return func(r *Runner) { r.history = t }
}

// NewRunner creates a Runner. A nil logger disables logging.
func NewRunner(registry *Registry, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{registry: registry, logger: logger, out: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the named targets in order. Unknown names are rejected
// before anything runs. The first failing step stops the run: the rest of
// its target is skipped and later targets are not run. The returned error
// is a *StepError carrying the tool's exit code; the report is returned
// either way.
func (r *Runner) Run(ctx context.Context, names ...string) (*RunReport, error) {
	if len(names) == 0 {
		return nil, errors.New("no targets given")
	}
	targets := make([]*Target, 0, len(names))
	for _, name := range names {
		t, err := r.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	report := &RunReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := r.logger.With(zap.String("run_id", report.RunID))
	log.Info("run started", zap.Strings("targets", names))

	suite := dashboard.NewSuite(strings.Join(names, " ")).InDir(r.dir).ForceStream(r.stream)
	for _, t := range targets {
		for _, s := range t.Steps {
			log.Debug("queue step", zap.String("target", t.Name), zap.String("step", s.Label), zap.String("command", s.Command()))
			if s.Func != nil {
				suite.AddFunc(t.Name, s.Label, s.Func)
			} else {
				suite.AddTask(t.Name, s.Label, s.Argv...)
			}
		}
	}

	tasks, suiteErr := suite.RunWithOutput(ctx, r.out)
	report.FinishedAt = time.Now()

	var suiteFailure *dashboard.SuiteError
	if suiteErr != nil && !errors.As(suiteErr, &suiteFailure) {
		// The TUI itself failed; tasks may still have run.
		log.Error("dashboard failed", zap.Error(suiteErr))
	}

	runErr := r.collect(report, targets, tasks)
	r.record(ctx, log, report)

	if runErr != nil {
		log.Error("run failed",
			zap.String("target", runErr.Target),
			zap.String("step", runErr.Step),
			zap.Int("exit_code", runErr.ExitCode),
			zap.Bool("command_not_found", IsCommandNotFound(runErr.Err)),
			zap.Error(runErr.Err))
		return report, runErr
	}
	if suiteErr != nil && suiteFailure == nil {
		report.ExitCode = 1
		return report, suiteErr
	}
	log.Info("run finished", zap.Duration("duration", report.Duration()))
	return report, nil
}

// collect maps dashboard tasks back onto targets. Tasks are in target
// order, so the i-th task belongs to the i-th queued step.
func (r *Runner) collect(report *RunReport, targets []*Target, tasks []*dashboard.Task) *StepError {
	var firstErr *StepError
	idx := 0
	for _, t := range targets {
		tr := TargetResult{Name: t.Name, Status: StatusPassed}
		for _, s := range t.Steps {
			sr := StepResult{
				Target:   t.Name,
				Step:     s.Label,
				Command:  s.Command(),
				Kind:     s.Kind,
				Status:   StatusNotRun,
				ExitCode: -1,
			}
			if idx < len(tasks) {
				task := tasks[idx]
				sr.Status = statusOf(task.Status())
				sr.ExitCode = task.ExitCode()
				sr.Duration = task.Duration()
				sr.Output = task.GetOutput()
				if sr.Status == StatusFailed && firstErr == nil {
					firstErr = &StepError{Target: t.Name, Step: s.Label, ExitCode: sr.ExitCode, Err: task.Err()}
				}
			}
			idx++

			// Steps of targets after the failing one never started.
			if firstErr != nil && firstErr.Target != t.Name && sr.Status == StatusSkipped {
				sr.Status = StatusNotRun
			}
			tr.Steps = append(tr.Steps, sr)
		}
		switch {
		case firstErr != nil && firstErr.Target == t.Name:
			tr.Status, tr.ExitCode = StatusFailed, firstErr.ExitCode
		case firstErr != nil:
			tr.Status, tr.ExitCode = StatusNotRun, -1
		case allSkipped(tr.Steps):
			tr.Status, tr.ExitCode = StatusSkipped, -1
		}
		report.Targets = append(report.Targets, tr)
	}
	if firstErr != nil {
		report.ExitCode = firstErr.ExitCode
	}
	return firstErr
}

func allSkipped(steps []StepResult) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if s.Status != StatusSkipped && s.Status != StatusNotRun {
			return false
		}
	}
	return true
}

func statusOf(s dashboard.TaskStatus) Status {
	switch s {
	case dashboard.TaskSuccess:
		return StatusPassed
	case dashboard.TaskFailed:
		return StatusFailed
	case dashboard.TaskSkipped:
		return StatusSkipped
	default:
		return StatusNotRun
	}
}

// record updates metrics and history for a finished run.
func (r *Runner) record(ctx context.Context, log *zap.Logger, report *RunReport) {
	for _, tr := range report.Targets {
		for _, sr := range tr.Steps {
			observability.StepsTotal.WithLabelValues(sr.Target, sr.Step, string(sr.Status)).Inc()
			if sr.Status == StatusPassed || sr.Status == StatusFailed {
				observability.StepDuration.WithLabelValues(sr.Target, sr.Step).Observe(sr.Duration.Seconds())
			}
			if sr.Status == StatusNotRun {
				continue
			}
			err := r.history.RecordEvent(ctx, telemetry.Event{
				Timestamp: report.StartedAt,
				RunID:     report.RunID,
				Target:    sr.Target,
				Step:      sr.Step,
				Command:   sr.Command,
				Status:    string(sr.Status),
				ExitCode:  sr.ExitCode,
				Duration:  sr.Duration,
			})
			if err != nil {
				log.Warn("could not record step history", zap.String("step", sr.Step), zap.Error(err))
			}
		}
		if tr.Status == StatusNotRun {
			continue
		}
		result := "passed"
		if tr.Status != StatusPassed {
			result = string(tr.Status)
		}
		observability.TargetRunsTotal.WithLabelValues(tr.Name, result).Inc()
		if tr.Status == StatusPassed || tr.Status == StatusFailed {
			observability.TargetLastExitCode.WithLabelValues(tr.Name).Set(float64(max(tr.ExitCode, 0)))
		}
	}
}
