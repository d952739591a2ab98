package target

import (
	"encoding/json"
	"time"
)

// Status is the outcome of a step or target.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusNotRun  Status = "not-run"
)

// StepResult is what one step did.
type StepResult struct {
	Target   string        `json:"target"`
	Step     string        `json:"step"`
	Command  string        `json:"command"`
	Kind     Kind          `json:"kind"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration_ns"`
	Output   []string      `json:"output,omitempty"`
}

// TargetResult groups the step results of one target.
type TargetResult struct {
	Name     string       `json:"name"`
	Status   Status       `json:"status"`
	ExitCode int          `json:"exit_code"`
	Steps    []StepResult `json:"steps"`
}

// RunReport describes one invocation of Runner.Run.
type RunReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	ExitCode   int            `json:"exit_code"`
	Targets    []TargetResult `json:"targets"`
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the first failed step, or nil.
func (r *RunReport) Failed() *StepResult {
	for i := range r.Targets {
		for j := range r.Targets[i].Steps {
			if r.Targets[i].Steps[j].Status == StatusFailed {
				return &r.Targets[i].Steps[j]
			}
		}
	}
	return nil
}

// ToJSON renders the report for --json output.
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
