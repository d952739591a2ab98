// Package target defines the named build targets (lint, test,
// test-coverage) and runs their steps through the dashboard.
//
// A target is an ordered list of steps. Each step is one external tool
// invocation, or a built-in function for work amalgam does itself. Steps
// run one at a time; as with make, the first failing step stops the run.
package target

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dkoosis/amalgam/pkg/dashboard"
)

// Standard target names.
const (
	Lint         = "lint"
	Test         = "test"
	TestCoverage = "test-coverage"
)

// Kind tells whether a step only inspects files or rewrites them.
type Kind string

const (
	KindCheck Kind = "check"
	KindFix   Kind = "fix"
)

// ErrUnknownTarget is returned for a target name that is not registered.
var ErrUnknownTarget = errors.New("unknown target")

// Step is one unit of work in a target: Argv for an external command, Func
// for a built-in.
type Step struct {
	Label string
	Argv  []string
	Func  dashboard.StepFunc
	Kind  Kind
}

// Command returns the command line shown to users.
func (s Step) Command() string {
	return dashboard.TaskSpec{Name: s.Label, Argv: s.Argv}.Command()
}

// Target is a named, ordered list of steps.
type Target struct {
	Name        string
	Description string
	Steps       []Step
}

// Registry maps target names to targets.
type Registry struct {
	targets map[string]*Target
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*Target)}
}

// Register adds or replaces t.
func (r *Registry) Register(t *Target) {
	r.targets[t.Name] = t
}

// Lookup returns the named target or ErrUnknownTarget.
func (r *Registry) Lookup(name string) (*Target, error) {
	t, ok := r.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownTarget, name, strings.Join(r.Names(), ", "))
	}
	return t, nil
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsCommandNotFound reports whether err means a step's executable is
// missing from PATH.
func IsCommandNotFound(err error) bool {
	return dashboard.IsCommandNotFound(err)
}

// StepError reports the step that stopped a run. ExitCode is the tool's
// own exit code.
type StepError struct {
	Target   string
	Step     string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("target %s: step %q failed with exit code %d", e.Target, e.Step, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// exitError gives a built-in step's error a specific exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }
