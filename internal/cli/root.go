// Package cli implements the cobra commands of the amalgam binary.
//
// Each command group lives in its own file. This file defines the root
// command, the global flags, and the mapping from errors to exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/amalgam/internal/config"
	"github.com/dkoosis/amalgam/internal/coverage"
	"github.com/dkoosis/amalgam/internal/observability"
	"github.com/dkoosis/amalgam/internal/target"
	"github.com/dkoosis/amalgam/internal/telemetry"
	"github.com/dkoosis/amalgam/internal/version"
	"github.com/dkoosis/amalgam/pkg/dashboard"
)

// Exit codes that are not taken from a failing tool.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	toolchain  string
	logLevel   string
	noColor    bool
	ci         bool
	json       bool
}

// app carries what commands share once the root pre-run has loaded it.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	flags   globalFlags
	cfg     *config.Config
	logger  *zap.Logger
	history *telemetry.Telemetry

	// httpClient replaces the Mastodon transport's client when set.
	httpClient *http.Client
}

func newApp(stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{stdout: stdout, stderr: stderr, getenv: getenv, logger: zap.NewNop()}
}

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usage(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err: err}
}

// args wraps a cobra argument validator so its failures count as usage errors.
func args(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		return usage(v(cmd, a))
	}
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer, getenv func(string) string) *cobra.Command {
	return newRootCommand(newApp(stdout, stderr, getenv))
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "amalgam",
		Short: "Run the feed-amalgamator build targets and reach Mastodon instances",
		Long: `amalgam runs the lint, test and test-coverage targets of the project one
step at a time, stopping at the first failing tool like make does.

It also carries the Mastodon adapter so OAuth credentials and timelines can be
checked from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usage(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Path to .amalgam.yaml (default: ./.amalgam.yaml, then $XDG_CONFIG_HOME/amalgam)")
	pf.StringVar(&a.flags.toolchain, "toolchain", "", "Toolchain preset: python or go")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "Disable the interactive dashboard and colours")
	pf.BoolVar(&a.flags.ci, "ci", false, "CI mode: plain streamed output")
	pf.BoolVar(&a.flags.json, "json", false, "Print results as JSON")

	for _, name := range []string{target.Lint, target.Test, target.TestCoverage} {
		root.AddCommand(newTargetCommand(a, name))
	}
	root.AddCommand(newRunCommand(a))
	root.AddCommand(newListCommand(a))
	root.AddCommand(newCoverageCommand(a))
	root.AddCommand(newHistoryCommand(a))
	root.AddCommand(newAuthCommand(a))
	root.AddCommand(newTimelineCommand(a))
	root.AddCommand(newVersionCommand(a))

	return root
}

// setup loads configuration with precedence flags > env > file > defaults,
// then builds the logger, theme and history store.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(a.getenv)

	flags := cmd.Flags()
	if flags.Changed("toolchain") {
		cfg.Toolchain = strings.ToLower(a.flags.toolchain)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("no-color") {
		cfg.NoColor = a.flags.noColor
	}
	if flags.Changed("ci") {
		cfg.CI = a.flags.ci
	}
	if err := cfg.Validate(); err != nil {
		return usage(err)
	}
	a.cfg = cfg

	a.logger = observability.NewWriterLogger(a.stderr, cfg.LogLevel, a.flags.json)
	if cfg.Dashboard != nil {
		dashboard.SetTheme(cfg.Dashboard)
	}

	history, err := telemetry.Open(cfg.HistoryFile)
	if err != nil {
		a.logger.Warn("run history disabled", zap.String("path", cfg.HistoryFile), zap.Error(err))
		history = nil
	}
	a.history = history

	a.logger.Debug("configuration loaded",
		zap.String("path", cfg.Path),
		zap.String("toolchain", cfg.Toolchain),
		zap.Bool("ci", cfg.CI),
	)
	return nil
}

// close flushes what setup opened. It is safe to call when setup never ran.
func (a *app) close() {
	if a.cfg != nil {
		if err := observability.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Warn("writing metrics failed", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
		}
	}
	if err := a.history.Close(); err != nil {
		a.logger.Warn("closing run history failed", zap.Error(err))
	}
	_ = observability.Flush(context.Background(), a.logger)
}

// streamOutput reports whether target runs must skip the TUI.
func (a *app) streamOutput() bool {
	return a.cfg.CI || a.cfg.NoColor || a.flags.json
}

// Execute runs the command line in args and returns the process exit code.
func Execute(ctx context.Context, argv []string, stdout, stderr io.Writer, getenv func(string) string) int {
	a := newApp(stdout, stderr, getenv)
	return a.execute(ctx, argv)
}

func (a *app) execute(ctx context.Context, argv []string) int {
	root := newRootCommand(a)
	root.SetArgs(argv)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return ExitOK
	}

	code := exitCode(err)
	a.printError(err)
	if isUsage(err) && !a.flags.json {
		fmt.Fprintf(a.stderr, "Run '%s --help' for usage.\n", root.Name())
	}
	return code
}

// exitCode maps an error to the process exit status. A failed step keeps
// its tool's code.
func exitCode(err error) int {
	var stepErr *target.StepError
	if errors.As(err, &stepErr) {
		return stepErr.ExitCode
	}
	if isUsage(err) {
		return ExitUsage
	}
	// coverage report --fail-under exits 2 like coverage.py.
	if errors.Is(err, coverage.ErrBelowThreshold) {
		return ExitUsage
	}
	return ExitError
}

// isUsage reports whether err came from a malformed invocation, as opposed
// to a run that merely exits with the same code.
func isUsage(err error) bool {
	var stepErr *target.StepError
	if errors.As(err, &stepErr) {
		return false
	}
	var uErr *usageError
	return errors.As(err, &uErr) || errors.Is(err, target.ErrUnknownTarget) || isCobraUsage(err)
}

// isCobraUsage recognises the errors cobra builds itself for unknown commands.
func isCobraUsage(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// printError writes err to stderr, as JSON when --json is set.
func (a *app) printError(err error) {
	var stepErr *target.StepError
	if a.flags.json {
		obj := map[string]any{"message": err.Error()}
		if errors.As(err, &stepErr) {
			obj["target"] = stepErr.Target
			obj["step"] = stepErr.Step
			obj["exit_code"] = stepErr.ExitCode
		}
		data, _ := json.MarshalIndent(map[string]any{"error": obj}, "", "  ")
		fmt.Fprintln(a.stderr, string(data))
		return
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
}
