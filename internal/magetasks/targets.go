package magetasks

import (
	"context"
	"errors"
	"os"

	"github.com/magefile/mage/mg"
	"go.uber.org/zap"

	"github.com/dkoosis/amalgam/internal/observability"
	"github.com/dkoosis/amalgam/internal/target"
	"github.com/dkoosis/amalgam/internal/telemetry"
)

// Run runs the named targets through the dashboard. A failing step is
// returned as an mg.Fatal error so mage exits with the tool's own code.
func Run(ctx context.Context, names ...string) error {
	cfg, err := LoadConfig(os.Getenv)
	if err != nil {
		return err
	}
	reg, err := target.Standard(cfg)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, false)
	if err != nil {
		return err
	}
	defer func() { _ = observability.Flush(ctx, logger) }()

	history, err := telemetry.Open(cfg.HistoryFile)
	if err != nil {
		logger.Warn("run history disabled", zap.String("path", cfg.HistoryFile), zap.Error(err))
		history = nil
	}
	defer history.Close()

	runner := target.NewRunner(reg, logger,
		target.WithOutput(out),
		target.WithStream(cfg.CI || cfg.NoColor || mg.Verbose()),
		target.WithHistory(history),
	)
	_, runErr := runner.Run(ctx, names...)

	if err := observability.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("writing metrics failed", zap.String("path", cfg.MetricsFile), zap.Error(err))
	}

	var stepErr *target.StepError
	if errors.As(runErr, &stepErr) {
		return mg.Fatal(stepErr.ExitCode, stepErr.Error())
	}
	return runErr
}
