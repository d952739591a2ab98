package target

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dkoosis/amalgam/internal/config"
	"github.com/dkoosis/amalgam/internal/coverage"
)

// exitBelowThreshold matches coverage.py's exit code for --fail-under.
const exitBelowThreshold = 2

// Standard builds lint, test and test-coverage for cfg.Toolchain, then
// applies the targets: block of the config. A configured target replaces
// the preset of the same name or adds a new one.
func Standard(cfg *config.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := NewRegistry()
	switch cfg.Toolchain {
	case config.ToolchainPython:
		registerPython(r, cfg)
	case config.ToolchainGo:
		registerGo(r, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidToolchain, cfg.Toolchain)
	}

	for name, tc := range cfg.Targets {
		t := &Target{Name: name, Description: tc.Description}
		if prev, err := r.Lookup(name); err == nil && t.Description == "" {
			t.Description = prev.Description
		}
		for i, sc := range tc.Steps {
			label := sc.Label
			if label == "" {
				label = fmt.Sprintf("step %d", i+1)
			}
			kind := Kind(sc.Kind)
			if kind == "" {
				kind = KindCheck
			}
			t.Steps = append(t.Steps, Step{Label: label, Argv: sc.Command, Kind: kind})
		}
		r.Register(t)
	}
	return r, nil
}

func registerPython(r *Registry, cfg *config.Config) {
	tpl := cfg.TemplateDir
	r.Register(&Target{
		Name:        Lint,
		Description: "Check and reformat templates with djlint, then lint and format Python with ruff",
		Steps: []Step{
			{Label: "djlint check", Argv: []string{"djlint", tpl, "--check"}, Kind: KindCheck},
			{Label: "djlint reformat", Argv: []string{"djlint", tpl, "--reformat", "--format-css", "--format-js"}, Kind: KindFix},
			{Label: "ruff check", Argv: []string{"ruff", "check", "."}, Kind: KindCheck},
			{Label: "ruff format", Argv: []string{"ruff", "format", "."}, Kind: KindFix},
		},
	})
	r.Register(&Target{
		Name:        Test,
		Description: "Run unittest discovery under coverage",
		Steps: []Step{
			{Label: "unittest", Argv: []string{"coverage", "run", "-m", "unittest", "discover"}, Kind: KindCheck},
		},
	})
	r.Register(&Target{
		Name:        TestCoverage,
		Description: "Print the coverage report as markdown",
		Steps: []Step{
			{Label: "coverage report", Argv: []string{"coverage", "report", "--format=markdown"}, Kind: KindCheck},
		},
	})
}

func registerGo(r *Registry, cfg *config.Config) {
	r.Register(&Target{
		Name:        Lint,
		Description: "List unformatted files, format them, then run golangci-lint and its fixers",
		Steps: []Step{
			{Label: "gofmt check", Argv: []string{"gofmt", "-l", "."}, Kind: KindCheck},
			{Label: "gofmt write", Argv: []string{"gofmt", "-w", "."}, Kind: KindFix},
			{Label: "golangci-lint", Argv: []string{"golangci-lint", "run", "./..."}, Kind: KindCheck},
			{Label: "golangci-lint fix", Argv: []string{"golangci-lint", "run", "--fix", "./..."}, Kind: KindFix},
		},
	})
	r.Register(&Target{
		Name:        Test,
		Description: "Run go test with a cover profile",
		Steps: []Step{
			{Label: "go test", Argv: []string{"go", "test", "-coverprofile=" + cfg.CoverageProfile, "./..."}, Kind: KindCheck},
		},
	})
	r.Register(&Target{
		Name:        TestCoverage,
		Description: "Print the cover profile as a markdown table",
		Steps: []Step{
			{Label: "coverage report", Func: CoverageReportStep(cfg.CoverageProfile, cfg.Coverage), Kind: KindCheck},
		},
	})
}

// CoverageReportStep renders profile as markdown. Falling under
// FailUnder exits 2, like coverage.py.
func CoverageReportStep(profile string, cc config.CoverageConfig) func(context.Context, io.Writer) error {
	opts := coverage.Options{
		SkipCovered: cc.SkipCovered,
		SkipEmpty:   cc.SkipEmpty,
		SortBy:      cc.SortBy,
		Precision:   cc.Precision,
		FailUnder:   cc.FailUnder,
		StripPrefix: cc.StripPrefix,
	}
	return func(_ context.Context, out io.Writer) error {
		profiles, err := coverage.ParseFile(profile)
		if err != nil {
			return err
		}
		err = coverage.NewReport(profiles).Markdown(out, opts)
		if errors.Is(err, coverage.ErrBelowThreshold) {
			return &exitError{code: exitBelowThreshold, err: err}
		}
		return err
	}
}
