package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/amalgam/internal/config"
)

func commands(t *Target) []string {
	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Command()
	}
	return out
}

func TestStandard_PythonToolchain_MatchesBuildFile(t *testing.T) {
	t.Parallel()

	reg, err := Standard(config.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{"lint", "test", "test-coverage"}, reg.Names())

	lint, err := reg.Lookup(Lint)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"djlint feed_amalgamator/templates --check",
		"djlint feed_amalgamator/templates --reformat --format-css --format-js",
		"ruff check .",
		"ruff format .",
	}, commands(lint))
	assert.Equal(t, []Kind{KindCheck, KindFix, KindCheck, KindFix},
		[]Kind{lint.Steps[0].Kind, lint.Steps[1].Kind, lint.Steps[2].Kind, lint.Steps[3].Kind})

	test, _ := reg.Lookup(Test)
	assert.Equal(t, []string{"coverage run -m unittest discover"}, commands(test))

	cov, _ := reg.Lookup(TestCoverage)
	assert.Equal(t, []string{"coverage report --format=markdown"}, commands(cov))
}

func TestStandard_GoToolchain_UsesProfileAndBuiltinReport(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Toolchain = config.ToolchainGo
	cfg.CoverageProfile = "cover.out"

	reg, err := Standard(cfg)
	require.NoError(t, err)

	test, _ := reg.Lookup(Test)
	assert.Equal(t, []string{"go test -coverprofile=cover.out ./..."}, commands(test))

	cov, _ := reg.Lookup(TestCoverage)
	require.Len(t, cov.Steps, 1)
	assert.NotNil(t, cov.Steps[0].Func)
	assert.Equal(t, "builtin coverage report", cov.Steps[0].Command())
}

func TestStandard_ConfigTargetsReplaceAndAdd(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Targets = map[string]config.TargetConfig{
		"test": {Steps: []config.StepConfig{{Command: []string{"python", "-m", "pytest"}}}},
		"docs": {Description: "Build docs", Steps: []config.StepConfig{{Label: "mkdocs", Command: []string{"mkdocs", "build"}, Kind: "fix"}}},
	}

	reg, err := Standard(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "lint", "test", "test-coverage"}, reg.Names())

	test, _ := reg.Lookup("test")
	assert.Equal(t, []string{"python -m pytest"}, commands(test))
	assert.Equal(t, "step 1", test.Steps[0].Label)
	assert.Equal(t, KindCheck, test.Steps[0].Kind)
	assert.NotEmpty(t, test.Description, "keeps the preset description")

	docs, _ := reg.Lookup("docs")
	assert.Equal(t, KindFix, docs.Steps[0].Kind)
}

func TestStandard_RejectsInvalidToolchain(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Toolchain = "ruby"
	_, err := Standard(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidToolchain)
}

func TestRegistry_Lookup_ErrUnknownTarget(t *testing.T) {
	t.Parallel()

	reg, err := Standard(config.Default())
	require.NoError(t, err)

	_, err = reg.Lookup("deploy")
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), "lint, test, test-coverage")
}

func TestStepError_UnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 3")
	err := error(&StepError{Target: "lint", Step: "ruff check", ExitCode: 3, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `target lint: step "ruff check" failed with exit code 3: exit status 3`, err.Error())
}
