package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into a fresh temp dir with an empty user config dir.
func chdir(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tempDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tempDir, "home"))
	return tempDir
}

func noEnv(string) string { return "" }

func TestLoad_ReturnsDefaults_When_NoConfigAvailable(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ToolchainPython, cfg.Toolchain)
	assert.Equal(t, DefaultTemplateDir, cfg.TemplateDir)
	assert.Equal(t, DefaultCoverageProfile, cfg.CoverageProfile)
	assert.Equal(t, []string{"read", "write", "push"}, cfg.Mastodon.Scopes)
	assert.Equal(t, "urn:ietf:wg:oauth:2.0:oob", cfg.Mastodon.RedirectURI)
	assert.Equal(t, 3, cfg.Mastodon.Tries)
	assert.Empty(t, cfg.Path)
}

func TestLoad_MergesYAMLOverrides_When_LocalFilePresent(t *testing.T) {
	chdir(t)

	yamlContent := "" +
		"toolchain: go\n" +
		"coverage_profile: cover.out\n" +
		"ci: true\n" +
		"log_level: debug\n" +
		"coverage:\n" +
		"  fail_under: 80\n" +
		"  sort: miss\n" +
		"targets:\n" +
		"  lint:\n" +
		"    description: vet only\n" +
		"    steps:\n" +
		"      - label: Vet\n" +
		"        command: [go, vet, ./...]\n" +
		"mastodon:\n" +
		"  client_id: abc\n" +
		"  timeout: 3s\n" +
		"dashboard:\n" +
		"  title:\n" +
		"    text: Feed Tasks\n"
	require.NoError(t, os.WriteFile(FileName, []byte(yamlContent), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, FileName, cfg.Path)
	assert.Equal(t, ToolchainGo, cfg.Toolchain)
	assert.Equal(t, "cover.out", cfg.CoverageProfile)
	assert.Equal(t, DefaultTemplateDir, cfg.TemplateDir, "unset values keep defaults")
	assert.True(t, cfg.CI)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 80.0, cfg.Coverage.FailUnder, 0.001)
	assert.Equal(t, "miss", cfg.Coverage.SortBy)
	require.Contains(t, cfg.Targets, "lint")
	assert.Equal(t, []string{"go", "vet", "./..."}, cfg.Targets["lint"].Steps[0].Command)
	assert.Equal(t, "abc", cfg.Mastodon.ClientID)
	assert.Equal(t, 3*time.Second, cfg.Mastodon.Timeout)
	assert.Equal(t, 3, cfg.Mastodon.Tries)
	require.NotNil(t, cfg.Dashboard)
	assert.Equal(t, "Feed Tasks", cfg.Dashboard.Title.Text)
}

func TestLoad_UsesXDGPath_When_LocalMissing(t *testing.T) {
	tempDir := chdir(t)

	configDir := filepath.Join(tempDir, "xdg", "amalgam")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	configPath := filepath.Join(configDir, FileName)
	require.NoError(t, os.WriteFile(configPath, []byte("template_dir: web/templates\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, configPath, cfg.Path)
	assert.Equal(t, "web/templates", cfg.TemplateDir)
}

func TestLoad_ReturnsError_When_FileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "toolchain: [go\n"},
		{name: "unknown toolchain", content: "toolchain: rust\n"},
		{name: "empty step command", content: "targets:\n  test:\n    steps:\n      - label: nothing\n"},
		{name: "bad step kind", content: "targets:\n  lint:\n    steps:\n      - command: [x]\n        kind: maybe\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := chdir(t)
			path := filepath.Join(dir, "custom.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoad_ReturnsError_When_ExplicitPathMissing(t *testing.T) {
	dir := chdir(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv_OverridesFileValues_When_VariablesSet(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"AMALGAM_TOOLCHAIN":              "GO",
		"NO_COLOR":                       "yes",
		"CI":                             "1",
		"LOG_LEVEL":                      "warn",
		"AMALGAM_MASTODON_CLIENT_SECRET": "s3cret",
		"AMALGAM_HISTORY_FILE":           "runs.db",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, ToolchainGo, cfg.Toolchain)
	assert.True(t, cfg.NoColor, "NO_COLOR counts as set when non-boolean")
	assert.True(t, cfg.CI)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "s3cret", cfg.Mastodon.ClientSecret)
	assert.Equal(t, "runs.db", cfg.HistoryFile)
}

func TestApplyEnv_PrefersPrefixedVariables_When_BothSet(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"AMALGAM_CI":        "false",
		"CI":                "true",
		"AMALGAM_LOG_LEVEL": "error",
		"LOG_LEVEL":         "debug",
	}
	cfg := Default()
	cfg.CI = true
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.False(t, cfg.CI)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestApplyEnv_LeavesConfigUntouched_When_NothingSet(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ApplyEnv(noEnv)
	assert.Equal(t, Default(), cfg)
}
