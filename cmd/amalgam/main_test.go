package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".amalgam.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_PropagatesToolExitCode(t *testing.T) {
	cfg := writeConfig(t, `
log_level: error
targets:
  test:
    steps:
      - label: unittest
        command: ["sh", "-c", "echo 'Ran 3 tests in 0.010s'; echo FAILED; exit 1"]
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfg, "--ci", "test"}, &stdout, &stderr)

	if code != 1 {
		t.Errorf("expected exit code 1, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "[test/unittest] Ran 3 tests") {
		t.Errorf("expected prefixed tool output, got:\n%s", stdout.String())
	}
}

func TestRun_MissingToolExits127(t *testing.T) {
	cfg := writeConfig(t, `
log_level: error
targets:
  lint:
    steps:
      - label: missing
        command: ["amalgam-no-such-tool", "--check"]
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfg, "--ci", "lint"}, &stdout, &stderr)

	if code != 127 {
		t.Errorf("expected exit code 127, got %d", code)
	}
}

func TestRun_HelpExitsZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--help"}, &stdout, &stderr)

	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	for _, want := range []string{"lint", "test-coverage", "timeline"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}
