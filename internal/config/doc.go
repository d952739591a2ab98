// Package config handles configuration loading and merging for amalgam.
//
// # Configuration Precedence
//
// Configuration values are resolved in the following order (highest to lowest priority):
//
//  1. CLI flags (--toolchain, --no-color, --ci, --log-level)
//  2. Environment variables (AMALGAM_TOOLCHAIN, AMALGAM_NO_COLOR, NO_COLOR, AMALGAM_CI, CI, ...)
//  3. YAML config file (.amalgam.yaml in the working directory or ~/.config/amalgam/.amalgam.yaml)
//  4. Hardcoded defaults
//
// # Toolchains
//
// The toolchain decides which external tools the lint, test and test-coverage
// targets invoke:
//
//   - python: djlint for templates, ruff for code, coverage.py for tests
//   - go: gofmt and golangci-lint for code, go test with a cover profile
//
// A targets: block in the YAML file replaces the steps of individual targets.
//
// # Environment Variables
//
//   - AMALGAM_TOOLCHAIN: python or go
//   - AMALGAM_NO_COLOR or NO_COLOR: "true" or "1" disables colors
//   - AMALGAM_CI or CI: "true" or "1" enables CI mode (monochrome, no TUI)
//   - AMALGAM_LOG_LEVEL or LOG_LEVEL: debug, info, warn, error
//   - AMALGAM_METRICS_FILE: write Prometheus metrics to this textfile after a run
//   - AMALGAM_HISTORY_FILE: record step results in this SQLite database
//   - AMALGAM_MASTODON_CLIENT_ID, AMALGAM_MASTODON_CLIENT_SECRET, AMALGAM_MASTODON_ACCESS_TOKEN
package config
