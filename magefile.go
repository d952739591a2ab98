//go:build mage

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dkoosis/amalgam/internal/magetasks"
	"github.com/dkoosis/amalgam/internal/target"
)

// Default target - build the binary
var Default = Build

// Aliases lets `mage test-coverage` match the make target name.
var Aliases = map[string]interface{}{
	"test-coverage": TestCoverage,
}

func init() {
	if err := magetasks.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}

// Build builds the amalgam binary
func Build() error {
	return magetasks.BuildAll()
}

// Clean removes build artifacts
func Clean() error {
	return magetasks.Clean()
}

// Lint checks formatting, reformats, then runs golangci-lint and its fixers
func Lint(ctx context.Context) error {
	return magetasks.Run(ctx, target.Lint)
}

// Test runs the test suite with a cover profile
func Test(ctx context.Context) error {
	return magetasks.Run(ctx, target.Test)
}

// TestCoverage prints the cover profile as a markdown table
func TestCoverage(ctx context.Context) error {
	return magetasks.Run(ctx, target.TestCoverage)
}

// All runs lint, test and test-coverage in one dashboard, stopping at the first failure
func All(ctx context.Context) error {
	return magetasks.Run(ctx, target.Lint, target.Test, target.TestCoverage)
}

// Install installs the amalgam binary into GOBIN
func Install() error {
	return magetasks.Install()
}
