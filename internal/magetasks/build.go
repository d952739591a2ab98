package magetasks

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/magefile/mage/sh"
)

// BuildAll builds bin/amalgam with version information linked in.
func BuildAll() error {
	PrintHeader("Build")

	if err := sh.RunV("go", "build", "-ldflags", ldflags(), "-o", BinPath, "./cmd/amalgam"); err != nil {
		PrintError("Build failed")
		return err
	}

	PrintSuccess("Built: " + BinPath)
	return nil
}

// Install runs go install for the binary with the same version flags.
func Install() error {
	PrintHeader("Install")

	if err := sh.RunV("go", "install", "-ldflags", ldflags(), "./cmd/amalgam"); err != nil {
		PrintError("Install failed")
		return err
	}

	PrintSuccess("Installed amalgam")
	return nil
}

// ldflags links version information into internal/version.
func ldflags() string {
	date := time.Now().UTC().Format(time.RFC3339)
	return fmt.Sprintf("-s -w -X '%s/internal/version.Version=%s' -X '%s/internal/version.CommitHash=%s' -X '%s/internal/version.BuildDate=%s'",
		ModulePath, gitVersion(), ModulePath, gitCommit(), ModulePath, date)
}

// Clean removes build artifacts and the cover profile.
func Clean() error {
	PrintHeader("Clean")

	for _, path := range []string{"./bin", "coverage.out"} {
		if err := sh.Rm(path); err != nil {
			return err
		}
	}
	if err := sh.Run("go", "clean", "-cache"); err != nil {
		fmt.Fprintf(os.Stderr, "go clean: %v\n", err)
	}

	PrintSuccess("Cleaned build artifacts")
	return nil
}

func gitVersion() string {
	v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty", "--match=v*")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(v)
}

func gitCommit() string {
	c, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(c)
}
