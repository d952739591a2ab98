package magetasks

import (
	"os"
	"path/filepath"

	"github.com/dkoosis/amalgam/internal/config"
)

var (
	// ModulePath is the Go module path.
	ModulePath = "github.com/dkoosis/amalgam"

	// BinPath is the output path for the built binary.
	BinPath = "./bin/amalgam"

	// ProjectRoot is the root directory of the project.
	ProjectRoot string
)

// Initialize records the project root and makes sure bin/ exists.
// Call this from the Magefile init() function.
func Initialize() error {
	var err error
	ProjectRoot, err = os.Getwd()
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(ProjectRoot, "bin"), 0o750)
}

// LoadConfig reads .amalgam.yaml and the environment like the binary does.
// The toolchain defaults to go because the Magefile builds this module;
// AMALGAM_TOOLCHAIN still wins.
func LoadConfig(getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(getenv)
	if getenv("AMALGAM_TOOLCHAIN") == "" {
		cfg.Toolchain = config.ToolchainGo
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
