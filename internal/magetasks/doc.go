// Package magetasks provides the build tasks behind the Magefile.
//
// Lint, Test and TestCoverage go through the same target runner as the
// amalgam binary, with the go toolchain preset unless AMALGAM_TOOLCHAIN
// says otherwise. Build and Clean manage the binary itself.
package magetasks
