//go:build !unix

package dashboard

import "os/exec"

// setProcessGroup is a no-op on non-Unix platforms.
func setProcessGroup(*exec.Cmd) {}

// interruptProcessGroup kills the process directly on non-Unix platforms.
func interruptProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
