//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the command in its own process group and replaces
// the default cancel (which signals only the shell) with a kill of the
// whole group, so a timeout reaches backgrounded shell children too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
