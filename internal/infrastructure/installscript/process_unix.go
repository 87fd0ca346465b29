//go:build unix

package installscript

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs the script in its own process group and makes
// cancellation kill the whole group, so curl and the script's children die
// together with the shell and release the output pipes.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
