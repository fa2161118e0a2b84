//go:build windows

package bridge

import (
	"os/exec"
	"syscall"
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Windows has no SIGTERM; go straight to Kill and let Stop's escalation
// path be a no-op.
func terminate(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}
