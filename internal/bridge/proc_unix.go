//go:build !windows

package bridge

import (
	"os/exec"
	"syscall"
)

// detach puts the bridge in its own session so terminal signals aimed at
// the proxy do not reach it; the supervisor owns its lifecycle.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func terminate(cmd *exec.Cmd) {
	_ = cmd.Process.Signal(syscall.SIGTERM)
}
