//go:build !windows
// +build !windows

package sidecar

import (
	"os/exec"
	"syscall"
)

// configurePlatformProcess puts the sidecar in its own process group so the
// browser it spawns dies with it.
func configurePlatformProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcess(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
