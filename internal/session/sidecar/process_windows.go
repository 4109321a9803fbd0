//go:build windows
// +build windows

package sidecar

import (
	"os/exec"
	"syscall"
)

func configurePlatformProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
	}
}

func killProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
