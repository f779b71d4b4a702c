//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProcess detaches the daemon from the CLI's process group.
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
