//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package proc

import (
	"os/exec"
	"syscall"
)

func initCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcess(pid int) error {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
}

func exitSignal(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return int(status.Signal())
	}

	return 0
}
