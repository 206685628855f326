//go:build linux

package engine

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

func terminateGroup(proc *os.Process) error {
	return signalGroup(proc, unix.SIGTERM)
}

func killGroup(proc *os.Process) error {
	return signalGroup(proc, unix.SIGKILL)
}

func signalGroup(proc *os.Process, sig unix.Signal) error {
	if proc == nil || proc.Pid <= 0 {
		return nil
	}
	if err := unix.Kill(-proc.Pid, sig); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
