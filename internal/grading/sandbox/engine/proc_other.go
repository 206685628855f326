//go:build !linux

package engine

import (
	"os"
	"syscall"
)

func buildSysProcAttr() *syscall.SysProcAttr {
	return nil
}

func terminateGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return proc.Kill()
	}
	return nil
}

func killGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
