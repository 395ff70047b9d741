//go:build !windows

package process

import (
	"syscall"
	"time"
)

// sendTerminationSignal sends SIGTERM to the process group
func sendTerminationSignal(pid int, timeout time.Duration) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killProcessTree sends SIGKILL to the process group
func killProcessTree(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
