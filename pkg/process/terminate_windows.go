//go:build windows

package process

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// Windows console operation lock to prevent race conditions
var consoleOperationLock sync.Mutex

// sendTerminationSignal delivers Ctrl+Break to the client's process group
func sendTerminationSignal(pid int, timeout time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	consoleOperationLock.Lock()
	defer consoleOperationLock.Unlock()

	dll, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return fmt.Errorf("failed to load kernel32.dll: %v", err)
	}
	defer dll.Release()

	done := make(chan error, 1)
	go func() {
		done <- generateConsoleCtrlEvent(dll, pid)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send Ctrl+Break to PID %d: %v", pid, err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout sending Ctrl+Break to PID %d after %v", pid, timeout)
	}
}

func generateConsoleCtrlEvent(dll *syscall.DLL, pid int) error {
	proc, err := dll.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return err
	}

	result, _, err := proc.Call(
		uintptr(syscall.CTRL_BREAK_EVENT),
		uintptr(pid),
	)
	if result == 0 {
		return err
	}
	return nil
}

// killProcessTree terminates the client and its children
func killProcessTree(pid int) error {
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		// already gone
		return nil
	}

	if children, err := p.Children(); err == nil {
		for _, child := range children {
			_ = child.Kill()
		}
	}
	return p.Kill()
}
