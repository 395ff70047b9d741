package processstate

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// IsProcessRunning reports whether pid names a live, non-zombie process.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false, err
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// Exited between the two lookups
		return false, nil
	}
	statuses, err := proc.Status()
	if err != nil {
		return true, nil
	}
	for _, status := range statuses {
		if status == process.Zombie {
			return false, nil
		}
	}
	return true, nil
}

// ProcessName returns the executable name of pid, used to tell a leftover
// client apart from an unrelated process that reused its PID.
func ProcessName(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid PID: %d", pid)
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return proc.Name()
}
