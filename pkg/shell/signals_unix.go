//go:build !windows

package shell

import (
	"os"
	"syscall"
)

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// activationSignals bring the window back, the way a dock click would.
func activationSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}

// windowClosedSignals mean the terminal hosting the headless UI went away.
func windowClosedSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP}
}
