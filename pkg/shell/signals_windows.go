//go:build windows

package shell

import "os"

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func activationSignals() []os.Signal {
	return nil
}

func windowClosedSignals() []os.Signal {
	return nil
}
