package shell

import (
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/monitoring"
	"github.com/core-tools/hsu-vpnshell/pkg/process"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
)

// NewHandleFactory builds handles of the variant selected by config.
func NewHandleFactory(config process.Config, files *processfile.ProcessFileManager, api process.ConnectionCanceller, logger logging.Logger) HandleFactory {
	return func() (process.Handle, error) {
		return process.NewHandle(config, files, api, logging.NewModuleLogger("process", logger))
	}
}

// NewMonitorFactory builds monitors running the configured check. Process
// checks follow the PID of handles that expose one.
func NewMonitorFactory(config monitoring.HealthCheckConfig, id string, logger logging.Logger) MonitorFactory {
	return func(handle process.Handle) monitoring.HealthMonitor {
		var pid monitoring.PIDProvider
		if withPID, ok := handle.(interface{ PID() int }); ok {
			pid = withPID.PID
		}
		monitorConfig := config
		return monitoring.NewHealthMonitor(&monitorConfig, id, pid, logging.NewModuleLogger("monitoring", logger))
	}
}
