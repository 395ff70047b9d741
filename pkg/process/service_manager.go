package process

import (
	"context"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

// ServiceManagerHandle drives a client daemon owned by the OS service
// manager. The daemon is kept alive by the service manager, so Start has
// nothing to do and Stop only tears down the VPN connection.
type ServiceManagerHandle struct {
	Installer

	api    ConnectionCanceller
	logger logging.Logger
}

func NewServiceManagerHandle(installer Installer, api ConnectionCanceller, logger logging.Logger) *ServiceManagerHandle {
	return &ServiceManagerHandle{
		Installer: installer,
		api:       api,
		logger:    logger,
	}
}

func (h *ServiceManagerHandle) Start() {
	h.logger.Debugf("Client is managed by the service manager, nothing to start")
}

func (h *ServiceManagerHandle) Stop(ctx context.Context) error {
	err := h.api.ConnectionCancel(ctx)
	if err == nil {
		h.logger.Infof("Client connection cancelled")
		return nil
	}
	if errors.IsConflictError(err) || errors.IsNotFoundError(err) {
		h.logger.Debugf("No active client connection to cancel: %v", err)
		return nil
	}
	return errors.NewProcessError("failed to cancel client connection", err)
}

func (h *ServiceManagerHandle) SetupLogging() error {
	return nil
}

func (h *ServiceManagerHandle) OnLog(level LogLevel, callback LogCallback) events.Unsubscribe {
	return noopUnsubscribe
}
