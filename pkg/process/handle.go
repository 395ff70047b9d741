package process

import (
	"context"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
)

// DefaultProcessID names the client's PID file
const DefaultProcessID = "vpn-client"

const DefaultStopTimeout = 5 * time.Second

type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelError LogLevel = "ERROR"
)

type LogCallback func(line string)

// Installer reports and performs the one-time setup the client needs
// before it can be started.
type Installer interface {
	NeedsInstallation() (bool, error)
	Install(ctx context.Context) error
}

// Handle controls the managed VPN client process.
//
// Start is fire-and-forget: liveness is judged by the health monitor, not by
// Start. Stop is safe to call repeatedly.
type Handle interface {
	Installer
	Start()
	Stop(ctx context.Context) error
	SetupLogging() error
	OnLog(level LogLevel, callback LogCallback) events.Unsubscribe
}

// State is a diagnostic view of the handle. It is derived from what the
// handle itself did and is never used for decisions; the health monitor is
// the source of truth for liveness.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateDown       State = "down"
	StateStopped    State = "stopped"
)

// StateReporter is implemented by handles that track State.
type StateReporter interface {
	State() State
}

type Mode string

const (
	ModeStandalone     Mode = "standalone"
	ModeServiceManager Mode = "service_manager"
)

type Config struct {
	Mode         Mode                          `yaml:"mode,omitempty"`
	ID           string                        `yaml:"id,omitempty"`
	Execution    ExecutionConfig               `yaml:"execution"`
	StopTimeout  time.Duration                 `yaml:"stop_timeout,omitempty"`
	Files        processfile.ProcessFileConfig `yaml:"files,omitempty"`
	LaunchDaemon LaunchDaemonConfig            `yaml:"launch_daemon,omitempty"`
}

// ConnectionCanceller is the slice of the client API the service-manager
// variant needs to stop the client.
type ConnectionCanceller interface {
	ConnectionCancel(ctx context.Context) error
}

// NewHandle builds the variant selected by config.Mode.
func NewHandle(config Config, files *processfile.ProcessFileManager, api ConnectionCanceller, logger logging.Logger) (Handle, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Mode {
	case ModeServiceManager:
		installer := NewLaunchDaemonInstaller(config.LaunchDaemon, config.Execution, files, logger)
		return NewServiceManagerHandle(installer, api, logger), nil
	case ModeStandalone, "":
		installer := NewBinaryInstaller(config.Execution, files, logger)
		return NewStandaloneHandle(config, installer, files, logger), nil
	default:
		return nil, errors.NewValidationError("unsupported client mode: "+string(config.Mode), nil)
	}
}

func noopUnsubscribe() {}
