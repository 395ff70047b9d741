package shell

import (
	"context"
	"fmt"
	"runtime"

	"github.com/core-tools/hsu-vpnshell/pkg/bugreporting"
	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

type LifecycleEvent int

const (
	EventReady LifecycleEvent = iota
	EventActivate
	EventWindowAllClosed
	EventBeforeQuit
	EventWillQuit
)

func (e LifecycleEvent) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventActivate:
		return "activate"
	case EventWindowAllClosed:
		return "window-all-closed"
	case EventBeforeQuit:
		return "before-quit"
	case EventWillQuit:
		return "will-quit"
	default:
		return "unknown"
	}
}

// Orchestrator is the part of Shell the controller drives.
type Orchestrator interface {
	Bootstrap(ctx context.Context) (*BootstrapOutcome, error)
	Teardown(ctx context.Context)
	Window() window.Window
	Bootstrapping() bool
}

// platformStaysResident is the platform where closing every window keeps
// the application running.
const platformStaysResident = "darwin"

// Controller maps application lifecycle events onto the orchestrator.
// Dispatch never panics and never returns errors; failures are logged and
// reported.
type Controller struct {
	orchestrator Orchestrator
	quit         func()
	platform     string
	bugReporter  bugreporting.BugReporter
	logger       logging.Logger
}

func NewController(orchestrator Orchestrator, quit func(), bugReporter bugreporting.BugReporter, logger logging.Logger) *Controller {
	return NewControllerForPlatform(orchestrator, quit, runtime.GOOS, bugReporter, logger)
}

func NewControllerForPlatform(orchestrator Orchestrator, quit func(), platform string, bugReporter bugreporting.BugReporter, logger logging.Logger) *Controller {
	if bugReporter == nil {
		bugReporter = bugreporting.Nop{}
	}
	return &Controller{
		orchestrator: orchestrator,
		quit:         quit,
		platform:     platform,
		bugReporter:  bugReporter,
		logger:       logger,
	}
}

func (c *Controller) Dispatch(ctx context.Context, event LifecycleEvent) {
	c.logger.Debugf("Lifecycle event: %s", event)

	switch event {
	case EventReady:
		c.logger.Infof("Application launch")
		c.bootstrap(ctx, "Application launch failed")

	case EventActivate:
		c.logger.Infof("Application activation")
		if c.orchestrator.Bootstrapping() {
			c.logger.Infof("Bootstrap in progress, ignoring activation")
			return
		}
		w := c.orchestrator.Window()
		if w == nil || !w.Exists() {
			c.bootstrap(ctx, "Application activation failed")
			return
		}
		w.Show()

	case EventWindowAllClosed:
		if c.platform != platformStaysResident {
			c.quit()
		}

	case EventBeforeQuit:
		if w := c.orchestrator.Window(); w != nil {
			w.SetWillQuitApp(true)
		}

	case EventWillQuit:
		c.orchestrator.Teardown(ctx)

	default:
		c.logger.Warnf("Ignoring unknown lifecycle event: %d", int(event))
	}
}

func (c *Controller) bootstrap(ctx context.Context, failure string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := errors.NewInternalError(fmt.Sprintf("bootstrap panicked: %v", recovered), nil)
			c.logger.Errorf("%s, error: %v", failure, err)
			c.bugReporter.CaptureErrorException(err)
		}
	}()

	outcome, err := c.orchestrator.Bootstrap(ctx)
	if err != nil {
		c.logger.Errorf("%s, error: %v", failure, err)
		c.bugReporter.CaptureErrorException(err)
		return
	}
	c.logger.Infof("Bootstrap finished, status: %s", outcome.Status)
}
