package shell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/bugreporting"
	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/fetchers"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/monitoring"
	"github.com/core-tools/hsu-vpnshell/pkg/notification"
	"github.com/core-tools/hsu-vpnshell/pkg/process"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/terms"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

type BootstrapStatus string

const (
	BootstrapSucceeded       BootstrapStatus = "succeeded"
	BootstrapProcessNotReady BootstrapStatus = "process_not_ready"
	BootstrapDeclined        BootstrapStatus = "declined"
	BootstrapFailed          BootstrapStatus = "failed"
)

type FailureReason string

const (
	ReasonWindowCreation  FailureReason = "window_creation"
	ReasonRendererLoad    FailureReason = "renderer_load"
	ReasonTermsAcceptance FailureReason = "terms_acceptance"
	ReasonInstallation    FailureReason = "installation"
)

// BootstrapError is the fatal failure of one bootstrap step.
type BootstrapError struct {
	Reason FailureReason
	Cause  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed, reason: %s: %v", e.Reason, e.Cause)
}

func (e *BootstrapError) Unwrap() error {
	return e.Cause
}

// BootstrapOutcome describes how far a bootstrap got. A successful bootstrap
// does not wait for the client to report healthy; AwaitReadiness does.
type BootstrapOutcome struct {
	Status BootstrapStatus
	Reason FailureReason

	readiness *events.Deferred[struct{}]
}

// AwaitReadiness blocks until the readiness gate settles and reports
// BootstrapSucceeded when the client came up within the startup threshold,
// BootstrapProcessNotReady otherwise. Outcomes other than success are
// returned unchanged.
func (o *BootstrapOutcome) AwaitReadiness(ctx context.Context) (BootstrapStatus, error) {
	if o.Status != BootstrapSucceeded || o.readiness == nil {
		return o.Status, nil
	}
	if _, err := o.readiness.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return o.Status, err
		}
		return BootstrapProcessNotReady, nil
	}
	return BootstrapSucceeded, nil
}

// HandleFactory creates the process handle for one session.
type HandleFactory func() (process.Handle, error)

// MonitorFactory creates the health monitor watching handle.
type MonitorFactory func(handle process.Handle) monitoring.HealthMonitor

type Options struct {
	WindowSizes      WindowsConfig
	StartupThreshold time.Duration

	Windows                window.Factory
	Terms                  terms.Terms
	NewHandle              HandleFactory
	NewMonitor             MonitorFactory
	Fetcher                fetchers.ProposalFetcher
	Settings               settings.Store
	BugReporter            bugreporting.BugReporter
	DisconnectNotification notification.Notification

	// Quit ends the application. It is called when the terms are declined.
	Quit func()
}

// Shell sequences the application bootstrap and owns the session it
// creates: window, bus, client process and health monitor.
type Shell struct {
	options Options
	logger  logging.Logger

	bootstrapMutex sync.Mutex

	mutex    sync.Mutex
	session  *session
	closed   bool
	inFlight int
}

func NewShell(options Options, logger logging.Logger) (*Shell, error) {
	switch {
	case options.Windows == nil:
		return nil, errors.NewValidationError("window factory is required", nil)
	case options.Terms == nil:
		return nil, errors.NewValidationError("terms are required", nil)
	case options.NewHandle == nil:
		return nil, errors.NewValidationError("process handle factory is required", nil)
	case options.NewMonitor == nil:
		return nil, errors.NewValidationError("health monitor factory is required", nil)
	case options.Fetcher == nil:
		return nil, errors.NewValidationError("proposal fetcher is required", nil)
	case options.Settings == nil:
		return nil, errors.NewValidationError("user settings store is required", nil)
	case options.DisconnectNotification == nil:
		return nil, errors.NewValidationError("disconnect notification is required", nil)
	}

	if options.WindowSizes.Terms == (window.Size{}) {
		options.WindowSizes.Terms = window.TermsSize
	}
	if options.WindowSizes.App == (window.Size{}) {
		options.WindowSizes.App = window.AppSize
	}
	if options.StartupThreshold <= 0 {
		options.StartupThreshold = DefaultStartupThreshold
	}
	if options.BugReporter == nil {
		options.BugReporter = bugreporting.Nop{}
	}
	if options.Quit == nil {
		options.Quit = func() {}
	}

	return &Shell{options: options, logger: logger}, nil
}

// Window returns the window of the current session, or nil before the
// first bootstrap.
func (s *Shell) Window() window.Window {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.window
}

// Bootstrapping reports whether a Bootstrap call is running or waiting to run.
func (s *Shell) Bootstrapping() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.inFlight > 0
}

// Bootstrap brings up the UI, the client process and the subsystems that
// depend on it. A previous session is torn down first. Fatal failures are
// returned as *BootstrapError; declined terms are an outcome, not an error.
func (s *Shell) Bootstrap(ctx context.Context) (*BootstrapOutcome, error) {
	s.mutex.Lock()
	s.inFlight++
	s.mutex.Unlock()
	defer func() {
		s.mutex.Lock()
		s.inFlight--
		s.mutex.Unlock()
	}()

	s.bootstrapMutex.Lock()
	defer s.bootstrapMutex.Unlock()

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil, errors.NewCancelledError("application is quitting", nil)
	}
	previous := s.session
	s.session = nil
	s.mutex.Unlock()

	if previous != nil {
		s.logger.Infof("Releasing previous session")
		s.release(ctx, previous)
	}

	s.logger.Infof("Bootstrapping application")
	showTerms := !s.areTermsAccepted()

	sess, err := s.openWindow(ctx, showTerms)
	if err != nil {
		return s.fail(ReasonWindowCreation, err)
	}
	defer sess.stopPropagation()

	if err := s.waitForRenderer(sess); err != nil {
		return s.fail(ReasonRendererLoad, err)
	}

	if showTerms {
		accepted, err := s.acceptTermsOrQuit(sess)
		if err != nil {
			return s.fail(ReasonTermsAcceptance, err)
		}
		if !accepted {
			return &BootstrapOutcome{Status: BootstrapDeclined}, nil
		}
		sess.window.Resize(s.options.WindowSizes.App)
	}

	handle, err := s.ensureInstallation(sess)
	if err != nil {
		return s.fail(ReasonInstallation, err)
	}

	if !s.startProcess(sess, handle) {
		return abandoned()
	}

	monitor, ok := s.subscribeMonitoring(sess, handle)
	if !ok {
		return abandoned()
	}
	readiness := s.onProcessReady(sess, monitor)
	s.subscribeProposals(sess, monitor)
	s.synchronizeUserSettings(sess)
	s.notifyOnDisconnect(sess)
	s.loadUserSettings()

	// first check runs inside Start; every UI handler must be in place
	s.startMonitoring(sess, monitor)

	return &BootstrapOutcome{Status: BootstrapSucceeded, readiness: readiness}, nil
}

// Teardown stops the current session for good: restart policy, monitor,
// proposal fetcher, then the client process. Failures are logged and
// reported, never returned. Bootstrap fails once Teardown has run.
func (s *Shell) Teardown(ctx context.Context) {
	s.mutex.Lock()
	s.closed = true
	sess := s.session
	s.session = nil
	s.mutex.Unlock()

	if sess == nil {
		return
	}
	s.logger.Infof("Tearing down application session")
	s.release(ctx, sess)
}

func (s *Shell) fail(reason FailureReason, cause error) (*BootstrapOutcome, error) {
	err := &BootstrapError{Reason: reason, Cause: cause}
	s.logger.Errorf("Bootstrap aborted, reason: %s, error: %v", reason, cause)
	return &BootstrapOutcome{Status: BootstrapFailed, Reason: reason}, err
}

// abandoned is the outcome of a bootstrap overtaken by teardown.
func abandoned() (*BootstrapOutcome, error) {
	return &BootstrapOutcome{Status: BootstrapFailed}, errors.NewCancelledError("application is quitting", nil)
}

func (s *Shell) areTermsAccepted() bool {
	s.logger.Infof("Checking terms cache")
	if err := s.options.Terms.Load(); err != nil {
		s.logger.Warnf("Failed to load terms, error: %v", err)
		s.options.BugReporter.CaptureErrorException(err)
		return false
	}
	return s.options.Terms.IsAccepted()
}

func (s *Shell) windowSize(showTerms bool) window.Size {
	if showTerms {
		return s.options.WindowSizes.Terms
	}
	return s.options.WindowSizes.App
}

// openWindow creates the window and its bus. The renderer-booted gate is
// armed before Open so an early signal is not lost.
func (s *Shell) openWindow(ctx context.Context, showTerms bool) (*session, error) {
	s.logger.Infof("Opening window")

	created, bus, err := s.options.Windows.Create(s.windowSize(showTerms))
	if err != nil {
		return nil, errors.NewInternalError("failed to open window", err)
	}

	sess := newSession(ctx, created, communication.NewMainCommunication(bus, logging.NewModuleLogger("communication", s.logger)))
	sess.rendererBooted = events.OnFirstEvent[struct{}](sess.communication.RendererBooted)
	sess.track(sess.communication.OnCurrentIdentityChange(func(change communication.CurrentIdentityChangeDTO) {
		s.options.BugReporter.SetUser(change.ID)
	}))

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		sess.stopPropagation()
		s.release(ctx, sess)
		return nil, errors.NewCancelledError("application is quitting", nil)
	}
	s.session = sess
	s.mutex.Unlock()

	if err := created.Open(); err != nil {
		sess.stopPropagation()
		sess.rendererBooted.Cancel()
		return nil, errors.NewInternalError("failed to open window", err)
	}
	return sess, nil
}

func (s *Shell) waitForRenderer(sess *session) error {
	s.logger.Infof("Waiting for window to be rendered")
	if _, err := sess.rendererBooted.Wait(sess.ctx); err != nil {
		return errors.NewInternalError("failed to load app", err)
	}
	return nil
}

// acceptTermsOrQuit runs the terms round-trip. Declining quits the
// application and reports false.
func (s *Shell) acceptTermsOrQuit(sess *session) (bool, error) {
	s.logger.Infof("Accepting terms")

	answer := events.OnFirstEvent[communication.TermsAnsweredDTO](sess.communication.OnTermsAnswered)
	sess.communication.SendTermsRequest(s.options.Terms.Content())

	dto, err := answer.Wait(sess.ctx)
	if err != nil {
		answer.Cancel()
		return false, err
	}
	if !dto.IsAccepted {
		s.logger.Infof("Terms were refused, quitting")
		s.options.Quit()
		return false, nil
	}

	sess.communication.SendTermsAccepted()
	if err := s.options.Terms.Accept(); err != nil {
		sess.communication.SendRendererShowErrorMessage(MessageTermsAcceptError)
		return false, errors.NewIOError("failed to persist terms acceptance", err)
	}
	return true, nil
}

// ensureInstallation creates the session's process handle and installs the
// client when it is missing or expired.
func (s *Shell) ensureInstallation(sess *session) (process.Handle, error) {
	handle, err := s.options.NewHandle()
	if err != nil {
		sess.communication.SendRendererShowErrorMessage(MessageProcessInstallationError)
		return nil, err
	}
	if !sess.setHandle(handle) {
		return nil, errors.NewCancelledError("application is quitting", nil)
	}

	needsInstallation, err := handle.NeedsInstallation()
	if err != nil {
		sess.communication.SendRendererShowErrorMessage(MessageProcessInstallationError)
		return nil, errors.NewInstallationError("failed to check VPN client installation", err)
	}
	if !needsInstallation {
		return handle, nil
	}

	s.logger.Infof("Installing VPN client")
	if err := handle.Install(sess.ctx); err != nil {
		message := MessageProcessInstallationError
		if errors.IsPermissionError(err) {
			message = MessageProcessInstallationPermissionError
		}
		sess.communication.SendRendererShowErrorMessage(message)
		return nil, err
	}
	return handle, nil
}

// startProcess launches the client and forwards its log lines to the UI and
// the bug reporter's log cache. Logging failures are reported, not returned.
func (s *Shell) startProcess(sess *session, handle process.Handle) bool {
	forward := func(level process.LogLevel) process.LogCallback {
		return func(line string) {
			sess.communication.SendClientLog(string(level), line)
			s.options.BugReporter.PushToLogCache(string(level), line)
		}
	}

	var subscriptions []events.Unsubscribe
	started := sess.whileActive(func() {
		s.logger.Infof("Starting VPN client process")
		handle.Start()

		if err := handle.SetupLogging(); err != nil {
			s.logger.Errorf("Failed to set up VPN client logging, error: %v", err)
			s.options.BugReporter.CaptureErrorException(err)
		}
		subscriptions = append(subscriptions,
			handle.OnLog(process.LogLevelInfo, forward(process.LogLevelInfo)),
			handle.OnLog(process.LogLevelError, forward(process.LogLevelError)),
		)
	})
	if !started {
		return false
	}
	sess.track(subscriptions...)
	return true
}

// subscribeMonitoring forwards transitions to the UI and restarts the
// client on every down transition. There is no backoff and no retry limit:
// a crash-looping client is restarted for as long as the session lives.
func (s *Shell) subscribeMonitoring(sess *session, handle process.Handle) (monitoring.HealthMonitor, bool) {
	monitor := s.options.NewMonitor(handle)
	if !sess.setMonitor(monitor) {
		return nil, false
	}

	sess.track(
		monitor.OnStatusUp(func() {
			s.logger.Infof("VPN client is up")
			sess.communication.SendClientUp()
		}),
		monitor.OnStatusDown(func() {
			s.logger.Infof("VPN client is down")
			sess.communication.SendClientDown()
		}),
	)

	sess.setRestartOnDown(monitor.OnStatusDown(func() {
		s.logger.Infof("Starting VPN client process, because it's currently down")
		handle.Start()
	}))
	return monitor, true
}

// onProcessReady tells the UI once the client first reports healthy. Missing
// the startup threshold shows an error but does not stop the bootstrap.
func (s *Shell) onProcessReady(sess *session, monitor monitoring.HealthMonitor) *events.Deferred[struct{}] {
	statusUp := func(callback func(struct{})) events.Unsubscribe {
		return monitor.OnStatusUp(func() { callback(struct{}{}) })
	}
	readiness := events.OnFirstEventOrTimeout[struct{}](statusUp, s.options.StartupThreshold)
	sess.setReadiness(readiness)

	go func() {
		_, err := readiness.Wait(context.Background())
		switch {
		case err == nil:
			s.logger.Infof("Notify that VPN client is ready")
			sess.communication.SendClientIsReady()
		case errors.IsTimeoutError(err):
			s.logger.Errorf("Failed to start VPN client process, error: %v", err)
			sess.communication.SendRendererShowErrorMessage(MessageProcessStartError)
		}
	}()
	return readiness
}

func (s *Shell) startMonitoring(sess *session, monitor monitoring.HealthMonitor) {
	var err error
	started := sess.whileActive(func() {
		s.logger.Infof("Starting VPN client monitoring")
		err = monitor.Start(sess.ctx)
	})
	if !started {
		s.logger.Debugf("Session released before monitoring started")
		return
	}
	if err != nil {
		s.logger.Errorf("Failed to start VPN client monitoring, error: %v", err)
		s.options.BugReporter.CaptureErrorException(err)
	}
}

func (s *Shell) loadUserSettings() {
	if err := s.options.Settings.Load(); err != nil {
		s.logger.Warnf("Failed to load user settings, error: %v", err)
		s.options.BugReporter.CaptureInfoException(err)
	}
}

// release stops everything a session started, in teardown order.
func (s *Shell) release(ctx context.Context, sess *session) {
	resources := sess.markReleased()

	if resources.restartOnDown != nil {
		resources.restartOnDown()
	}
	if resources.readiness != nil {
		resources.readiness.Cancel()
	}
	if resources.rendererBooted != nil {
		resources.rendererBooted.Cancel()
	}
	if resources.monitor != nil {
		resources.monitor.Stop()
	}
	s.options.Fetcher.Stop()
	for _, unsubscribe := range resources.subscriptions {
		unsubscribe()
	}

	if resources.handle != nil {
		if err := resources.handle.Stop(ctx); err != nil {
			s.logger.Errorf("Failed to stop VPN client process, error: %v", err)
			s.options.BugReporter.CaptureErrorException(err)
		}
	}

	sess.cancel()
	sess.window.Close()
}
