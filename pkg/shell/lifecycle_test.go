package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) Bootstrap(ctx context.Context) (*BootstrapOutcome, error) {
	args := m.Called(ctx)
	outcome, _ := args.Get(0).(*BootstrapOutcome)
	return outcome, args.Error(1)
}

func (m *mockOrchestrator) Teardown(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockOrchestrator) Bootstrapping() bool {
	return m.Called().Bool(0)
}

func (m *mockOrchestrator) Window() window.Window {
	w, _ := m.Called().Get(0).(window.Window)
	return w
}

func newTestController(platform string) (*Controller, *mockOrchestrator, *fakeReporter, *int) {
	orchestrator := &mockOrchestrator{}
	reporter := &fakeReporter{}
	quits := 0
	controller := NewControllerForPlatform(orchestrator, func() { quits++ }, platform, reporter, logging.NewNopLogger())
	return controller, orchestrator, reporter, &quits
}

func TestController_ReadyBootstraps(t *testing.T) {
	controller, orchestrator, reporter, _ := newTestController("linux")
	orchestrator.On("Bootstrap", mock.Anything).Return(&BootstrapOutcome{Status: BootstrapSucceeded}, nil).Once()

	controller.Dispatch(context.Background(), EventReady)

	orchestrator.AssertExpectations(t)
	reported, _ := reporter.counts()
	assert.Zero(t, reported)
}

func TestController_BootstrapErrorIsReported(t *testing.T) {
	controller, orchestrator, reporter, _ := newTestController("linux")
	failure := &BootstrapError{Reason: ReasonInstallation, Cause: errors.NewInstallationError("load failed", nil)}
	orchestrator.On("Bootstrap", mock.Anything).Return(&BootstrapOutcome{Status: BootstrapFailed, Reason: ReasonInstallation}, failure).Once()

	assert.NotPanics(t, func() { controller.Dispatch(context.Background(), EventReady) })

	reported, _ := reporter.counts()
	assert.Equal(t, 1, reported)
	orchestrator.AssertExpectations(t)
}

func TestController_BootstrapPanicIsReported(t *testing.T) {
	controller, orchestrator, reporter, _ := newTestController("linux")
	orchestrator.On("Bootstrap", mock.Anything).Run(func(mock.Arguments) { panic("window toolkit crashed") }).Once()

	assert.NotPanics(t, func() { controller.Dispatch(context.Background(), EventReady) })

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	if assert.Len(t, reporter.errors, 1) {
		assert.True(t, errors.IsInternalError(reporter.errors[0]))
		assert.Contains(t, reporter.errors[0].Error(), "window toolkit crashed")
	}
}

func TestController_Activate(t *testing.T) {
	t.Run("no_window", func(t *testing.T) {
		controller, orchestrator, _, _ := newTestController("darwin")
		orchestrator.On("Bootstrapping").Return(false).Once()
		orchestrator.On("Window").Return(nil).Once()
		orchestrator.On("Bootstrap", mock.Anything).Return(&BootstrapOutcome{Status: BootstrapSucceeded}, nil).Once()

		controller.Dispatch(context.Background(), EventActivate)
		orchestrator.AssertExpectations(t)
	})

	t.Run("closed_window", func(t *testing.T) {
		controller, orchestrator, _, _ := newTestController("darwin")
		orchestrator.On("Bootstrapping").Return(false).Once()
		w := &fakeWindow{opened: true, closed: true}
		orchestrator.On("Window").Return(w).Once()
		orchestrator.On("Bootstrap", mock.Anything).Return(&BootstrapOutcome{Status: BootstrapSucceeded}, nil).Once()

		controller.Dispatch(context.Background(), EventActivate)
		orchestrator.AssertExpectations(t)
		assert.Zero(t, w.shown)
	})

	t.Run("existing_window", func(t *testing.T) {
		controller, orchestrator, _, _ := newTestController("darwin")
		orchestrator.On("Bootstrapping").Return(false).Once()
		w := &fakeWindow{opened: true}
		orchestrator.On("Window").Return(w).Once()

		controller.Dispatch(context.Background(), EventActivate)
		orchestrator.AssertExpectations(t)
		orchestrator.AssertNotCalled(t, "Bootstrap", mock.Anything)
		assert.Equal(t, 1, w.shown)
	})
}

func TestController_ActivateDuringBootstrapIsIgnored(t *testing.T) {
	controller, orchestrator, _, _ := newTestController("darwin")
	orchestrator.On("Bootstrapping").Return(true).Once()

	controller.Dispatch(context.Background(), EventActivate)

	orchestrator.AssertExpectations(t)
	orchestrator.AssertNotCalled(t, "Window")
	orchestrator.AssertNotCalled(t, "Bootstrap", mock.Anything)
}

func TestController_WindowAllClosed(t *testing.T) {
	tests := []struct {
		platform string
		quits    int
	}{
		{"linux", 1},
		{"windows", 1},
		{"darwin", 0},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			controller, orchestrator, _, quits := newTestController(tt.platform)
			controller.Dispatch(context.Background(), EventWindowAllClosed)
			assert.Equal(t, tt.quits, *quits)
			orchestrator.AssertNotCalled(t, "Teardown", mock.Anything)
		})
	}
}

func TestController_BeforeQuitMarksWindow(t *testing.T) {
	controller, orchestrator, _, _ := newTestController("linux")
	w := &fakeWindow{opened: true}
	orchestrator.On("Window").Return(w).Once()

	controller.Dispatch(context.Background(), EventBeforeQuit)
	assert.True(t, w.willQuit)

	orchestrator.On("Window").Return(nil).Once()
	assert.NotPanics(t, func() { controller.Dispatch(context.Background(), EventBeforeQuit) })
	orchestrator.AssertExpectations(t)
}

func TestController_WillQuitTearsDown(t *testing.T) {
	controller, orchestrator, _, _ := newTestController("linux")
	orchestrator.On("Teardown", mock.Anything).Once()

	controller.Dispatch(context.Background(), EventWillQuit)
	orchestrator.AssertExpectations(t)
	orchestrator.AssertNotCalled(t, "Bootstrap", mock.Anything)
}

func TestLifecycleEvent_String(t *testing.T) {
	assert.Equal(t, "ready", EventReady.String())
	assert.Equal(t, "will-quit", EventWillQuit.String())
	assert.Equal(t, "unknown", LifecycleEvent(42).String())
}
