package process

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
)

type mockCanceller struct {
	mock.Mock
}

func (m *mockCanceller) ConnectionCancel(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestServiceManagerHandle_Stop(t *testing.T) {
	tests := []struct {
		name      string
		cancelErr error
		shouldErr bool
	}{
		{"cancelled", nil, false},
		{"no_connection", errors.NewConflictError("no connection exists", nil), false},
		{"api_down", errors.NewNetworkError("connection refused", fmt.Errorf("dial tcp")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockCanceller{}
			api.On("ConnectionCancel", mock.Anything).Return(tt.cancelErr).Once()

			handle := NewServiceManagerHandle(nil, api, logging.NewNopLogger())
			err := handle.Stop(context.Background())

			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsProcessError(err))
			} else {
				assert.NoError(t, err)
			}
			api.AssertExpectations(t)
		})
	}
}

func TestServiceManagerHandle_StartAndLoggingAreNoops(t *testing.T) {
	api := &mockCanceller{}
	handle := NewServiceManagerHandle(nil, api, logging.NewNopLogger())

	assert.NotPanics(t, handle.Start)
	assert.NoError(t, handle.SetupLogging())
	unsubscribe := handle.OnLog(LogLevelInfo, func(string) { t.Fatal("no logs expected") })
	assert.NotPanics(t, func() { unsubscribe() })
	api.AssertNotCalled(t, "ConnectionCancel", mock.Anything)
}

func TestNewHandle_SelectsVariant(t *testing.T) {
	files := processfile.NewProcessFileManager(processfile.ProcessFileConfig{BaseDirectory: t.TempDir()}, logging.NewNopLogger())

	standalone, err := NewHandle(Config{Execution: ExecutionConfig{ExecutablePath: "/usr/bin/vpnclient"}}, files, &mockCanceller{}, logging.NewNopLogger())
	assert.NoError(t, err)
	assert.IsType(t, &StandaloneHandle{}, standalone)
	assert.IsType(t, &BinaryInstaller{}, standalone.(*StandaloneHandle).Installer)

	managed, err := NewHandle(Config{Mode: ModeServiceManager}, files, &mockCanceller{}, logging.NewNopLogger())
	assert.NoError(t, err)
	assert.IsType(t, &ServiceManagerHandle{}, managed)
	assert.IsType(t, &LaunchDaemonInstaller{}, managed.(*ServiceManagerHandle).Installer)

	_, err = NewHandle(Config{Mode: "docker"}, files, &mockCanceller{}, logging.NewNopLogger())
	assert.Error(t, err)
}
