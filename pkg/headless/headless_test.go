package headless

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

type scriptedStatus struct {
	mutex    sync.Mutex
	statuses []tequilapi.ConnectionStatus
}

func (s *scriptedStatus) ConnectionStatus(ctx context.Context) (*tequilapi.ConnectionStatusResponse, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.statuses) == 0 {
		return nil, errors.NewNetworkError("client not reachable", nil)
	}
	status := s.statuses[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
	}
	return &tequilapi.ConnectionStatusResponse{Status: status}, nil
}

func openWindow(t *testing.T, config Config, status StatusSource) (*Window, *communication.MainCommunication, chan struct{}) {
	t.Helper()
	factory := NewFactory(config, status, nil, logging.NewNopLogger())
	created, bus, err := factory.Create(window.TermsSize)
	require.NoError(t, err)

	main := communication.NewMainCommunication(bus, logging.NewNopLogger())
	booted := make(chan struct{}, 1)
	main.OnRendererBooted(func() { booted <- struct{}{} })

	w := created.(*Window)
	t.Cleanup(w.Close)
	require.NoError(t, w.Open())
	return w, main, booted
}

func TestWindow_OpenSendsRendererBooted(t *testing.T) {
	w, _, booted := openWindow(t, Config{}, nil)

	select {
	case <-booted:
	case <-time.After(time.Second):
		t.Fatal("renderer-booted not sent")
	}
	assert.True(t, w.Exists())

	w.Resize(window.AppSize)
	assert.Equal(t, window.AppSize, w.Size())

	w.SetWillQuitApp(true)
	assert.True(t, w.WillQuitApp())

	w.Close()
	assert.False(t, w.Exists())
}

func TestWindow_AnswersTerms(t *testing.T) {
	for _, accept := range []bool{true, false} {
		_, main, _ := openWindow(t, Config{AcceptTerms: accept}, nil)

		answers := make(chan bool, 1)
		main.OnTermsAnswered(func(dto communication.TermsAnsweredDTO) { answers <- dto.IsAccepted })
		main.SendTermsRequest("<p>terms</p>")

		select {
		case answer := <-answers:
			assert.Equal(t, accept, answer)
		case <-time.After(time.Second):
			t.Fatal("terms not answered")
		}
	}
}

func TestWindow_PublishesStatusTransitions(t *testing.T) {
	status := &scriptedStatus{statuses: []tequilapi.ConnectionStatus{
		tequilapi.StatusNotConnected,
		tequilapi.StatusNotConnected,
		tequilapi.StatusNotConnected,
		tequilapi.StatusNotConnected,
		tequilapi.StatusConnected,
		tequilapi.StatusConnected,
		tequilapi.StatusNotConnected,
	}}
	_, main, _ := openWindow(t, Config{StatusPollInterval: 5 * time.Millisecond}, status)

	changes := make(chan communication.ConnectionStatusChangeDTO, 4)
	main.OnConnectionStatusChange(func(dto communication.ConnectionStatusChangeDTO) { changes <- dto })

	expected := []communication.ConnectionStatusChangeDTO{
		{OldStatus: "NotConnected", NewStatus: "Connected"},
		{OldStatus: "Connected", NewStatus: "NotConnected"},
	}
	for _, want := range expected {
		select {
		case got := <-changes:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("status change not published")
		}
	}
}

func TestWindow_ClientReadyRequestsSettingsAndAnnouncesIdentity(t *testing.T) {
	w, main, _ := openWindow(t, Config{Identity: "0xabc"}, nil)

	identities := make(chan string, 1)
	main.OnCurrentIdentityChange(func(dto communication.CurrentIdentityChangeDTO) { identities <- dto.ID })
	main.OnUserSettingsRequest(func() {
		main.SendUserSettings(settings.UserSettings{ShowDisconnectNotifications: true})
	})

	main.SendClientIsReady()

	select {
	case id := <-identities:
		assert.Equal(t, "0xabc", id)
	case <-time.After(time.Second):
		t.Fatal("identity not announced")
	}
	assert.Eventually(t, func() bool { return w.UserSettings().ShowDisconnectNotifications }, time.Second, 5*time.Millisecond)
}

func TestFactory_RejectsInvalidSize(t *testing.T) {
	_, _, err := NewFactory(Config{}, nil, nil, logging.NewNopLogger()).Create(window.Size{})
	assert.True(t, errors.IsValidationError(err))
}
