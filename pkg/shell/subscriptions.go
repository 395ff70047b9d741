package shell

import (
	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/monitoring"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
)

// subscribeProposals wires the proposal fetcher to the UI. The fetcher only
// polls while the client is up.
func (s *Shell) subscribeProposals(sess *session, monitor monitoring.HealthMonitor) {
	fetcher := s.options.Fetcher

	sess.track(
		fetcher.OnFetchedProposals(sess.communication.SendProposals),
		sess.communication.OnProposalUpdateRequest(func() {
			// errors reach OnFetchingError
			fetcher.Fetch(sess.ctx)
		}),
		fetcher.OnFetchingError(func(err error) {
			s.logger.Errorf("Proposal fetching failed, error: %v", err)
			s.options.BugReporter.CaptureErrorException(err)
		}),
		monitor.OnStatusUp(func() {
			s.logger.Infof("Starting proposal fetcher")
			fetcher.Start()
		}),
		monitor.OnStatusDown(fetcher.Stop),
	)
}

// synchronizeUserSettings answers settings requests from the UI and
// persists the updates it sends.
func (s *Shell) synchronizeUserSettings(sess *session) {
	store := s.options.Settings

	sess.track(
		sess.communication.OnUserSettingsRequest(func() {
			sess.communication.SendUserSettings(store.Get())
		}),
		sess.communication.OnUserSettingsUpdate(func(userSettings settings.UserSettings) {
			store.Set(userSettings)
			if err := store.Save(); err != nil {
				s.logger.Errorf("Failed to save user settings, error: %v", err)
				s.options.BugReporter.CaptureErrorException(err)
			}
		}),
	)
}

func (s *Shell) notifyOnDisconnect(sess *session) {
	sess.track(sess.communication.OnConnectionStatusChange(func(change communication.ConnectionStatusChangeDTO) {
		if shouldNotifyDisconnect(s.options.Settings.Get(), change) {
			s.logger.Infof("Connection lost, showing notification")
			s.options.DisconnectNotification.Show()
		}
	}))
}

// shouldNotifyDisconnect holds only for an opted-in user whose connection
// went from Connected to NotConnected.
func shouldNotifyDisconnect(userSettings settings.UserSettings, change communication.ConnectionStatusChangeDTO) bool {
	return userSettings.ShowDisconnectNotifications &&
		change.OldStatus == string(tequilapi.StatusConnected) &&
		change.NewStatus == string(tequilapi.StatusNotConnected)
}
