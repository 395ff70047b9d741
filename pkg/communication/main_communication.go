package communication

import (
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
)

// MainCommunication is the shell's typed view of the bus. Sends are
// fire-and-forget; delivery failures are logged.
type MainCommunication struct {
	bus    MessageBus
	logger logging.Logger
}

func NewMainCommunication(bus MessageBus, logger logging.Logger) *MainCommunication {
	return &MainCommunication{bus: bus, logger: logger}
}

func (c *MainCommunication) SendTermsRequest(htmlContent string) {
	send(c.bus, ChannelTermsRequest, TermsRequestDTO{HTMLContent: htmlContent}, c.logger)
}

func (c *MainCommunication) SendTermsAccepted() {
	send(c.bus, ChannelTermsAccepted, nil, c.logger)
}

func (c *MainCommunication) SendRendererShowErrorMessage(message string) {
	send(c.bus, ChannelRendererShowErrorMessage, RendererShowErrorDTO{Message: message}, c.logger)
}

func (c *MainCommunication) SendProposals(proposals []tequilapi.Proposal) {
	send(c.bus, ChannelProposalsUpdate, proposals, c.logger)
}

func (c *MainCommunication) SendClientLog(level, data string) {
	send(c.bus, ChannelClientLog, ClientLogDTO{Level: level, Data: data}, c.logger)
}

func (c *MainCommunication) SendClientIsReady() {
	send(c.bus, ChannelClientReady, nil, c.logger)
}

func (c *MainCommunication) SendClientUp() {
	send(c.bus, ChannelHealthcheckUp, nil, c.logger)
}

func (c *MainCommunication) SendClientDown() {
	send(c.bus, ChannelHealthcheckDown, nil, c.logger)
}

func (c *MainCommunication) SendUserSettings(userSettings settings.UserSettings) {
	send(c.bus, ChannelUserSettings, userSettings, c.logger)
}

func (c *MainCommunication) OnRendererBooted(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelRendererBooted, c.logger, func(struct{}) { callback() })
}

// RendererBooted adapts OnRendererBooted for the event gate.
func (c *MainCommunication) RendererBooted(callback func(struct{})) events.Unsubscribe {
	return subscribe(c.bus, ChannelRendererBooted, c.logger, callback)
}

func (c *MainCommunication) OnTermsAnswered(callback func(TermsAnsweredDTO)) events.Unsubscribe {
	return subscribe(c.bus, ChannelTermsAnswered, c.logger, callback)
}

func (c *MainCommunication) OnProposalUpdateRequest(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelProposalUpdateRequest, c.logger, func(struct{}) { callback() })
}

func (c *MainCommunication) OnUserSettingsRequest(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelUserSettingsRequest, c.logger, func(struct{}) { callback() })
}

func (c *MainCommunication) OnUserSettingsUpdate(callback func(settings.UserSettings)) events.Unsubscribe {
	return subscribe(c.bus, ChannelUserSettingsUpdate, c.logger, callback)
}

func (c *MainCommunication) OnConnectionStatusChange(callback func(ConnectionStatusChangeDTO)) events.Unsubscribe {
	return subscribe(c.bus, ChannelConnectionStatusChanged, c.logger, callback)
}

func (c *MainCommunication) OnCurrentIdentityChange(callback func(CurrentIdentityChangeDTO)) events.Unsubscribe {
	return subscribe(c.bus, ChannelCurrentIdentityChange, c.logger, callback)
}
