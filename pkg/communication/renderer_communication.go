package communication

import (
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
)

// RendererCommunication is the UI's typed view of the bus.
type RendererCommunication struct {
	bus    MessageBus
	logger logging.Logger
}

func NewRendererCommunication(bus MessageBus, logger logging.Logger) *RendererCommunication {
	return &RendererCommunication{bus: bus, logger: logger}
}

func (c *RendererCommunication) SendRendererBooted() {
	send(c.bus, ChannelRendererBooted, nil, c.logger)
}

func (c *RendererCommunication) SendTermsAnswered(accepted bool) {
	send(c.bus, ChannelTermsAnswered, TermsAnsweredDTO{IsAccepted: accepted}, c.logger)
}

func (c *RendererCommunication) SendProposalUpdateRequest() {
	send(c.bus, ChannelProposalUpdateRequest, nil, c.logger)
}

func (c *RendererCommunication) SendUserSettingsRequest() {
	send(c.bus, ChannelUserSettingsRequest, nil, c.logger)
}

func (c *RendererCommunication) SendUserSettingsUpdate(userSettings settings.UserSettings) {
	send(c.bus, ChannelUserSettingsUpdate, userSettings, c.logger)
}

func (c *RendererCommunication) SendConnectionStatusChange(oldStatus, newStatus tequilapi.ConnectionStatus) {
	send(c.bus, ChannelConnectionStatusChanged, ConnectionStatusChangeDTO{OldStatus: string(oldStatus), NewStatus: string(newStatus)}, c.logger)
}

func (c *RendererCommunication) SendCurrentIdentityChange(id string) {
	send(c.bus, ChannelCurrentIdentityChange, CurrentIdentityChangeDTO{ID: id}, c.logger)
}

func (c *RendererCommunication) OnTermsRequest(callback func(TermsRequestDTO)) events.Unsubscribe {
	return subscribe(c.bus, ChannelTermsRequest, c.logger, callback)
}

func (c *RendererCommunication) OnTermsAccepted(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelTermsAccepted, c.logger, func(struct{}) { callback() })
}

func (c *RendererCommunication) OnShowErrorMessage(callback func(RendererShowErrorDTO)) events.Unsubscribe {
	return subscribe(c.bus, ChannelRendererShowErrorMessage, c.logger, callback)
}

func (c *RendererCommunication) OnProposals(callback func([]tequilapi.Proposal)) events.Unsubscribe {
	return subscribe(c.bus, ChannelProposalsUpdate, c.logger, callback)
}

func (c *RendererCommunication) OnClientLog(callback func(ClientLogDTO)) events.Unsubscribe {
	return subscribe(c.bus, ChannelClientLog, c.logger, callback)
}

func (c *RendererCommunication) OnClientReady(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelClientReady, c.logger, func(struct{}) { callback() })
}

func (c *RendererCommunication) OnClientUp(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelHealthcheckUp, c.logger, func(struct{}) { callback() })
}

func (c *RendererCommunication) OnClientDown(callback func()) events.Unsubscribe {
	return subscribe(c.bus, ChannelHealthcheckDown, c.logger, func(struct{}) { callback() })
}

func (c *RendererCommunication) OnUserSettings(callback func(settings.UserSettings)) events.Unsubscribe {
	return subscribe(c.bus, ChannelUserSettings, c.logger, callback)
}
