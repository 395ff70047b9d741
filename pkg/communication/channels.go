package communication

// Channels shared by the main side and the renderer.
const (
	ChannelRendererBooted           = "renderer-booted"
	ChannelTermsRequest             = "terms-request"
	ChannelTermsAnswered            = "terms-answered"
	ChannelTermsAccepted            = "terms-accepted"
	ChannelRendererShowErrorMessage = "renderer-show-error-message"
	ChannelProposalsUpdate          = "proposals-update"
	ChannelProposalUpdateRequest    = "proposal-update-request"
	ChannelClientLog                = "mysterium-client-log"
	ChannelClientReady              = "mysterium-client-ready"
	ChannelHealthcheckUp            = "healthcheck-up"
	ChannelHealthcheckDown          = "healthcheck-down"
	ChannelUserSettings             = "user-settings"
	ChannelUserSettingsRequest      = "user-settings-request"
	ChannelUserSettingsUpdate       = "user-settings-update"
	ChannelConnectionStatusChanged  = "connection-status-changed"
	ChannelCurrentIdentityChange    = "current-identity-change"
)

type TermsRequestDTO struct {
	HTMLContent string `json:"htmlContent"`
}

type TermsAnsweredDTO struct {
	IsAccepted bool `json:"isAccepted"`
}

type RendererShowErrorDTO struct {
	Message string `json:"message"`
}

type ClientLogDTO struct {
	Level string `json:"level"`
	Data  string `json:"data"`
}

type ConnectionStatusChangeDTO struct {
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

type CurrentIdentityChangeDTO struct {
	ID string `json:"id"`
}
