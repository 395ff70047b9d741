package shell

// Texts shown to the user through the renderer error channel.
const (
	MessageTermsAcceptError                   = "Failed to accept terms."
	MessageProcessInstallationError           = "Failed to install the VPN client."
	MessageProcessInstallationPermissionError = "Failed to install the VPN client: administrator permission was denied."
	MessageProcessStartError                  = "Failed to start the VPN client."
)
