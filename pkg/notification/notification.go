package notification

import (
	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = "/org/freedesktop/Notifications"
	notifyMethod      = "org.freedesktop.Notifications.Notify"
)

type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

type Config struct {
	AppName string  `yaml:"app_name,omitempty"`
	Title   string  `yaml:"title,omitempty"`
	Body    string  `yaml:"body,omitempty"`
	Icon    string  `yaml:"icon,omitempty"`
	Timeout int32   `yaml:"timeout_ms,omitempty"`
	Urgency Urgency `yaml:"urgency,omitempty"`
}

// DefaultDisconnectConfig is the notification shown when the VPN drops.
func DefaultDisconnectConfig() Config {
	return Config{
		AppName: "VPN Shell",
		Title:   "VPN Disconnected",
		Body:    "You have been disconnected from the VPN.",
		Icon:    "network-vpn-disconnected",
		Timeout: 5000,
		Urgency: UrgencyNormal,
	}
}

type Notification interface {
	Show()
}

// Sender delivers one desktop notification.
type Sender interface {
	Notify(config Config) error
}

// DBusSender talks to the freedesktop notification daemon on the session bus.
type DBusSender struct{}

func (DBusSender) Notify(config Config) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return errors.NewNetworkError("failed to connect to session bus", err)
	}
	defer conn.Close()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(config.Urgency)),
	}
	call := conn.Object(notificationsDest, dbus.ObjectPath(notificationsPath)).Call(
		notifyMethod, 0,
		config.AppName,
		uint32(0),
		config.Icon,
		config.Title,
		config.Body,
		[]string{},
		hints,
		config.Timeout,
	)
	if call.Err != nil {
		return errors.NewNetworkError("notification daemon rejected the notification", call.Err)
	}
	return nil
}

// DesktopNotification shows a fixed notification. When no notification
// daemon is reachable the text is logged instead.
type DesktopNotification struct {
	config Config
	sender Sender
	logger logging.Logger
}

func NewDesktopNotification(config Config, sender Sender, logger logging.Logger) *DesktopNotification {
	if sender == nil {
		sender = DBusSender{}
	}
	return &DesktopNotification{config: config, sender: sender, logger: logger}
}

func (n *DesktopNotification) Show() {
	if err := n.sender.Notify(n.config); err != nil {
		n.logger.Warnf("Desktop notification failed, error: %v", err)
		n.logger.Infof("%s: %s", n.config.Title, n.config.Body)
	}
}
