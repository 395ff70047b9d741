package window

import (
	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/errors"
)

type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

var (
	// TermsSize fits the terms of service view.
	TermsSize = Size{Width: 800, Height: 650}
	// AppSize fits the main application view.
	AppSize = Size{Width: 650, Height: 650}
)

// Window is the application window hosting the renderer.
//
// SetWillQuitApp marks that the next close belongs to an intentional quit,
// so the window must not hide itself instead of closing.
type Window interface {
	Open() error
	Resize(size Size)
	Exists() bool
	Show()
	SetWillQuitApp(willQuit bool)
	Close()
}

// Factory creates a window together with the main-side end of the bus
// connecting the shell to the window's renderer.
type Factory interface {
	Create(size Size) (Window, communication.MessageBus, error)
}

type FactoryFunc func(size Size) (Window, communication.MessageBus, error)

func (f FactoryFunc) Create(size Size) (Window, communication.MessageBus, error) {
	return f(size)
}

func ValidateSize(size Size) error {
	if size.Width <= 0 || size.Height <= 0 {
		return errors.NewValidationError("window size must be positive", nil).
			WithContext("width", size.Width).
			WithContext("height", size.Height)
	}
	return nil
}
