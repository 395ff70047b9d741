package headless

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

const DefaultStatusPollInterval = 2 * time.Second

type Config struct {
	// AcceptTerms is the answer given to every terms request.
	AcceptTerms        bool          `yaml:"accept_terms"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval,omitempty"`
	// Identity, when set, is announced once the client is ready.
	Identity string `yaml:"identity,omitempty"`
}

type StatusSource interface {
	ConnectionStatus(ctx context.Context) (*tequilapi.ConnectionStatusResponse, error)
}

// Factory opens headless windows, each with its own in-process bus.
type Factory struct {
	config  Config
	status  StatusSource
	onPanic events.PanicHandler
	logger  logging.Logger
}

func NewFactory(config Config, status StatusSource, onPanic events.PanicHandler, logger logging.Logger) *Factory {
	if config.StatusPollInterval <= 0 {
		config.StatusPollInterval = DefaultStatusPollInterval
	}
	return &Factory{config: config, status: status, onPanic: onPanic, logger: logger}
}

func (f *Factory) Create(size window.Size) (window.Window, communication.MessageBus, error) {
	if err := window.ValidateSize(size); err != nil {
		return nil, nil, err
	}
	bus := communication.NewLocalBus(f.onPanic, logging.NewModuleLogger("bus", f.logger))
	return newWindow(f.config, size, bus, f.status, f.logger), bus.Main(), nil
}

// Window stands in for a browser window: Open boots a renderer that talks
// to the shell over the bus and logs what a UI would display.
type Window struct {
	config Config
	bus    *communication.LocalBus
	status StatusSource
	logger logging.Logger

	mutex        sync.Mutex
	size         window.Size
	opened       bool
	closed       bool
	willQuitApp  bool
	renderer     *communication.RendererCommunication
	unsubscribes []events.Unsubscribe
	userSettings settings.UserSettings

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newWindow(config Config, size window.Size, bus *communication.LocalBus, status StatusSource, logger logging.Logger) *Window {
	return &Window{
		config: config,
		bus:    bus,
		status: status,
		logger: logger,
		size:   size,
	}
}

func (w *Window) Open() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.opened {
		return nil
	}
	w.opened = true
	w.logger.Infof("Opening headless window, size: %dx%d", w.size.Width, w.size.Height)

	w.renderer = communication.NewRendererCommunication(w.bus.Renderer(), w.logger)
	w.unsubscribes = append(w.unsubscribes,
		w.renderer.OnTermsRequest(w.answerTerms),
		w.renderer.OnTermsAccepted(func() { w.logger.Infof("Terms accepted") }),
		w.renderer.OnShowErrorMessage(func(dto communication.RendererShowErrorDTO) {
			w.logger.Errorf("UI error: %s", dto.Message)
		}),
		w.renderer.OnProposals(func(proposals []tequilapi.Proposal) {
			w.logger.Debugf("Received proposals, count: %d", len(proposals))
		}),
		w.renderer.OnClientLog(func(dto communication.ClientLogDTO) {
			w.logger.Debugf("client %s: %s", dto.Level, dto.Data)
		}),
		w.renderer.OnClientReady(w.clientReady),
		w.renderer.OnClientUp(func() { w.logger.Infof("VPN client is up") }),
		w.renderer.OnClientDown(func() { w.logger.Warnf("VPN client is down") }),
		w.renderer.OnUserSettings(w.storeUserSettings),
	)

	if w.status != nil {
		w.stopChan = make(chan struct{})
		w.wg.Add(1)
		go w.pollStatus(w.stopChan)
	}

	w.renderer.SendRendererBooted()
	return nil
}

func (w *Window) Resize(size window.Size) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.logger.Debugf("Resizing headless window, size: %dx%d", size.Width, size.Height)
	w.size = size
}

func (w *Window) Size() window.Size {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.size
}

func (w *Window) Exists() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.opened && !w.closed
}

func (w *Window) Show() {
	w.logger.Infof("Bringing headless window to front")
}

func (w *Window) SetWillQuitApp(willQuit bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.willQuitApp = willQuit
}

func (w *Window) WillQuitApp() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.willQuitApp
}

// UserSettings returns the last settings the shell sent to the renderer.
func (w *Window) UserSettings() settings.UserSettings {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.userSettings
}

func (w *Window) Close() {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return
	}
	w.closed = true
	stopChan := w.stopChan
	unsubscribes := w.unsubscribes
	w.unsubscribes = nil
	w.mutex.Unlock()

	if stopChan != nil {
		close(stopChan)
		w.wg.Wait()
	}
	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	w.bus.Close()
	w.logger.Infof("Headless window closed")
}

func (w *Window) answerTerms(request communication.TermsRequestDTO) {
	w.logger.Infof("Terms requested, content length: %d, answering accepted: %t", len(request.HTMLContent), w.config.AcceptTerms)
	w.renderer.SendTermsAnswered(w.config.AcceptTerms)
}

func (w *Window) clientReady() {
	w.logger.Infof("VPN client is ready")
	w.renderer.SendUserSettingsRequest()
	if w.config.Identity != "" {
		w.renderer.SendCurrentIdentityChange(w.config.Identity)
	}
}

func (w *Window) storeUserSettings(userSettings settings.UserSettings) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.userSettings = userSettings
}

func (w *Window) pollStatus(stopChan chan struct{}) {
	defer w.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopChan
		cancel()
	}()

	ticker := time.NewTicker(w.config.StatusPollInterval)
	defer ticker.Stop()

	last := tequilapi.StatusNotConnected
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			response, err := w.status.ConnectionStatus(ctx)
			if err != nil {
				w.logger.Debugf("Connection status unavailable, error: %v", err)
				continue
			}
			if response.Status != last {
				w.logger.Infof("Connection status changed, old: %s, new: %s", last, response.Status)
				w.renderer.SendConnectionStatusChange(last, response.Status)
				last = response.Status
			}
		}
	}
}
