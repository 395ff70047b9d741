package shell

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/monitoring"
	"github.com/core-tools/hsu-vpnshell/pkg/process"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

type recorder struct {
	mutex sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = nil
}

func (r *recorder) snapshot() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeRenderer plays the UI side of the bus.
type fakeRenderer struct {
	comm    *communication.RendererCommunication
	onReady func(*fakeRenderer)

	mutex         sync.Mutex
	errors        []string
	termsRequests int
	termsAccepted int
	ready         int
	ups           int
	downs         int
	logs          []communication.ClientLogDTO
	proposals     [][]tequilapi.Proposal
	userSettings  []settings.UserSettings
}

func newFakeRenderer(bus communication.MessageBus, termsAnswer *bool, onReady func(*fakeRenderer)) *fakeRenderer {
	r := &fakeRenderer{
		comm:    communication.NewRendererCommunication(bus, logging.NewNopLogger()),
		onReady: onReady,
	}
	r.comm.OnTermsRequest(func(communication.TermsRequestDTO) {
		r.mutex.Lock()
		r.termsRequests++
		r.mutex.Unlock()
		if termsAnswer != nil {
			r.comm.SendTermsAnswered(*termsAnswer)
		}
	})
	r.comm.OnTermsAccepted(func() { r.update(func() { r.termsAccepted++ }) })
	r.comm.OnShowErrorMessage(func(dto communication.RendererShowErrorDTO) {
		r.update(func() { r.errors = append(r.errors, dto.Message) })
	})
	r.comm.OnClientReady(func() {
		r.update(func() { r.ready++ })
		if r.onReady != nil {
			r.onReady(r)
		}
	})
	r.comm.OnClientUp(func() { r.update(func() { r.ups++ }) })
	r.comm.OnClientDown(func() { r.update(func() { r.downs++ }) })
	r.comm.OnClientLog(func(dto communication.ClientLogDTO) {
		r.update(func() { r.logs = append(r.logs, dto) })
	})
	r.comm.OnProposals(func(proposals []tequilapi.Proposal) {
		r.update(func() { r.proposals = append(r.proposals, proposals) })
	})
	r.comm.OnUserSettings(func(userSettings settings.UserSettings) {
		r.update(func() { r.userSettings = append(r.userSettings, userSettings) })
	})
	return r
}

func (r *fakeRenderer) update(fn func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	fn()
}

func (r *fakeRenderer) read(fn func()) {
	r.update(fn)
}

func (r *fakeRenderer) errorMessages() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.errors...)
}

type fakeWindow struct {
	bus     *communication.LocalBus
	openErr error
	onOpen  func()

	mutex    sync.Mutex
	size     window.Size
	opened   bool
	closed   bool
	willQuit bool
	shown    int
}

func (w *fakeWindow) Open() error {
	if w.openErr != nil {
		return w.openErr
	}
	w.mutex.Lock()
	w.opened = true
	w.mutex.Unlock()
	if w.onOpen != nil {
		w.onOpen()
	}
	return nil
}

func (w *fakeWindow) Resize(size window.Size) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.size = size
}

func (w *fakeWindow) currentSize() window.Size {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.size
}

func (w *fakeWindow) Exists() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.opened && !w.closed
}

func (w *fakeWindow) Show() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.shown++
}

func (w *fakeWindow) SetWillQuitApp(willQuit bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.willQuit = willQuit
}

func (w *fakeWindow) Close() {
	w.mutex.Lock()
	w.closed = true
	w.mutex.Unlock()
	w.bus.Close()
}

func (w *fakeWindow) isClosed() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.closed
}

type fakeWindows struct {
	t            *testing.T
	createErr    error
	openErr      error
	bootRenderer bool
	termsAnswer  *bool
	onReady      func(*fakeRenderer)

	mutex     sync.Mutex
	windows   []*fakeWindow
	renderers []*fakeRenderer
}

func (f *fakeWindows) Create(size window.Size) (window.Window, communication.MessageBus, error) {
	if f.createErr != nil {
		return nil, nil, f.createErr
	}

	bus := communication.NewLocalBus(nil, logging.NewNopLogger())
	f.t.Cleanup(bus.Close)

	renderer := newFakeRenderer(bus.Renderer(), f.termsAnswer, f.onReady)
	w := &fakeWindow{bus: bus, size: size, openErr: f.openErr}
	if f.bootRenderer {
		w.onOpen = renderer.comm.SendRendererBooted
	}

	f.mutex.Lock()
	f.windows = append(f.windows, w)
	f.renderers = append(f.renderers, renderer)
	f.mutex.Unlock()
	return w, bus.Main(), nil
}

func (f *fakeWindows) latest() (*fakeWindow, *fakeRenderer) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.windows) == 0 {
		return nil, nil
	}
	return f.windows[len(f.windows)-1], f.renderers[len(f.renderers)-1]
}

type fakeTerms struct {
	loadErr   error
	accepted  bool
	acceptErr error
	accepts   atomic.Int32
}

func (t *fakeTerms) Load() error      { return t.loadErr }
func (t *fakeTerms) IsAccepted() bool { return t.accepted }
func (t *fakeTerms) Content() string  { return "<p>terms</p>" }

func (t *fakeTerms) Accept() error {
	t.accepts.Add(1)
	return t.acceptErr
}

type fakeHandle struct {
	rec *recorder

	needsInstallation bool
	needsErr          error
	installErr        error
	stopErr           error
	setupLoggingErr   error

	starts   atomic.Int32
	installs atomic.Int32
	stops    atomic.Int32

	infoLogs  *events.Registry[string]
	errorLogs *events.Registry[string]
}

func newFakeHandle(rec *recorder) *fakeHandle {
	return &fakeHandle{
		rec:       rec,
		infoLogs:  events.NewRegistry[string]("info", nil),
		errorLogs: events.NewRegistry[string]("error", nil),
	}
}

func (h *fakeHandle) NeedsInstallation() (bool, error) {
	return h.needsInstallation, h.needsErr
}

func (h *fakeHandle) Install(ctx context.Context) error {
	h.installs.Add(1)
	return h.installErr
}

func (h *fakeHandle) Start() {
	h.starts.Add(1)
	h.rec.record("process.start")
}

func (h *fakeHandle) Stop(ctx context.Context) error {
	h.stops.Add(1)
	h.rec.record("process.stop")
	return h.stopErr
}

func (h *fakeHandle) SetupLogging() error {
	return h.setupLoggingErr
}

func (h *fakeHandle) OnLog(level process.LogLevel, callback process.LogCallback) events.Unsubscribe {
	registry := h.infoLogs
	if level == process.LogLevelError {
		registry = h.errorLogs
	}
	return registry.Subscribe(func(line string) { callback(line) })
}

// fakeMonitor emits transitions on demand; each call to emitUp or emitDown
// stands for one confirmed transition.
type fakeMonitor struct {
	rec      *recorder
	startErr error
	onStart  func(*fakeMonitor)

	starts atomic.Int32
	stops  atomic.Int32

	up     *events.Registry[struct{}]
	down   *events.Registry[struct{}]
	status *events.Registry[bool]
}

func newFakeMonitor(rec *recorder) *fakeMonitor {
	return &fakeMonitor{
		rec:    rec,
		up:     events.NewRegistry[struct{}]("up", nil),
		down:   events.NewRegistry[struct{}]("down", nil),
		status: events.NewRegistry[bool]("status", nil),
	}
}

func (m *fakeMonitor) Start(ctx context.Context) error {
	m.starts.Add(1)
	m.rec.record("monitor.start")
	if m.onStart != nil {
		m.onStart(m)
	}
	return m.startErr
}

func (m *fakeMonitor) Stop() {
	m.stops.Add(1)
	m.rec.record("monitor.stop")
}

func (m *fakeMonitor) State() *monitoring.HealthCheckState {
	return &monitoring.HealthCheckState{Status: monitoring.HealthCheckStatusUnknown}
}

func (m *fakeMonitor) OnStatusUp(callback func()) events.Unsubscribe {
	return m.up.Subscribe(func(struct{}) { callback() })
}

func (m *fakeMonitor) OnStatusDown(callback func()) events.Unsubscribe {
	return m.down.Subscribe(func(struct{}) { callback() })
}

func (m *fakeMonitor) OnStatus(callback func(up bool)) events.Unsubscribe {
	return m.status.Subscribe(callback)
}

func (m *fakeMonitor) emitUp() {
	m.status.Emit(true)
	m.up.Emit(struct{}{})
}

func (m *fakeMonitor) emitDown() {
	m.status.Emit(false)
	m.down.Emit(struct{}{})
}

type fakeFetcher struct {
	rec *recorder

	starts  atomic.Int32
	stops   atomic.Int32
	fetches atomic.Int32

	fetched *events.Registry[[]tequilapi.Proposal]
	failed  *events.Registry[error]
}

func newFakeFetcher(rec *recorder) *fakeFetcher {
	return &fakeFetcher{
		rec:     rec,
		fetched: events.NewRegistry[[]tequilapi.Proposal]("fetched", nil),
		failed:  events.NewRegistry[error]("failed", nil),
	}
}

func (f *fakeFetcher) Start() {
	f.starts.Add(1)
}

func (f *fakeFetcher) Stop() {
	f.stops.Add(1)
	f.rec.record("fetcher.stop")
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]tequilapi.Proposal, error) {
	f.fetches.Add(1)
	return nil, nil
}

func (f *fakeFetcher) OnFetchedProposals(callback func([]tequilapi.Proposal)) events.Unsubscribe {
	return f.fetched.Subscribe(callback)
}

func (f *fakeFetcher) OnFetchingError(callback func(error)) events.Unsubscribe {
	return f.failed.Subscribe(callback)
}

type fakeSettings struct {
	loadErr error
	saveErr error

	mutex    sync.Mutex
	current  settings.UserSettings
	saves    int
	loadings int
}

func (s *fakeSettings) Load() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.loadings++
	return s.loadErr
}

func (s *fakeSettings) Get() settings.UserSettings {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}

func (s *fakeSettings) Set(userSettings settings.UserSettings) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current = userSettings
}

func (s *fakeSettings) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.saves++
	return s.saveErr
}

func (s *fakeSettings) saveCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saves
}

type fakeNotification struct {
	shown atomic.Int32
}

func (n *fakeNotification) Show() {
	n.shown.Add(1)
}

type fakeReporter struct {
	mutex  sync.Mutex
	errors []error
	infos  []error
	user   string
	cache  []string
}

func (r *fakeReporter) CaptureErrorException(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.errors = append(r.errors, err)
}

func (r *fakeReporter) CaptureInfoException(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.infos = append(r.infos, err)
}

func (r *fakeReporter) SetUser(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.user = id
}

func (r *fakeReporter) PushToLogCache(level, line string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache = append(r.cache, level+" "+line)
}

func (r *fakeReporter) counts() (int, int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.errors), len(r.infos)
}

func (r *fakeReporter) currentUser() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.user
}

func (r *fakeReporter) cachedLines() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.cache...)
}

type harness struct {
	rec          *recorder
	windows      *fakeWindows
	terms        *fakeTerms
	handle       *fakeHandle
	handleErr    error
	handles      atomic.Int32
	monitor      *fakeMonitor
	fetcher      *fakeFetcher
	settings     *fakeSettings
	notification *fakeNotification
	reporter     *fakeReporter
	quits        atomic.Int32
	threshold    time.Duration
}

func newHarness(t *testing.T) *harness {
	rec := &recorder{}
	return &harness{
		rec:          rec,
		windows:      &fakeWindows{t: t, bootRenderer: true},
		terms:        &fakeTerms{accepted: true},
		handle:       newFakeHandle(rec),
		monitor:      newFakeMonitor(rec),
		fetcher:      newFakeFetcher(rec),
		settings:     &fakeSettings{current: settings.UserSettings{ShowDisconnectNotifications: true}},
		notification: &fakeNotification{},
		reporter:     &fakeReporter{},
		threshold:    time.Second,
	}
}

func (h *harness) newShell(t *testing.T) *Shell {
	t.Helper()
	shell, err := NewShell(Options{
		StartupThreshold: h.threshold,
		Windows:          h.windows,
		Terms:            h.terms,
		NewHandle: func() (process.Handle, error) {
			h.handles.Add(1)
			if h.handleErr != nil {
				return nil, h.handleErr
			}
			return h.handle, nil
		},
		NewMonitor:             func(process.Handle) monitoring.HealthMonitor { return h.monitor },
		Fetcher:                h.fetcher,
		Settings:               h.settings,
		BugReporter:            h.reporter,
		DisconnectNotification: h.notification,
		Quit:                   func() { h.quits.Add(1) },
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create shell: %v", err)
	}
	t.Cleanup(func() { shell.Teardown(context.Background()) })
	return shell
}

func boolPtr(b bool) *bool {
	return &b
}
