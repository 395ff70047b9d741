package shell

import (
	"context"
	"sync"

	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/monitoring"
	"github.com/core-tools/hsu-vpnshell/pkg/process"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

// session is everything one bootstrap creates. Once released, setters refuse
// new resources and undo them on the spot, so a teardown racing a bootstrap
// leaves nothing running.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	detach func() bool

	window        window.Window
	communication *communication.MainCommunication

	mutex          sync.Mutex
	released       bool
	handle         process.Handle
	monitor        monitoring.HealthMonitor
	rendererBooted *events.Deferred[struct{}]
	readiness      *events.Deferred[struct{}]
	restartOnDown  events.Unsubscribe
	subscriptions  []events.Unsubscribe
}

// sessionResources is what release has to stop.
type sessionResources struct {
	handle         process.Handle
	monitor        monitoring.HealthMonitor
	rendererBooted *events.Deferred[struct{}]
	readiness      *events.Deferred[struct{}]
	restartOnDown  events.Unsubscribe
	subscriptions  []events.Unsubscribe
}

// newSession ties the session context to ctx until stopPropagation is
// called; afterwards the session lives until it is released.
func newSession(ctx context.Context, w window.Window, comm *communication.MainCommunication) *session {
	sessionCtx, cancel := context.WithCancel(context.Background())
	return &session{
		ctx:           sessionCtx,
		cancel:        cancel,
		detach:        context.AfterFunc(ctx, cancel),
		window:        w,
		communication: comm,
	}
}

func (s *session) stopPropagation() {
	s.detach()
}

func (s *session) track(unsubscribes ...events.Unsubscribe) {
	s.mutex.Lock()
	if !s.released {
		s.subscriptions = append(s.subscriptions, unsubscribes...)
		s.mutex.Unlock()
		return
	}
	s.mutex.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
}

func (s *session) setHandle(handle process.Handle) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.released {
		return false
	}
	s.handle = handle
	return true
}

func (s *session) setMonitor(monitor monitoring.HealthMonitor) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.released {
		return false
	}
	s.monitor = monitor
	return true
}

func (s *session) setReadiness(readiness *events.Deferred[struct{}]) {
	s.mutex.Lock()
	if !s.released {
		s.readiness = readiness
		s.mutex.Unlock()
		return
	}
	s.mutex.Unlock()
	readiness.Cancel()
}

func (s *session) setRestartOnDown(unsubscribe events.Unsubscribe) {
	s.mutex.Lock()
	if !s.released {
		s.restartOnDown = unsubscribe
		s.mutex.Unlock()
		return
	}
	s.mutex.Unlock()
	unsubscribe()
}

// whileActive runs fn unless the session was released. fn must not call
// other session methods.
func (s *session) whileActive(fn func()) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.released {
		return false
	}
	fn()
	return true
}

func (s *session) markReleased() sessionResources {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.released = true
	resources := sessionResources{
		handle:         s.handle,
		monitor:        s.monitor,
		rendererBooted: s.rendererBooted,
		readiness:      s.readiness,
		restartOnDown:  s.restartOnDown,
		subscriptions:  s.subscriptions,
	}
	s.readiness = nil
	s.restartOnDown = nil
	s.subscriptions = nil
	return resources
}
