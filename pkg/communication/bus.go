package communication

import (
	"encoding/json"
	"sync"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

// MessageBus is one side of a bidirectional, channel-addressed message link.
// Payloads travel JSON-encoded; Send delivers to the peer's handlers.
type MessageBus interface {
	Send(channel string, payload interface{}) error
	On(channel string, callback func(payload json.RawMessage)) events.Unsubscribe
}

type message struct {
	channel string
	payload json.RawMessage
}

// LocalBus links two in-process endpoints. Each endpoint delivers incoming
// messages in order on its own goroutine, so Send never blocks on handlers.
type LocalBus struct {
	main     *endpoint
	renderer *endpoint
}

// NewLocalBus creates a linked pair of endpoints. onPanic receives failures
// raised by handlers.
func NewLocalBus(onPanic events.PanicHandler, logger logging.Logger) *LocalBus {
	main := newEndpoint("main", onPanic, logger)
	renderer := newEndpoint("renderer", onPanic, logger)
	main.peer = renderer
	renderer.peer = main

	go main.dispatch()
	go renderer.dispatch()

	return &LocalBus{main: main, renderer: renderer}
}

// Main is the endpoint used by the shell.
func (b *LocalBus) Main() MessageBus {
	return b.main
}

// Renderer is the endpoint used by the UI.
func (b *LocalBus) Renderer() MessageBus {
	return b.renderer
}

// Close stops delivery on both endpoints. Queued messages are dropped.
func (b *LocalBus) Close() {
	b.main.close()
	b.renderer.close()
}

type endpoint struct {
	name    string
	peer    *endpoint
	onPanic events.PanicHandler
	logger  logging.Logger

	mutex    sync.Mutex
	handlers map[string]*events.Registry[json.RawMessage]
	queue    []message
	closed   bool
	wakeup   chan struct{}
	done     chan struct{}
}

func newEndpoint(name string, onPanic events.PanicHandler, logger logging.Logger) *endpoint {
	return &endpoint{
		name:     name,
		onPanic:  onPanic,
		logger:   logger,
		handlers: make(map[string]*events.Registry[json.RawMessage]),
		wakeup:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (e *endpoint) Send(channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.NewValidationError("failed to encode message", err).WithContext("channel", channel)
	}
	return e.peer.enqueue(message{channel: channel, payload: data})
}

func (e *endpoint) On(channel string, callback func(payload json.RawMessage)) events.Unsubscribe {
	e.mutex.Lock()
	registry, ok := e.handlers[channel]
	if !ok {
		registry = events.NewRegistry[json.RawMessage](channel, e.onPanic)
		e.handlers[channel] = registry
	}
	e.mutex.Unlock()

	return registry.Subscribe(callback)
}

func (e *endpoint) enqueue(msg message) error {
	e.mutex.Lock()
	if e.closed {
		e.mutex.Unlock()
		return errors.NewConflictError("message bus is closed", nil).WithContext("channel", msg.channel)
	}
	e.queue = append(e.queue, msg)
	e.mutex.Unlock()

	select {
	case e.wakeup <- struct{}{}:
	default:
	}
	return nil
}

func (e *endpoint) dispatch() {
	for {
		select {
		case <-e.wakeup:
		case <-e.done:
			return
		}

		for {
			e.mutex.Lock()
			if e.closed || len(e.queue) == 0 {
				e.mutex.Unlock()
				break
			}
			msg := e.queue[0]
			e.queue = e.queue[1:]
			registry := e.handlers[msg.channel]
			e.mutex.Unlock()

			if registry == nil || registry.Len() == 0 {
				e.logger.Debugf("No %s handler for channel: %s", e.name, msg.channel)
				continue
			}
			registry.Emit(msg.payload)
		}
	}
}

func (e *endpoint) close() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.queue = nil
	close(e.done)
}

// subscribe decodes payloads on channel into T before invoking callback.
func subscribe[T any](bus MessageBus, channel string, logger logging.Logger, callback func(T)) events.Unsubscribe {
	return bus.On(channel, func(payload json.RawMessage) {
		var value T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &value); err != nil {
				logger.Warnf("Dropping malformed message, channel: %s, error: %v", channel, err)
				return
			}
		}
		callback(value)
	})
}

func send(bus MessageBus, channel string, payload interface{}, logger logging.Logger) {
	if err := bus.Send(channel, payload); err != nil {
		logger.Warnf("Failed to send message, channel: %s, error: %v", channel, err)
	}
}
