package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

type HealthCheckType string

const (
	HealthCheckTypeHTTP    HealthCheckType = "http"
	HealthCheckTypeGRPC    HealthCheckType = "grpc"
	HealthCheckTypeTCP     HealthCheckType = "tcp"
	HealthCheckTypeExec    HealthCheckType = "exec"
	HealthCheckTypeProcess HealthCheckType = "process"
)

type HTTPHealthCheckConfig struct {
	URL     string            `yaml:"url"`
	PMethod string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type GRPCHealthCheckConfig struct {
	Address string `yaml:"address"`
	// Service is the grpc.health.v1 service name; empty asks about the server as a whole.
	Service string `yaml:"service,omitempty"`
}

type TCPHealthCheckConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type ExecHealthCheckConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

type HealthCheckConfig struct {
	Type HealthCheckType `yaml:"type"`

	HTTP HTTPHealthCheckConfig `yaml:"http,omitempty"`
	GRPC GRPCHealthCheckConfig `yaml:"grpc,omitempty"`
	TCP  TCPHealthCheckConfig  `yaml:"tcp,omitempty"`
	Exec ExecHealthCheckConfig `yaml:"exec,omitempty"`

	RunOptions HealthCheckRunOptions `yaml:"run_options,omitempty"`
}

type HealthCheckRunOptions struct {
	Interval     time.Duration `yaml:"interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
}

// DefaultHealthCheckConfig polls the client API healthcheck endpoint.
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Type: HealthCheckTypeHTTP,
		HTTP: HTTPHealthCheckConfig{
			URL: "http://127.0.0.1:4050/healthcheck",
		},
		RunOptions: HealthCheckRunOptions{
			Interval: 1500 * time.Millisecond,
			Timeout:  time.Second,
		},
	}
}

type HealthCheckStatus string

const (
	HealthCheckStatusUnknown HealthCheckStatus = "unknown"
	HealthCheckStatusUp      HealthCheckStatus = "up"
	HealthCheckStatusDown    HealthCheckStatus = "down"
)

type HealthCheckState struct {
	Status               HealthCheckStatus
	LastCheck            time.Time
	Message              string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// HealthMonitor observes the managed process and reports its liveness.
//
// OnStatusUp and OnStatusDown fire only when the confirmed status changes;
// OnStatus fires after every check with the raw result. Callbacks run on the
// monitor goroutine, so they must not call Stop.
type HealthMonitor interface {
	Start(ctx context.Context) error
	Stop()
	State() *HealthCheckState
	OnStatusUp(callback func()) events.Unsubscribe
	OnStatusDown(callback func()) events.Unsubscribe
	OnStatus(callback func(up bool)) events.Unsubscribe
}

type healthMonitor struct {
	config   *HealthCheckConfig
	checker  Checker
	state    *HealthCheckState
	stopChan chan struct{}
	running  bool
	wg       sync.WaitGroup
	mutex    sync.Mutex
	logger   logging.Logger
	id       string

	up     *events.Registry[struct{}]
	down   *events.Registry[struct{}]
	status *events.Registry[bool]
}

// NewHealthMonitor creates a monitor running the check described by config.
// pid is consulted by process checks only and may be nil otherwise.
func NewHealthMonitor(config *HealthCheckConfig, id string, pid PIDProvider, logger logging.Logger) HealthMonitor {
	return NewHealthMonitorWithChecker(config, NewChecker(config, pid, logger), id, logger)
}

// NewHealthMonitorWithChecker creates a monitor with a caller-supplied checker.
func NewHealthMonitorWithChecker(config *HealthCheckConfig, checker Checker, id string, logger logging.Logger) HealthMonitor {
	return newHealthMonitor(config, checker, id, logger)
}

func newHealthMonitor(config *HealthCheckConfig, checker Checker, id string, logger logging.Logger) *healthMonitor {
	onPanic := func(name string, err error) {
		logger.Errorf("Health monitor callback failed, id: %s, event: %s, error: %v", id, name, err)
	}
	return &healthMonitor{
		config:  config,
		checker: checker,
		state:   &HealthCheckState{Status: HealthCheckStatusUnknown},
		logger:  logger,
		id:      id,
		up:      events.NewRegistry[struct{}]("status-up", onPanic),
		down:    events.NewRegistry[struct{}]("status-down", onPanic),
		status:  events.NewRegistry[bool]("status", onPanic),
	}
}

func (h *healthMonitor) Start(ctx context.Context) error {
	if err := ValidateHealthCheckConfig(*h.config); err != nil {
		h.logger.Errorf("Health check configuration validation failed, id: %s, error: %v", h.id, err)
		return errors.NewValidationError("invalid health check configuration", err).WithContext("id", h.id)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.running {
		h.logger.Debugf("Health monitor already running, id: %s", h.id)
		return nil
	}

	h.logger.Infof("Starting health monitor, id: %s, type: %s, interval: %v", h.id, h.config.Type, h.config.RunOptions.Interval)

	h.running = true
	h.stopChan = make(chan struct{})
	h.wg.Add(1)
	go h.loop(ctx, h.stopChan)
	return nil
}

func (h *healthMonitor) Stop() {
	h.mutex.Lock()
	if !h.running {
		h.mutex.Unlock()
		return
	}
	h.running = false
	close(h.stopChan)
	h.mutex.Unlock()

	h.logger.Infof("Stopping health monitor, id: %s", h.id)
	h.wg.Wait()
	h.logger.Infof("Health monitor stopped, id: %s", h.id)
}

func (h *healthMonitor) State() *HealthCheckState {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	stateCopy := *h.state
	return &stateCopy
}

func (h *healthMonitor) OnStatusUp(callback func()) events.Unsubscribe {
	return h.up.Subscribe(func(struct{}) { callback() })
}

func (h *healthMonitor) OnStatusDown(callback func()) events.Unsubscribe {
	return h.down.Subscribe(func(struct{}) { callback() })
}

func (h *healthMonitor) OnStatus(callback func(up bool)) events.Unsubscribe {
	return h.status.Subscribe(callback)
}

func (h *healthMonitor) loop(ctx context.Context, stopChan chan struct{}) {
	defer h.wg.Done()

	h.logger.Debugf("Health monitor loop started, id: %s", h.id)

	if h.config.RunOptions.InitialDelay > 0 {
		select {
		case <-time.After(h.config.RunOptions.InitialDelay):
		case <-stopChan:
			h.logger.Debugf("Health monitor stopped during initial delay, id: %s", h.id)
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(h.config.RunOptions.Interval)
	defer ticker.Stop()

	h.performCheck(ctx, stopChan)

	for {
		select {
		case <-ticker.C:
			h.performCheck(ctx, stopChan)
		case <-stopChan:
			h.logger.Debugf("Health monitor loop stopping, id: %s", h.id)
			return
		case <-ctx.Done():
			h.logger.Debugf("Health monitor context done, id: %s", h.id)
			return
		}
	}
}

func (h *healthMonitor) performCheck(ctx context.Context, stopChan chan struct{}) {
	checkCtx, cancel := context.WithTimeout(ctx, h.config.RunOptions.Timeout)
	defer cancel()

	up, message := h.checker.Check(checkCtx)

	// A check that was in flight while Stop ran must not report.
	select {
	case <-stopChan:
		return
	default:
	}

	h.observe(up, message)
}

// observe records one check result and fires the matching callbacks.
func (h *healthMonitor) observe(up bool, message string) {
	h.mutex.Lock()
	previous := h.state.Status
	h.state.LastCheck = time.Now()
	h.state.Message = message

	var next HealthCheckStatus
	if up {
		h.state.ConsecutiveSuccesses++
		h.state.ConsecutiveFailures = 0
		next = HealthCheckStatusUp
	} else {
		h.state.ConsecutiveFailures++
		h.state.ConsecutiveSuccesses = 0
		next = HealthCheckStatusDown
	}
	h.state.Status = next
	failures := h.state.ConsecutiveFailures
	h.mutex.Unlock()

	changed := previous != next
	switch {
	case changed && up:
		h.logger.Infof("Health status changed, id: %s, status: %s->%s", h.id, previous, next)
	case changed:
		h.logger.Warnf("Health status changed, id: %s, status: %s->%s, message: %s", h.id, previous, next, message)
	case !up:
		h.logger.Debugf("Health check failed, id: %s, consecutive_failures: %d, message: %s", h.id, failures, message)
	}

	if changed {
		if up {
			h.up.Emit(struct{}{})
		} else {
			h.down.Emit(struct{}{})
		}
	}
	h.status.Emit(up)
}
