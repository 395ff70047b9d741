package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
	"github.com/core-tools/hsu-vpnshell/pkg/processstate"
)

const (
	stdoutLogFile = "stdout.log"
	stderrLogFile = "stderr.log"
)

type child struct {
	pid  int
	done chan struct{}
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// StandaloneHandle spawns the client binary as a child of the shell.
type StandaloneHandle struct {
	Installer

	id          string
	execution   ExecutionConfig
	stopTimeout time.Duration
	files       *processfile.ProcessFileManager
	logger      logging.Logger

	mutex    sync.Mutex
	child    *child
	state    State
	stopping bool
	stdout   io.WriteCloser
	stderr   io.WriteCloser

	infoLogs  *events.Registry[string]
	errorLogs *events.Registry[string]
}

func NewStandaloneHandle(config Config, installer Installer, files *processfile.ProcessFileManager, logger logging.Logger) *StandaloneHandle {
	id := config.ID
	if id == "" {
		id = DefaultProcessID
	}
	stopTimeout := config.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	onPanic := func(name string, err error) {
		logger.Errorf("Client log callback failed, id: %s, level: %s, error: %v", id, name, err)
	}
	return &StandaloneHandle{
		Installer:   installer,
		id:          id,
		execution:   config.Execution,
		stopTimeout: stopTimeout,
		files:       files,
		logger:      logger,
		state:       StateNotStarted,
		infoLogs:    events.NewRegistry[string](string(LogLevelInfo), onPanic),
		errorLogs:   events.NewRegistry[string](string(LogLevelError), onPanic),
	}
}

func (h *StandaloneHandle) State() State {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

// PID returns the PID of the live child, or 0.
func (h *StandaloneHandle) PID() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.child == nil || h.child.exited() {
		return 0
	}
	return h.child.pid
}

// Start spawns the client unless a previously spawned child is still alive.
// Failures are logged; the health monitor reports the client as down.
func (h *StandaloneHandle) Start() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.child != nil && !h.child.exited() {
		h.logger.Debugf("Client already running, id: %s, PID: %d", h.id, h.child.pid)
		return
	}

	h.state = StateStarting
	h.stopping = false
	h.reclaimStale()

	args := []string{
		"--config-dir", h.files.ConfigDirectory(),
		"--runtime-dir", h.files.RuntimeDirectory(),
	}
	spawned, err := spawnProcess(h.execution, args, h.id, h.logger)
	if err != nil {
		h.logger.Errorf("Failed to start client, id: %s, error: %v", h.id, err)
		h.state = StateDown
		return
	}

	c := &child{pid: spawned.cmd.Process.Pid, done: make(chan struct{})}
	h.child = c
	h.state = StateRunning

	if err := h.files.WritePIDFile(h.id, c.pid); err != nil {
		h.logger.Warnf("Failed to write client PID file, id: %s, error: %v", h.id, err)
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go h.pump(spawned.stdout, LogLevelInfo, &readers)
	go h.pump(spawned.stderr, LogLevelError, &readers)

	go func() {
		readers.Wait()
		err := spawned.cmd.Wait()
		h.onExit(c, err)
	}()
}

func (h *StandaloneHandle) onExit(c *child, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	close(c.done)
	if h.child != c {
		return
	}

	if h.stopping {
		h.state = StateStopped
		h.logger.Infof("Client exited after stop, id: %s, PID: %d", h.id, c.pid)
	} else {
		h.state = StateDown
		h.logger.Warnf("Client exited unexpectedly, id: %s, PID: %d, error: %v", h.id, c.pid, err)
	}

	if err := h.files.RemovePIDFile(h.id); err != nil {
		h.logger.Warnf("Failed to remove client PID file, id: %s, error: %v", h.id, err)
	}
}

// reclaimStale kills a client left over from a previous shell run, found
// through the PID file. Caller holds the mutex.
func (h *StandaloneHandle) reclaimStale() {
	pid, err := h.files.ReadPIDFile(h.id)
	if err != nil {
		return
	}
	defer h.files.RemovePIDFile(h.id)

	running, err := processstate.IsProcessRunning(pid)
	if err != nil || !running {
		return
	}
	name, err := processstate.ProcessName(pid)
	if err != nil || !sameExecutable(name, h.execution.ExecutablePath) {
		h.logger.Debugf("PID file points to another process, id: %s, PID: %d, name: %s", h.id, pid, name)
		return
	}

	h.logger.Warnf("Killing client left from a previous run, id: %s, PID: %d", h.id, pid)
	if err := killProcessTree(pid); err != nil {
		h.logger.Warnf("Failed to kill stale client, id: %s, PID: %d, error: %v", h.id, pid, err)
	}
}

func sameExecutable(processName, executablePath string) bool {
	base := filepath.Base(executablePath)
	return processName == base || processName == strings.TrimSuffix(base, filepath.Ext(base))
}

func (h *StandaloneHandle) pump(reader io.Reader, level LogLevel, readers *sync.WaitGroup) {
	defer readers.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		h.mirror(level, line)
		if level == LogLevelError {
			h.errorLogs.Emit(line)
		} else {
			h.infoLogs.Emit(line)
		}
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debugf("Client output closed, id: %s, level: %s, error: %v", h.id, level, err)
	}
}

func (h *StandaloneHandle) mirror(level LogLevel, line string) {
	h.mutex.Lock()
	writer := h.stdout
	if level == LogLevelError {
		writer = h.stderr
	}
	if writer != nil {
		fmt.Fprintln(writer, line)
	}
	h.mutex.Unlock()
}

// Stop terminates the process group, escalating to a kill after the stop
// timeout or when ctx is done. Without a live child it does nothing.
func (h *StandaloneHandle) Stop(ctx context.Context) error {
	h.mutex.Lock()
	c := h.child
	if c == nil || c.exited() {
		h.mutex.Unlock()
		h.closeMirrors()
		return nil
	}
	h.stopping = true
	h.mutex.Unlock()

	defer h.closeMirrors()

	h.logger.Infof("Stopping client, id: %s, PID: %d", h.id, c.pid)

	if err := sendTerminationSignal(c.pid, h.stopTimeout); err != nil {
		h.logger.Warnf("Failed to send termination signal, id: %s, PID: %d, error: %v", h.id, c.pid, err)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(h.stopTimeout):
		h.logger.Warnf("Client did not exit in %v, killing, id: %s, PID: %d", h.stopTimeout, h.id, c.pid)
	case <-ctx.Done():
		h.logger.Warnf("Stop cancelled, killing client, id: %s, PID: %d", h.id, c.pid)
	}

	if err := killProcessTree(c.pid); err != nil {
		return errors.NewProcessError("failed to kill client", err).WithContext("id", h.id).WithContext("pid", c.pid)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(h.stopTimeout):
		return errors.NewTimeoutError("client did not exit after kill", nil).WithContext("id", h.id).WithContext("pid", c.pid)
	}
}

// SetupLogging mirrors client output into stdout.log and stderr.log in the
// client log directory.
func (h *StandaloneHandle) SetupLogging() error {
	logDir := h.files.LogDirectory()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return errors.NewIOError("failed to create client log directory", err).WithContext("directory", logDir)
	}

	stdout, err := openLogFile(h.files.LogFilePath(stdoutLogFile))
	if err != nil {
		return err
	}
	stderr, err := openLogFile(h.files.LogFilePath(stderrLogFile))
	if err != nil {
		stdout.Close()
		return err
	}

	h.closeMirrors()

	h.mutex.Lock()
	h.stdout = stdout
	h.stderr = stderr
	h.mutex.Unlock()

	h.logger.Infof("Client output mirrored, id: %s, directory: %s", h.id, logDir)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.NewIOError("failed to open client log file", err).WithContext("path", path)
	}
	return file, nil
}

func (h *StandaloneHandle) closeMirrors() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.stdout != nil {
		h.stdout.Close()
		h.stdout = nil
	}
	if h.stderr != nil {
		h.stderr.Close()
		h.stderr = nil
	}
}

func (h *StandaloneHandle) OnLog(level LogLevel, callback LogCallback) events.Unsubscribe {
	switch level {
	case LogLevelInfo:
		return h.infoLogs.Subscribe(callback)
	case LogLevelError:
		return h.errorLogs.Subscribe(callback)
	default:
		h.logger.Warnf("Unknown client log level, id: %s, level: %s", h.id, level)
		return noopUnsubscribe
	}
}
