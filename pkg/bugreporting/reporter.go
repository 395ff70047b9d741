package bugreporting

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultLogCacheSize = 200

// BugReporter collects failures the shell cannot surface elsewhere. None of
// its methods may panic or block on I/O for long.
type BugReporter interface {
	CaptureErrorException(err error)
	CaptureInfoException(err error)
	SetUser(id string)
	PushToLogCache(level, line string)
}

type logEntry struct {
	at    time.Time
	level string
	line  string
}

// ZapReporter writes structured crash events through zap. Every event carries
// a fresh event id, the session id, the current user and the tail of the
// client log.
type ZapReporter struct {
	logger    *zap.Logger
	sessionID string

	mutex sync.Mutex
	user  string
	cache []logEntry
	next  int
	full  bool
}

func NewZapReporter(logger *zap.Logger, logCacheSize int) *ZapReporter {
	if logCacheSize <= 0 {
		logCacheSize = DefaultLogCacheSize
	}
	return &ZapReporter{
		logger:    logger,
		sessionID: uuid.NewString(),
		cache:     make([]logEntry, logCacheSize),
	}
}

func (r *ZapReporter) SessionID() string {
	return r.sessionID
}

func (r *ZapReporter) CaptureErrorException(err error) {
	r.capture(zap.ErrorLevel, err)
}

func (r *ZapReporter) CaptureInfoException(err error) {
	r.capture(zap.InfoLevel, err)
}

func (r *ZapReporter) SetUser(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.user = id
}

func (r *ZapReporter) PushToLogCache(level, line string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache[r.next] = logEntry{at: time.Now(), level: level, line: line}
	r.next = (r.next + 1) % len(r.cache)
	if r.next == 0 {
		r.full = true
	}
}

// recentLogs returns the cached lines oldest first.
func (r *ZapReporter) recentLogs() []string {
	var entries []logEntry
	if r.full {
		entries = append(entries, r.cache[r.next:]...)
	}
	entries = append(entries, r.cache[:r.next]...)

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", e.at.Format(time.RFC3339), e.level, e.line))
	}
	return lines
}

func (r *ZapReporter) capture(level zapcore.Level, err error) {
	if err == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Warn("bug report capture failed", zap.Any("panic", recovered))
		}
	}()

	r.mutex.Lock()
	user := r.user
	logs := r.recentLogs()
	r.mutex.Unlock()

	fields := []zap.Field{
		zap.String("event_id", uuid.NewString()),
		zap.String("session_id", r.sessionID),
		zap.String("user", user),
		zap.Error(err),
		zap.Strings("recent_logs", logs),
	}
	r.logger.Log(level, "captured exception", fields...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CaptureErrorException(error)    {}
func (Nop) CaptureInfoException(error)     {}
func (Nop) SetUser(string)                 {}
func (Nop) PushToLogCache(string, string) {}
