package shell

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

const DefaultShutdownTimeout = 10 * time.Second

type Dispatcher interface {
	Dispatch(ctx context.Context, event LifecycleEvent)
}

// Runner feeds lifecycle events from OS signals to a dispatcher until the
// application quits. Ready and activate run on their own goroutines so a
// bootstrap waiting on the UI does not hold up quitting.
type Runner struct {
	shutdownTimeout time.Duration
	logger          logging.Logger

	quitOnce   sync.Once
	quitChan   chan struct{}
	closedChan chan struct{}
}

func NewRunner(shutdownTimeout time.Duration, logger logging.Logger) *Runner {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Runner{
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		quitChan:        make(chan struct{}),
		closedChan:      make(chan struct{}, 1),
	}
}

// Quit asks Run to shut down. Safe to call from any goroutine, any number of times.
func (r *Runner) Quit() {
	r.quitOnce.Do(func() {
		r.logger.Infof("Quit requested")
		close(r.quitChan)
	})
}

// AllWindowsClosed reports that the user closed the last window. Run turns it
// into EventWindowAllClosed; repeated reports before it is handled collapse.
func (r *Runner) AllWindowsClosed() {
	select {
	case r.closedChan <- struct{}{}:
	default:
	}
}

func (r *Runner) Run(ctx context.Context, dispatcher Dispatcher) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, shutdownSignals()...)
	defer signal.Stop(shutdown)

	activate := make(chan os.Signal, 1)
	if signals := activationSignals(); len(signals) > 0 {
		signal.Notify(activate, signals...)
		defer signal.Stop(activate)
	}

	closed := make(chan os.Signal, 1)
	if signals := windowClosedSignals(); len(signals) > 0 {
		signal.Notify(closed, signals...)
		defer signal.Stop(closed)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	launch := func(event LifecycleEvent) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Dispatch(runCtx, event)
		}()
	}

	launch(EventReady)

loop:
	for {
		select {
		case <-activate:
			launch(EventActivate)
		case <-closed:
			dispatcher.Dispatch(runCtx, EventWindowAllClosed)
		case <-r.closedChan:
			dispatcher.Dispatch(runCtx, EventWindowAllClosed)
		case sig := <-shutdown:
			r.logger.Infof("Received signal: %v", sig)
			break loop
		case <-r.quitChan:
			break loop
		case <-ctx.Done():
			r.logger.Infof("Context done, shutting down")
			break loop
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer shutdownCancel()

	dispatcher.Dispatch(shutdownCtx, EventBeforeQuit)
	dispatcher.Dispatch(shutdownCtx, EventWillQuit)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		r.logger.Warnf("Pending lifecycle handlers did not finish before shutdown timeout")
	}

	r.logger.Infof("Application stopped")
	return nil
}
