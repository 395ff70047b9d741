package events

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
)

// ErrEventTimeout is the rejection of OnFirstEventOrTimeout when no event
// arrived in time. Match it with errors.Is or errors.IsTimeoutError.
var ErrEventTimeout = errors.NewTimeoutError("no event received before timeout", nil)

// Deferred holds a value that is settled at most once, either with a value
// or with an error.
type Deferred[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error

	mutex       sync.Mutex
	unsubscribe Unsubscribe
	detachLater bool
	cancelTimer func() bool
}

func newDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Done is closed once the deferred is settled.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether a value or an error has been recorded.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the deferred settles or ctx is done. Cancelling ctx does
// not settle the deferred; a later Wait can still observe the outcome.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, errors.NewCancelledError("wait cancelled", ctx.Err())
	}
}

// Cancel rejects a pending deferred with a cancelled error and detaches it
// from its subscription. It does nothing once the deferred is settled.
func (d *Deferred[T]) Cancel() {
	var zero T
	d.settle(zero, errors.NewCancelledError("wait abandoned", nil))
}

func (d *Deferred[T]) settle(value T, err error) bool {
	settled := false
	d.once.Do(func() {
		d.value = value
		d.err = err
		settled = true
		close(d.done)
	})
	if settled {
		d.release()
	}
	return settled
}

// release drops the subscription and the timer. The subscription may not be
// known yet when the event fires synchronously from inside subscribe.
func (d *Deferred[T]) release() {
	d.mutex.Lock()
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	if unsubscribe == nil {
		d.detachLater = true
	}
	cancelTimer := d.cancelTimer
	d.cancelTimer = nil
	d.mutex.Unlock()

	if cancelTimer != nil {
		cancelTimer()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (d *Deferred[T]) attach(unsubscribe Unsubscribe) {
	d.mutex.Lock()
	if d.detachLater {
		d.mutex.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return
	}
	d.unsubscribe = unsubscribe
	d.mutex.Unlock()
}

// OnFirstEvent resolves with the first payload delivered through subscribe
// and detaches from the stream afterwards.
func OnFirstEvent[T any](subscribe Subscribe[T]) *Deferred[T] {
	d := newDeferred[T]()
	unsubscribe := subscribe(func(value T) {
		d.settle(value, nil)
	})
	d.attach(unsubscribe)
	return d
}

// OnFirstEventOrTimeout behaves like OnFirstEvent but rejects with
// ErrEventTimeout when nothing arrives within timeout. Events arriving after
// the timeout are ignored.
func OnFirstEventOrTimeout[T any](subscribe Subscribe[T], timeout time.Duration) *Deferred[T] {
	d := newDeferred[T]()

	timer := time.AfterFunc(timeout, func() {
		var zero T
		d.settle(zero, ErrEventTimeout)
	})
	d.mutex.Lock()
	if !d.detachLater {
		d.cancelTimer = timer.Stop
	}
	d.mutex.Unlock()

	unsubscribe := subscribe(func(value T) {
		d.settle(value, nil)
	})
	d.attach(unsubscribe)

	if d.Settled() {
		timer.Stop()
	}
	return d
}
