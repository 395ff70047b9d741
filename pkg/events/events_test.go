package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
)

func TestRegistry_EmitReachesAllSubscribers(t *testing.T) {
	registry := NewRegistry[int]("status", nil)

	var first, second []int
	registry.Subscribe(func(v int) { first = append(first, v) })
	registry.Subscribe(func(v int) { second = append(second, v) })

	registry.Emit(1)
	registry.Emit(2)

	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, []int{1, 2}, second)
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	registry := NewRegistry[string]("log", nil)

	calls := 0
	unsubscribe := registry.Subscribe(func(string) { calls++ })
	other := registry.Subscribe(func(string) {})

	unsubscribe()
	unsubscribe()
	registry.Emit("line")

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, registry.Len())

	other()
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_PanicIsIsolated(t *testing.T) {
	var reported []string
	registry := NewRegistry[bool]("status-down", func(name string, err error) {
		reported = append(reported, name)
	})

	delivered := false
	registry.Subscribe(func(bool) { panic("subscriber failure") })
	registry.Subscribe(func(bool) { delivered = true })

	assert.NotPanics(t, func() { registry.Emit(false) })
	assert.True(t, delivered)
	assert.Equal(t, []string{"status-down"}, reported)
}

func TestRegistry_SubscriberMayUnsubscribeItselfDuringEmit(t *testing.T) {
	registry := NewRegistry[int]("ready", nil)

	calls := 0
	var unsubscribe Unsubscribe
	unsubscribe = registry.Subscribe(func(int) {
		calls++
		unsubscribe()
	})

	registry.Emit(1)
	registry.Emit(2)

	assert.Equal(t, 1, calls)
}

func TestOnFirstEvent_ResolvesWithFirstPayloadOnly(t *testing.T) {
	registry := NewRegistry[string]("terms-answered", nil)

	deferred := OnFirstEvent(registry.Subscribe)
	assert.False(t, deferred.Settled())
	assert.Equal(t, 1, registry.Len())

	registry.Emit("first")
	registry.Emit("second")

	value, err := deferred.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", value)
	assert.Equal(t, 0, registry.Len(), "one-shot subscription must be released")
}

func TestOnFirstEvent_EventDeliveredDuringSubscribe(t *testing.T) {
	unsubscribed := false
	subscribe := func(callback func(int)) Unsubscribe {
		callback(7)
		return func() { unsubscribed = true }
	}

	deferred := OnFirstEvent[int](subscribe)

	value, err := deferred.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.True(t, unsubscribed)
}

func TestOnFirstEvent_WaitHonoursContext(t *testing.T) {
	registry := NewRegistry[struct{}]("renderer-booted", nil)
	deferred := OnFirstEvent(registry.Subscribe)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := deferred.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCancelledError(err))
	assert.False(t, deferred.Settled())

	registry.Emit(struct{}{})
	_, err = deferred.Wait(context.Background())
	assert.NoError(t, err)
}

func TestOnFirstEventOrTimeout_ResolvesBeforeTimeout(t *testing.T) {
	registry := NewRegistry[struct{}]("status-up", nil)

	deferred := OnFirstEventOrTimeout(registry.Subscribe, time.Second)
	registry.Emit(struct{}{})

	_, err := deferred.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, registry.Len())
}

func TestOnFirstEventOrTimeout_LateEventIsIgnored(t *testing.T) {
	registry := NewRegistry[int]("status-up", nil)

	deferred := OnFirstEventOrTimeout(registry.Subscribe, 20*time.Millisecond)

	select {
	case <-deferred.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deferred did not time out")
	}

	value, err := deferred.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventTimeout)
	assert.True(t, errors.IsTimeoutError(err))
	assert.Equal(t, 0, value)
	assert.Equal(t, 0, registry.Len(), "timed out subscription must be released")

	registry.Emit(42)

	value, err = deferred.Wait(context.Background())
	assert.ErrorIs(t, err, ErrEventTimeout)
	assert.Equal(t, 0, value)
}

func TestOnFirstEventOrTimeout_LateEventOnLeakySubscription(t *testing.T) {
	// A subscription that ignores unsubscribe keeps calling back.
	var mutex sync.Mutex
	var callbacks []func(int)
	subscribe := func(callback func(int)) Unsubscribe {
		mutex.Lock()
		defer mutex.Unlock()
		callbacks = append(callbacks, callback)
		return func() {}
	}

	deferred := OnFirstEventOrTimeout[int](subscribe, 10*time.Millisecond)
	<-deferred.Done()

	mutex.Lock()
	for _, callback := range callbacks {
		callback(5)
	}
	mutex.Unlock()

	_, err := deferred.Wait(context.Background())
	assert.ErrorIs(t, err, ErrEventTimeout)
}

func TestOnFirstEventOrTimeout_ConcurrentEmitters(t *testing.T) {
	registry := NewRegistry[int]("status-up", nil)
	deferred := OnFirstEventOrTimeout(registry.Subscribe, time.Second)

	var wg sync.WaitGroup
	var emitted atomic.Int32
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			emitted.Add(1)
			registry.Emit(v)
		}(i)
	}
	wg.Wait()

	value, err := deferred.Wait(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, 1)
	assert.LessOrEqual(t, value, 8)
	assert.Equal(t, int32(8), emitted.Load())
}

func TestDeferred_CancelDetachesPendingWait(t *testing.T) {
	registry := NewRegistry[string]("renderer-booted", nil)
	deferred := OnFirstEvent(Subscribe[string](registry.Subscribe))
	require.Equal(t, 1, registry.Len())

	deferred.Cancel()
	assert.True(t, deferred.Settled())
	assert.Equal(t, 0, registry.Len())

	registry.Emit("late")
	_, err := deferred.Wait(context.Background())
	assert.True(t, errors.IsCancelledError(err))

	deferred.Cancel()
}
