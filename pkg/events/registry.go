package events

import (
	"fmt"
	"sync"
)

// Unsubscribe removes a previously registered callback. Calling it more than
// once is a no-op.
type Unsubscribe func()

// Subscribe registers a callback for an event stream and returns the handle
// that removes it.
type Subscribe[T any] func(callback func(T)) Unsubscribe

// PanicHandler receives panics recovered from subscriber callbacks.
type PanicHandler func(name string, err error)

type subscriber[T any] struct {
	id       uint64
	callback func(T)
}

// Registry is an ordered observer list for one event kind. Emit invokes every
// callback registered at the time of the call; callbacks may subscribe or
// unsubscribe (including themselves) while being invoked.
type Registry[T any] struct {
	name        string
	onPanic     PanicHandler
	mutex       sync.Mutex
	nextID      uint64
	subscribers []subscriber[T]
}

func NewRegistry[T any](name string, onPanic PanicHandler) *Registry[T] {
	return &Registry[T]{
		name:    name,
		onPanic: onPanic,
	}
}

func (r *Registry[T]) Subscribe(callback func(T)) Unsubscribe {
	r.mutex.Lock()
	r.nextID++
	id := r.nextID
	r.subscribers = append(r.subscribers, subscriber[T]{id: id, callback: callback})
	r.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, s := range r.subscribers {
		if s.id == id {
			r.subscribers = append(r.subscribers[:i:i], r.subscribers[i+1:]...)
			return
		}
	}
}

// Emit delivers value to all current subscribers. A panicking subscriber is
// reported to the panic handler and does not prevent delivery to the others.
func (r *Registry[T]) Emit(value T) {
	r.mutex.Lock()
	snapshot := make([]subscriber[T], len(r.subscribers))
	copy(snapshot, r.subscribers)
	r.mutex.Unlock()

	for _, s := range snapshot {
		r.invoke(s.callback, value)
	}
}

func (r *Registry[T]) invoke(callback func(T), value T) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if r.onPanic != nil {
				r.onPanic(r.name, fmt.Errorf("subscriber of %q panicked: %v", r.name, recovered))
			}
		}
	}()
	callback(value)
}

func (r *Registry[T]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.subscribers)
}

// Clear drops all subscribers.
func (r *Registry[T]) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.subscribers = nil
}
