// Package events provides the in-process callback bus for controller
// notifications. Dispatch is synchronous and ordered; a failing listener
// never reaches the publisher.
package events

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/lumactl/internal/errors"
	"codeberg.org/mutker/lumactl/internal/logger"
)

// Type identifies an event stream on the bus
type Type string

const (
	StateChange Type = "state_change"
	PowerUpdate Type = "power_update"
	Error       Type = "error"
)

// IsValid returns whether the event type is known to the bus
func (t Type) IsValid() bool {
	switch t {
	case StateChange, PowerUpdate, Error:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	return string(t)
}

// Listener receives event payloads. Listeners run synchronously on the
// publishing goroutine and must not assume a dedicated thread.
type Listener func(payload any)

type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]Listener
}

func NewBus() *Bus {
	return &Bus{
		listeners: make(map[Type][]Listener),
	}
}

// Register appends a listener for the given event type. Unknown event
// types are silently ignored.
func (b *Bus) Register(t Type, l Listener) {
	if !t.IsValid() || l == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], l)
}

// Publish invokes every listener registered for the event type, in
// registration order. A panicking listener is contained: remaining
// listeners still run, and the failure is republished as an Error event
// (or only logged when it happened inside an Error listener).
func (b *Bus) Publish(t Type, payload any) {
	if !t.IsValid() {
		return
	}

	b.mu.RLock()
	registered := b.listeners[t]
	listeners := make([]Listener, len(registered))
	copy(listeners, registered)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.dispatch(t, l, payload)
	}
}

func (b *Bus) dispatch(t Type, l Listener, payload any) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		errFactory := errors.New()
		err := errFactory.WithData(ErrListenerPanic, fmt.Sprintf("%s: %v", t, r))
		logger.ErrorWithCode(err).Msg("event listener failed")

		if t != Error {
			b.Publish(Error, error(err))
		}
	}()

	l(payload)
}
