package events

import "codeberg.org/mutker/lumactl/internal/errors"

const (
	ErrListenerPanic = errors.ErrorCode("events_listener_panic")
)
