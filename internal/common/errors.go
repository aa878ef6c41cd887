package common

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the transport and dispatch layers.
var (
	ErrNotConnected      = errors.New("realtime: not connected")
	ErrAlreadyConnected  = errors.New("realtime: already connected")
	ErrConnectionClosed  = errors.New("realtime: connection closed")
	ErrReconnectExceeded = errors.New("realtime: reconnect attempts exceeded")
	ErrDeliveryExhausted = errors.New("notify: delivery attempts exhausted")
	ErrUnknownScheduled  = errors.New("notify: no scheduled notification with that id")
)

// TimeoutError marks a join/connect/ack deadline expiry. It rejects the
// specific call; it never tears down unrelated state.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }

// ChannelError wraps a single adapter failure. It is recorded on the
// notification and never aborts sibling channels.
type ChannelError struct {
	Channel Channel
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
