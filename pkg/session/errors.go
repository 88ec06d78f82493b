package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrAlreadyActive is returned when Connect is called while a
	// connect is in flight or a session is live.
	ErrAlreadyActive = errors.New("session: already connecting or connected")

	// ErrNotConnected is returned when sending without a live session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrMissingCredentials is returned when neither an API key nor a
	// token provider is configured.
	ErrMissingCredentials = errors.New("session: missing API key or token provider")

	// ErrSendQueueFull is returned when the outbound queue is full.
	// A slow network degrades to dropped messages, never to a stalled
	// capture loop.
	ErrSendQueueFull = errors.New("session: send queue full, message dropped")
)

// ConnectError reports a failed connection attempt: the primary
// endpoint was unreachable or rejected the handshake, and the single
// fallback retry failed too. The session remains disconnected.
type ConnectError struct {
	Primary  error
	Fallback error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("session: connect failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
	}
	return fmt.Sprintf("session: connect failed: %v", e.Primary)
}

// Unwrap returns the fallback error when present, the primary otherwise.
func (e *ConnectError) Unwrap() error {
	if e.Fallback != nil {
		return e.Fallback
	}
	return e.Primary
}

// SessionDroppedError reports a mid-session transport failure. It is
// deliberately distinct from ConnectError: the session was healthy and
// has been torn down through the normal disconnect path, and the caller
// may reconnect.
type SessionDroppedError struct {
	Err error
}

// Error implements the error interface.
func (e *SessionDroppedError) Error() string {
	return fmt.Sprintf("session: dropped: %v", e.Err)
}

// Unwrap returns the underlying transport error.
func (e *SessionDroppedError) Unwrap() error {
	return e.Err
}

// IsSessionDropped reports whether err is a mid-session drop.
func IsSessionDropped(err error) bool {
	var de *SessionDroppedError
	return errors.As(err, &de)
}
