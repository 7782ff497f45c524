package mqtt311

import (
	"errors"
	"fmt"
)

// EventHandler receives client lifecycle events. Match them with errors.Is
// and extract details with errors.As.
type EventHandler func(client *Client, event error)

// Lifecycle events.
var (
	// ErrConnected is emitted after a successful CONNACK.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted after DISCONNECT was sent.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is emitted when the stream to the broker breaks.
	ErrConnectionLost = errors.New("connection lost")
)

// Client errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectTimeout   = errors.New("timed out waiting for CONNACK")
	ErrSubscribeTimeout = errors.New("timed out waiting for SUBACK")
	ErrSubscribeFailed  = errors.New("subscribe failed")
	ErrClientClosed     = errors.New("client closed")
	ErrInvalidTopic     = errors.New("invalid topic")

	// ErrConnectRefused is the base of ConnectError for refusals other than
	// authentication failures.
	ErrConnectRefused = errors.New("connection refused")

	// ErrAuthFailed is the base of ConnectError for bad credentials and
	// authorization failures.
	ErrAuthFailed = errors.New("authentication failed")
)

// ConnectError reports a CONNACK refusal.
type ConnectError struct {
	err  error
	Code Status
}

// Error returns the refusal with its return code.
func (e *ConnectError) Error() string { return "connect failed: " + e.Code.String() }

// Unwrap returns ErrConnectRefused or ErrAuthFailed, and the Status.
func (e *ConnectError) Unwrap() []error { return []error{e.err, e.Code} }

// NewConnectError creates a ConnectError for a refusal status.
func NewConnectError(code Status) *ConnectError {
	base := ErrConnectRefused
	if code == StatusBadUsernameOrPassword || code == StatusNotAuthorized {
		base = ErrAuthFailed
	}
	return &ConnectError{err: base, Code: code}
}

// ConnectionLostError carries the transport error that ended the connection.
type ConnectionLostError struct {
	Cause error
}

// Error returns the loss with its cause, if any.
func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

// Unwrap returns ErrConnectionLost.
func (e *ConnectionLostError) Unwrap() error { return ErrConnectionLost }

// SubscribeError reports a SUBACK with the failure return code.
type SubscribeError struct {
	Topic string
}

// Error returns the rejected filter.
func (e *SubscribeError) Error() string { return "subscribe failed: " + e.Topic }

// Unwrap returns ErrSubscribeFailed.
func (e *SubscribeError) Unwrap() error { return ErrSubscribeFailed }

// statusError converts a dispatch status into the client error model. cause
// is the underlying encode or transport error, if any.
func statusError(status Status, cause error) error {
	var base error
	switch status {
	case StatusSuccess, StatusPingNotSent:
		return nil
	case StatusNoConnection:
		base = ErrNotConnected
	case StatusAlreadyConnected:
		base = ErrAlreadyConnected
	}

	switch {
	case base != nil:
		return fmt.Errorf("%w: %w", base, status)
	case cause != nil:
		return fmt.Errorf("%w: %w", status, cause)
	default:
		return status
	}
}
