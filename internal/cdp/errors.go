package cdp

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client operations. Callers match them
// with errors.Is.
var (
	// ErrTimeout indicates no response arrived within the caller's
	// deadline. The pending entry is removed before it is returned.
	ErrTimeout = errors.New("cdp: command timed out")

	// ErrConnectionClosed indicates the transport failed or was closed
	// while the command was outstanding. Every pending command receives
	// it when the connection drops.
	ErrConnectionClosed = errors.New("cdp: connection closed")

	// ErrClientClosed indicates the client was explicitly closed and
	// has not been reconnected with Connect.
	ErrClientClosed = errors.New("cdp: client closed")

	// ErrNotConnected indicates the client has no connection and no
	// dialer to establish one.
	ErrNotConnected = errors.New("cdp: not connected")
)

// Error represents a CDP protocol error returned by the remote side
// for a specific command. It is surfaced only to the caller that
// issued the command.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}
