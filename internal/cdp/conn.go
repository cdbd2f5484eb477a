// Package cdp implements a Chrome DevTools Protocol client: a JSON
// command/response/event protocol over one persistent websocket. Any
// number of goroutines may issue commands concurrently; a single read
// loop correlates responses to callers by id and fans events out to
// subscribed handlers.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/coder/websocket"
)

// maxFrameBytes bounds inbound frame size. Screenshot and HTML payloads
// run far past the websocket library's 32 KiB default.
const maxFrameBytes = 64 << 20

// Conn defines the interface for a WebSocket connection.
// This abstraction enables testing with mock connections.
type Conn interface {
	// Read reads a message from the connection.
	// Returns message type, payload, and any error.
	Read(ctx context.Context) (websocket.MessageType, []byte, error)

	// Write writes a message to the connection.
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error

	// Close closes the connection with a status code and reason.
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc establishes a transport connection. The client calls it on
// Connect and on automatic reconnect.
type DialFunc func(ctx context.Context) (Conn, error)

// wsDialer returns a DialFunc for a websocket CDP endpoint.
func wsDialer(wsURL string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", wsURL, err)
		}
		conn.SetReadLimit(maxFrameBytes)
		return conn, nil
	}
}

// isReadTimeout reports whether a read error means "no frame available
// yet" rather than a dead transport. The read loop continues straight
// through these without an added delay.
func isReadTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// closeStatus classifies a transport error by websocket close code.
// Normal and going-away closures are graceful; everything else,
// including non-websocket errors, is abnormal.
func closeStatus(err error) (code websocket.StatusCode, graceful bool) {
	code = websocket.CloseStatus(err)
	switch code {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return code, true
	default:
		return code, false
	}
}
