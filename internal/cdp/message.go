package cdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request represents a CDP command request.
type Request struct {
	ID        uint64      `json:"id"`
	Method    string      `json:"method"`
	Params    interface{} `json:"params,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
}

// Response represents a CDP command response.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Event represents a CDP event notification.
type Event struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Domain returns the protocol domain an event belongs to,
// e.g. "Page" for "Page.loadEventFired".
func (e Event) Domain() string {
	return methodDomain(e.Method)
}

// methodDomain extracts the domain prefix from a qualified method name.
// Returns "" if the name carries no domain separator.
func methodDomain(method string) string {
	if i := strings.IndexByte(method, '.'); i > 0 {
		return method[:i]
	}
	return ""
}

// message is used internally to determine message type during parsing.
type message struct {
	ID        uint64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// parseMessage parses a raw CDP frame and returns either a Response or Event.
// Returns (response, nil, nil) for command responses.
// Returns (nil, event, nil) for events.
// Returns (nil, nil, error) for frames that fit neither shape.
// Command ids are assigned starting at 1, so a frame with an id field of 0
// is never a response.
func parseMessage(data []byte) (*Response, *Event, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse CDP frame: %w", err)
	}

	// Frames with an id are responses to commands. A response carries
	// a result or an error envelope, never both.
	if msg.ID != 0 {
		if msg.Result != nil && msg.Error != nil {
			return nil, nil, fmt.Errorf("response %d carries both result and error", msg.ID)
		}
		return &Response{
			ID:     msg.ID,
			Result: msg.Result,
			Error:  msg.Error,
		}, nil, nil
	}

	// Frames with a method but no id are events
	if msg.Method != "" {
		return nil, &Event{
			Method:    msg.Method,
			Params:    msg.Params,
			SessionID: msg.SessionID,
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown CDP frame format: %s", string(data))
}
