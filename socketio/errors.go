package socketio

import (
	"errors"
	"fmt"

	"github.com/go-socketio/engine/packet"
)

// ErrInvalidPacket is re-exported so callers of this package don't need to
// import the packet package just to check the codec's error sentinel with
// errors.Is.
var ErrInvalidPacket = packet.ErrInvalidPacket

// ErrNotConnected is returned by operations addressed at a Sid that isn't in
// the CONNECTED state (already disconnected, or never connected).
var ErrNotConnected = errors.New("socketio: not connected")

// ErrAckTimeout is returned by Server.Call when the client doesn't
// acknowledge the event within the configured timeout.
var ErrAckTimeout = errors.New("socketio: ack timed out")

// ErrCallRequiresAsyncHandlers is returned by Server.Call when the server
// was configured with AsyncHandlers disabled: waiting for an ack requires
// the dispatch path that delivers it to run concurrently with the wait.
var ErrCallRequiresAsyncHandlers = errors.New("socketio: call requires async handlers to be enabled")

// ConnectionRefusedError is returned by a connect handler to reject a
// connection attempt. Message becomes the CONNECT_ERROR packet's message
// field; Data, if non-nil, is attached alongside it.
type ConnectionRefusedError struct {
	Message string
	Data    any
}

func (e *ConnectionRefusedError) Error() string {
	if e.Message == "" {
		return "socketio: connection refused"
	}
	return fmt.Sprintf("socketio: connection refused: %s", e.Message)
}

// NewConnectionRefusedError builds a ConnectionRefusedError, defaulting the
// message the way the reference implementation does when a handler raises
// the rejection with no explicit text.
func NewConnectionRefusedError(message string, data ...any) *ConnectionRefusedError {
	if message == "" {
		message = "Connection rejected by server"
	}
	var d any
	if len(data) == 1 {
		d = data[0]
	} else if len(data) > 1 {
		d = data
	}
	return &ConnectionRefusedError{Message: message, Data: d}
}
