// Package socketio implements the Socket.IO v5 server-side protocol engine:
// packet framing is handled by the sibling packet package, while this
// package owns sessions, namespaces, rooms, acknowledgements and the public
// Server facade. It never speaks Engine.IO itself — a Transport is supplied
// by the caller and is the only thing this package ever reads bytes from or
// writes bytes to.
package socketio

import "context"

// Sid is a Socket.IO session id: the identifier this package mints for one
// (engine session, namespace) pairing. It is distinct from the engine
// session id the Transport assigns to the underlying connection.
type Sid string

// EngineSid is the transport-level connection id a Transport assigns.
type EngineSid string

// Room is a label sockets can be grouped under for broadcast.
type Room string

// Transport is the contract a caller's Engine.IO (or compatible) layer must
// satisfy for the Server to drive it. The Server holds the one Transport
// given to NewServer and addresses every engine session through it.
type Transport interface {
	// Send writes one already-framed text or binary payload to engineSid.
	// event is "message" for ordinary frames and "disconnect" if the
	// transport-level connection itself should be torn down.
	Send(ctx context.Context, engineSid EngineSid, event string, data []byte) error

	// Disconnect closes the underlying transport connection for engineSid.
	Disconnect(ctx context.Context, engineSid EngineSid) error

	// GetSession loads transport-persisted session data previously saved
	// with SaveSession (used to recover per-namespace session data at CONNECT).
	// It returns ok=false if nothing has been saved.
	GetSession(ctx context.Context, engineSid EngineSid) (data map[string]any, ok bool, err error)

	// SaveSession persists session data for engineSid.
	SaveSession(ctx context.Context, engineSid EngineSid, data map[string]any) error
}

// BackgroundTasks is an optional capability a Transport may also implement
// to let handlers schedule work without reaching for the goroutine
// primitives directly; a Server works fine without it by using goroutines.
type BackgroundTasks interface {
	StartBackgroundTask(fn func())
	Sleep(ctx context.Context, seconds float64) error
}
