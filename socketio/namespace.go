package socketio

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// EventHandler is the ordinary shape of an event handler registered with
// On: it receives the event's arguments and may return a value to be sent
// back as the acknowledgement, plus an error.
//
//   - nil return value, nil error: ack sent with no data (or no ack at all
//     if the client didn't request one)
//   - non-nil, non-array value: wrapped as the single-element ack payload
//   - []any value: sent as the ack payload verbatim (multiple ack arguments)
//   - non-nil error: no ack is sent; the error is logged
type EventHandler func(ctx context.Context, sid Sid, args []any) (any, error)

// ConnectHandler is the two-argument connect handler shape, used when a
// namespace never inspects the auth payload.
type ConnectHandler func(ctx context.Context, sid Sid) error

// ConnectHandlerWithAuth is the three-argument connect handler shape, used
// when the namespace expects an auth payload for every connection attempt.
// Returning a *ConnectionRefusedError rejects the connection.
type ConnectHandlerWithAuth func(ctx context.Context, sid Sid, auth map[string]any) error

// DisconnectHandler runs when a session leaves CONNECTED, for any reason.
type DisconnectHandler func(ctx context.Context, sid Sid, reason string)

// connectBinding tags which of the two connect handler shapes a namespace
// was registered with, decided once at registration time instead of being
// inferred per call — Go has no optional-arity functions to dispatch on.
type connectBinding struct {
	plain    ConnectHandler
	withAuth ConnectHandlerWithAuth
}

func (b connectBinding) isSet() bool {
	return b.plain != nil || b.withAuth != nil
}

func (b connectBinding) call(ctx context.Context, sid Sid, auth map[string]any) error {
	if b.withAuth != nil {
		return b.withAuth(ctx, sid, auth)
	}
	if b.plain != nil {
		return b.plain(ctx, sid)
	}
	return nil
}

// namespace holds one namespace's event routing table: the connect/
// disconnect handlers, the per-event handlers, and the catch-all handler
// used when no exact match exists.
type namespace struct {
	mu sync.RWMutex

	path       string
	connect    connectBinding
	disconnect DisconnectHandler
	handlers   map[string]EventHandler
	catchAll   EventHandler
}

func newNamespace(path string) *namespace {
	return &namespace{
		path:     path,
		handlers: make(map[string]EventHandler),
	}
}

func (n *namespace) onConnect(h ConnectHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connect = connectBinding{plain: h}
}

func (n *namespace) onConnectWithAuth(h ConnectHandlerWithAuth) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connect = connectBinding{withAuth: h}
}

func (n *namespace) onDisconnect(h DisconnectHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnect = h
}

func (n *namespace) on(event string, h EventHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if event == "*" {
		n.catchAll = h
		return
	}
	n.handlers[event] = h
}

// resolve picks the handler for event: an exact match first, the catch-all
// otherwise, or nil if neither exists (the event is dropped).
func (n *namespace) resolve(event string) (EventHandler, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if h, ok := n.handlers[event]; ok {
		return h, false
	}
	if n.catchAll != nil {
		return n.catchAll, true
	}
	return nil, false
}

// NamespaceHandler lets a caller register a whole namespace's behavior as a
// single Go value instead of wiring each handler individually: any On<Event>
// method found by reflection (OnConnect, OnMyEvent, ...) is bound the way
// On would bind it by hand. Method names are converted from CamelCase to the
// wire event's own casing only for the reserved connect/disconnect hooks;
// every other On<Event> method is bound to the snake_cased form of <Event>.
type NamespaceHandler interface {
	// Namespace returns the path this handler registers under, e.g. "/chat".
	Namespace() string
}

// registerNamespaceMethods discovers exported OnXxx methods on h via reflection and
// binds them into ns, mirroring the class-based registration style of
// register_namespace: a method named OnConnect/OnConnectWithAuth/
// OnDisconnect binds to the corresponding reserved hook, OnFoo binds to the
// "foo" event, and OnStar binds as the catch-all.
func registerNamespaceMethods(ns *namespace, h NamespaceHandler) error {
	v := reflect.ValueOf(h)
	t := v.Type()

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "On") || m.Name == "Namespace" {
			continue
		}
		method := v.Method(i)

		switch m.Name {
		case "OnConnect":
			if fn, ok := method.Interface().(func(context.Context, Sid) error); ok {
				ns.onConnect(fn)
				continue
			}
		case "OnConnectWithAuth":
			if fn, ok := method.Interface().(func(context.Context, Sid, map[string]any) error); ok {
				ns.onConnectWithAuth(fn)
				continue
			}
		case "OnDisconnect":
			if fn, ok := method.Interface().(func(context.Context, Sid, string)); ok {
				ns.onDisconnect(fn)
				continue
			}
		}

		fn, ok := method.Interface().(func(context.Context, Sid, []any) (any, error))
		if !ok {
			return fmt.Errorf("socketio: %s has unexpected signature for an On* handler", m.Name)
		}
		event := eventNameFor(m.Name)
		ns.on(event, fn)
	}
	return nil
}

// eventNameFor converts a method name like OnOrderCreate into the wire
// event name order_create, and Star into the catch-all "*".
func eventNameFor(methodName string) string {
	trimmed := strings.TrimPrefix(methodName, "On")
	if trimmed == "Star" {
		return "*"
	}

	var b strings.Builder
	for i, r := range trimmed {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
