package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/go-socketio/engine/packet"
	"github.com/go-socketio/engine/pkg/log"
	"github.com/go-socketio/engine/pkg/types"
)

var serverLog = log.NewLog("socketio:server")

// Server is the top-level facade: it owns the namespace registry and the
// Manager, and is the one thing that ever touches the Transport directly.
// Everything a caller does — registering handlers, emitting, joining
// rooms, disconnecting — goes through a Server.
type Server struct {
	opts      *ServerOptions
	transport Transport
	manager   Manager

	namespaces *types.Map[string, *namespace]
	decoders   *types.Map[EngineSid, *packet.Decoder]

	sem *semaphore.Weighted
}

// NewServer builds a Server bound to transport, configured by opts (nil for
// all defaults).
func NewServer(transport Transport, opts *ServerOptions) *Server {
	if opts == nil {
		opts = DefaultServerOptions()
	}

	s := &Server{
		opts:       opts,
		transport:  transport,
		manager:    opts.ManagerOrDefault(),
		namespaces: &types.Map[string, *namespace]{},
		decoders:   &types.Map[EngineSid, *packet.Decoder]{},
	}
	s.manager.Initialize(s)

	if max := opts.MaxConcurrentAsyncHandlers(); max > 0 {
		s.sem = semaphore.NewWeighted(max)
	}

	return s
}

func (s *Server) nsp(path string) *namespace {
	n, _ := s.namespaces.LoadOrStore(path, newNamespace(path))
	return n
}

// OnConnect registers the two-argument connect handler for path.
func (s *Server) OnConnect(path string, h ConnectHandler) {
	s.nsp(path).onConnect(h)
}

// OnConnectWithAuth registers the three-argument connect handler for path.
func (s *Server) OnConnectWithAuth(path string, h ConnectHandlerWithAuth) {
	s.nsp(path).onConnectWithAuth(h)
}

// OnDisconnect registers the disconnect handler for path.
func (s *Server) OnDisconnect(path string, h DisconnectHandler) {
	s.nsp(path).onDisconnect(h)
}

// On registers an event handler for path. event == "*" registers the
// catch-all invoked when no exact handler matches.
func (s *Server) On(path, event string, h EventHandler) {
	s.nsp(path).on(event, h)
}

// RegisterNamespaceHandler discovers and binds h's OnXxx methods onto its
// declared namespace in one call.
func (s *Server) RegisterNamespaceHandler(h NamespaceHandler) error {
	return registerNamespaceMethods(s.nsp(h.Namespace()), h)
}

// Emit sends event to every connected sid in namespace matching opts.
func (s *Server) Emit(ctx context.Context, namespace, event string, data []any, opts EmitOptions) error {
	return s.manager.Emit(ctx, event, data, namespace, opts)
}

// Send emits the reserved "message" event to a single sid.
func (s *Server) Send(ctx context.Context, namespace string, sid Sid, data ...any) error {
	return s.manager.Emit(ctx, "message", data, namespace, EmitOptions{Room: Room(sid)})
}

// Call emits event to sid and blocks until its acknowledgement arrives or
// timeout elapses (the option default if timeout <= 0).
func (s *Server) Call(ctx context.Context, namespace string, sid Sid, event string, args []any, timeout time.Duration) ([]any, error) {
	if !s.opts.AsyncHandlers() {
		return nil, ErrCallRequiresAsyncHandlers
	}
	if timeout <= 0 {
		timeout = s.opts.AckTimeout()
	}

	result := make(chan []any, 1)
	err := s.manager.Emit(ctx, event, args, namespace, EmitOptions{
		Room:     Room(sid),
		Callback: func(ackArgs []any) { result <- ackArgs },
	})
	if err != nil {
		return nil, err
	}

	select {
	case args := <-result:
		return args, nil
	case <-time.After(timeout):
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect forcibly ends sid's session and, once no namespace of its
// engine session remains connected, tells the transport to close the
// connection.
func (s *Server) Disconnect(ctx context.Context, nsPath string, sid Sid) error {
	sess, ok := s.manager.session(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, sid)
	}
	if err := s.disconnectSid(ctx, sid, "server namespace disconnect"); err != nil {
		return err
	}
	remaining := false
	s.namespaces.Range(func(path string, _ *namespace) bool {
		_, remaining = s.manager.SidFromEngineSid(sess.engineSid, path)
		return !remaining
	})
	if !remaining {
		return s.transport.Disconnect(ctx, sess.engineSid)
	}
	return nil
}

func (s *Server) disconnectSid(ctx context.Context, sid Sid, reason string) error {
	sess, ok := s.manager.session(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, sid)
	}

	p := packet.NewPacket(packet.DISCONNECT)
	p.Namespace = sess.namespace
	_ = s.SendPacket(ctx, sid, p)

	ns, hasNs := s.namespaces.Load(sess.namespace)
	if err := s.manager.Disconnect(ctx, sid); err != nil {
		return err
	}
	if hasNs && ns.disconnect != nil {
		ns.disconnect(ctx, sid, reason)
	}
	return nil
}

// EnterRoom, LeaveRoom, CloseRoom and Rooms proxy straight to the Manager;
// they exist on Server so callers only need to hold one reference.
func (s *Server) EnterRoom(sid Sid, room Room) { s.manager.EnterRoom(sid, room) }
func (s *Server) LeaveRoom(sid Sid, room Room) { s.manager.LeaveRoom(sid, room) }
func (s *Server) CloseRoom(room Room)          { s.manager.CloseRoom(room) }
func (s *Server) Rooms(sid Sid) []Room         { return s.manager.GetRooms(sid) }

// Session returns a snapshot of sid's stored session data. The snapshot
// reflects whatever was last recovered from or saved through the Transport
// (see loadSession/persistSession).
func (s *Server) Session(sid Sid) (map[string]any, bool) {
	sess, ok := s.manager.session(sid)
	if !ok {
		return nil, false
	}
	return sess.snapshot(), true
}

// SaveSession replaces sid's stored session data and persists it back
// through the Transport's SaveSession, keyed by namespace the way the
// reference implementation's scoped session() acquisition does on exit.
func (s *Server) SaveSession(ctx context.Context, sid Sid, data map[string]any) error {
	sess, ok := s.manager.session(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, sid)
	}
	sess.save(data)
	return s.persistSession(ctx, sess)
}

// persistSession writes sess's current data into the Transport's session
// store, merged into the full per-engine-session map under sess.namespace —
// other namespaces sharing the same engine session keep their own entries.
func (s *Server) persistSession(ctx context.Context, sess *session) error {
	full, ok, err := s.transport.GetSession(ctx, sess.engineSid)
	if err != nil {
		return err
	}
	if !ok || full == nil {
		full = make(map[string]any, 1)
	}
	full[sess.namespace] = sess.snapshot()
	return s.transport.SaveSession(ctx, sess.engineSid, full)
}

// loadSession recovers sess's namespace entry from whatever the Transport
// has previously persisted, seeding the in-memory session data before the
// connect handler runs — the session recovery a reconnecting client
// relies on.
func (s *Server) loadSession(ctx context.Context, sess *session) {
	full, ok, err := s.transport.GetSession(ctx, sess.engineSid)
	if err != nil || !ok {
		return
	}
	if nsData, ok := full[sess.namespace].(map[string]any); ok {
		sess.save(nsData)
	}
}

// SendPacket implements PacketSender by encoding p and writing it (plus any
// binary attachment frames) through the Transport for the engine session
// backing sid.
func (s *Server) SendPacket(ctx context.Context, sid Sid, p *packet.Packet) error {
	sess, ok := s.manager.session(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, sid)
	}

	text, attachments, err := packet.Encode(p)
	if err != nil {
		return err
	}
	if err := s.transport.Send(ctx, sess.engineSid, "message", []byte(text)); err != nil {
		return err
	}
	for _, a := range attachments {
		if err := s.transport.Send(ctx, sess.engineSid, "message", a); err != nil {
			return err
		}
	}
	return nil
}

// OnMessage is the Transport entry point for an inbound text frame.
func (s *Server) OnMessage(ctx context.Context, engineSid EngineSid, frame []byte) error {
	dec, _ := s.decoders.LoadOrStore(engineSid, packet.NewDecoder())
	p, err := dec.AddText(string(frame))
	if err != nil {
		serverLog.Debug("invalid frame from %s: %v", engineSid, err)
		return err
	}
	if p == nil {
		return nil // awaiting binary attachments
	}
	return s.dispatch(ctx, engineSid, p)
}

// OnBinaryMessage is the Transport entry point for an inbound binary
// attachment frame.
func (s *Server) OnBinaryMessage(ctx context.Context, engineSid EngineSid, frame []byte) error {
	dec, ok := s.decoders.Load(engineSid)
	if !ok {
		return fmt.Errorf("%w: binary frame with no decoder for %s", ErrInvalidPacket, engineSid)
	}
	p, err := dec.AddAttachment(frame)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return s.dispatch(ctx, engineSid, p)
}

// OnTransportDisconnect is the Transport entry point for the underlying
// connection closing; it cascades disconnection across every namespace
// engineSid had joined.
func (s *Server) OnTransportDisconnect(ctx context.Context, engineSid EngineSid, reason string) {
	s.decoders.Delete(engineSid)

	s.namespaces.Range(func(path string, _ *namespace) bool {
		if sid, ok := s.manager.SidFromEngineSid(engineSid, path); ok {
			_ = s.disconnectSid(ctx, sid, reason)
		}
		return true
	})
}

func (s *Server) dispatch(ctx context.Context, engineSid EngineSid, p *packet.Packet) error {
	switch p.Type {
	case packet.CONNECT:
		return s.handleConnect(ctx, engineSid, p)
	case packet.EVENT, packet.BINARY_EVENT:
		return s.handleEvent(ctx, engineSid, p)
	case packet.ACK, packet.BINARY_ACK:
		return s.handleAck(engineSid, p)
	case packet.DISCONNECT:
		if sid, ok := s.manager.SidFromEngineSid(engineSid, p.Namespace); ok {
			return s.disconnectSid(ctx, sid, "client namespace disconnect")
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected top-level packet type %s", ErrInvalidPacket, p.Type)
	}
}

func (s *Server) handleConnect(ctx context.Context, engineSid EngineSid, p *packet.Packet) error {
	ns, ok := s.namespaces.Load(p.Namespace)
	if !ok {
		// The root namespace is implicitly connectable even with no handler
		// registered on it, matching the reference implementation.
		if p.Namespace != "/" {
			return s.sendConnectError(ctx, engineSid, p.Namespace, "Invalid namespace", nil)
		}
		ns = s.nsp(p.Namespace)
	}

	auth, _ := p.Data.(map[string]any)

	if s.opts.AlwaysConnect() {
		sid, err := s.manager.Connect(ctx, engineSid, p.Namespace)
		if err != nil {
			return err
		}
		sess, _ := s.manager.session(sid)
		s.loadSession(ctx, sess)

		if err := s.ackConnect(ctx, sid, p.Namespace); err != nil {
			return err
		}
		sess.setState(SessionConnected)

		if err := ns.connect.call(ctx, sid, auth); err != nil {
			reason := "connection rejected by server"
			if refused, ok := err.(*ConnectionRefusedError); ok {
				reason = refused.Message
			}
			return s.disconnectSid(ctx, sid, reason)
		}
		return nil
	}

	// Allocate the sid up front so the handler (if any) can act on it — join
	// rooms, stash session data — before the CONNECT ack goes out.
	sid, err := s.manager.Connect(ctx, engineSid, p.Namespace)
	if err != nil {
		return err
	}
	sess, _ := s.manager.session(sid)
	s.loadSession(ctx, sess)

	if ns.connect.isSet() {
		if err := ns.connect.call(ctx, sid, auth); err != nil {
			_ = s.manager.Disconnect(ctx, sid)
			message := "connection rejected by server"
			var data any
			if refused, ok := err.(*ConnectionRefusedError); ok {
				message = refused.Message
				data = refused.Data
			}
			return s.sendConnectError(ctx, engineSid, p.Namespace, message, data)
		}
	}

	sess.setState(SessionConnected)
	return s.ackConnect(ctx, sid, p.Namespace)
}

func (s *Server) ackConnect(ctx context.Context, sid Sid, namespace string) error {
	ack := packet.NewPacket(packet.CONNECT)
	ack.Namespace = namespace
	ack.Data = map[string]any{"sid": string(sid)}
	return s.SendPacket(ctx, sid, ack)
}

func (s *Server) sendConnectError(ctx context.Context, engineSid EngineSid, namespace, message string, data any) error {
	errPacket := map[string]any{"message": message}
	if data != nil {
		errPacket["data"] = data
	}
	encoded, err := json.Marshal(errPacket)
	if err != nil {
		return err
	}

	text := strconv.Itoa(int(packet.CONNECT_ERROR))
	if namespace != "" && namespace != "/" {
		text += namespace + ","
	}
	text += string(encoded)
	return s.transport.Send(ctx, engineSid, "message", []byte(text))
}

func (s *Server) handleEvent(ctx context.Context, engineSid EngineSid, p *packet.Packet) error {
	sid, ok := s.manager.SidFromEngineSid(engineSid, p.Namespace)
	if !ok || !s.manager.IsConnected(sid) {
		serverLog.Debug("event for unknown session %s/%s dropped", engineSid, p.Namespace)
		return nil
	}

	args, _ := p.Data.([]any)
	if len(args) == 0 {
		return fmt.Errorf("%w: EVENT packet with no event name", ErrInvalidPacket)
	}
	event, _ := args[0].(string)
	args = args[1:]

	ns, ok := s.namespaces.Load(p.Namespace)
	if !ok {
		return nil
	}
	handler, isCatchAll := ns.resolve(event)
	if handler == nil {
		return nil
	}
	callArgs := args
	if isCatchAll {
		callArgs = append([]any{event}, args...)
	}

	run := func() {
		result, err := handler(ctx, sid, callArgs)
		if err != nil {
			serverLog.Error("handler for %q returned error: %v", event, err)
			return
		}
		if p.ID == nil {
			return
		}
		ack := packet.NewPacket(packet.ACK)
		ack.Namespace = p.Namespace
		ack.ID = p.ID
		ack.Data = result
		if err := s.SendPacket(ctx, sid, ack); err != nil {
			serverLog.Error("failed sending ack for %q: %v", event, err)
		}
	}

	if !s.opts.AsyncHandlers() {
		run()
		return nil
	}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer s.sem.Release(1)
			run()
		}()
	} else {
		go run()
	}
	return nil
}

func (s *Server) handleAck(engineSid EngineSid, p *packet.Packet) error {
	if p.ID == nil {
		return fmt.Errorf("%w: ACK packet with no id", ErrInvalidPacket)
	}
	sid, ok := s.manager.SidFromEngineSid(engineSid, p.Namespace)
	if !ok {
		return nil
	}
	args, _ := p.Data.([]any)
	if err := s.manager.TriggerCallback(sid, *p.ID, args); err != nil {
		serverLog.Debug("ack dropped: %v", err)
	}
	return nil
}
