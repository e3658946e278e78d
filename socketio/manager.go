package socketio

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/go-socketio/engine/packet"
	"github.com/go-socketio/engine/pkg/log"
	"github.com/go-socketio/engine/pkg/types"
)

var managerLog = log.NewLog("socketio:manager")

// AckCallback receives the arguments a client passed back with an
// acknowledgement, in the order the client sent them.
type AckCallback func(args []any)

// PacketSender is how the Manager actually gets a packet onto the wire for
// a given Sid; the Server implements it by resolving the Sid's engine
// session and Transport.
type PacketSender interface {
	SendPacket(ctx context.Context, sid Sid, p *packet.Packet) error
}

// EmitOptions narrows an Emit call the way Manager.emit's keyword arguments
// do in the reference implementation.
type EmitOptions struct {
	// Room restricts delivery to sids that have joined Room. The zero value
	// means "every connected sid in the namespace".
	Room Room

	// SkipSid excludes one sid from delivery, used so a client's own emit
	// doesn't echo back to itself when broadcasting from inside a handler.
	SkipSid Sid

	// Callback, if non-nil, is invoked with the client's acknowledgement
	// arguments. Only meaningful when addressing a single sid — Socket.IO
	// doesn't support acks on room broadcasts to more than one recipient,
	// so Emit returns an error if Callback is set alongside a Room that
	// resolves to more than one sid.
	Callback AckCallback
}

// Manager is the engine's room-and-acknowledgement registry: it owns the
// set of live sessions, which rooms each belongs to, and the bookkeeping
// needed to match an incoming ACK packet back to the callback that was
// registered when the corresponding EVENT went out.
type Manager interface {
	Initialize(sender PacketSender)

	Connect(ctx context.Context, engineSid EngineSid, namespace string) (Sid, error)
	Disconnect(ctx context.Context, sid Sid) error
	IsConnected(sid Sid) bool
	SidFromEngineSid(engineSid EngineSid, namespace string) (Sid, bool)

	EnterRoom(sid Sid, room Room)
	LeaveRoom(sid Sid, room Room)
	CloseRoom(room Room)
	GetRooms(sid Sid) []Room

	Emit(ctx context.Context, event string, data []any, namespace string, opts EmitOptions) error
	TriggerCallback(sid Sid, id uint64, args []any) error

	session(sid Sid) (*session, bool)
}

type ackKey struct {
	sid Sid
	id  uint64
}

type manager struct {
	sender PacketSender

	sessions   *types.Map[Sid, *session]
	byEngine   *types.Map[EngineSid, *types.Map[string, Sid]]
	rooms      *types.Map[Room, *types.Set[Sid]]
	sidRooms   *types.Map[Sid, *types.Set[Room]]
	ackCounter *types.Map[Sid, *atomic.Uint64]
	pending    *types.Map[ackKey, AckCallback]
}

// NewManager builds the default in-memory Manager. It holds no connection
// to any other process; sessions, rooms and pending acks all live only as
// long as this instance does.
func NewManager() Manager {
	return &manager{
		sessions:   &types.Map[Sid, *session]{},
		byEngine:   &types.Map[EngineSid, *types.Map[string, Sid]]{},
		rooms:      &types.Map[Room, *types.Set[Sid]]{},
		sidRooms:   &types.Map[Sid, *types.Set[Room]]{},
		ackCounter: &types.Map[Sid, *atomic.Uint64]{},
		pending:    &types.Map[ackKey, AckCallback]{},
	}
}

func (m *manager) Initialize(sender PacketSender) {
	m.sender = sender
}

func (m *manager) Connect(ctx context.Context, engineSid EngineSid, namespace string) (Sid, error) {
	sid := Sid(uuid.NewString())
	s := newSession(sid, engineSid, namespace)
	m.sessions.Store(sid, s)

	nsps, _ := m.byEngine.LoadOrStore(engineSid, &types.Map[string, Sid]{})
	nsps.Store(namespace, sid)

	// Every sid is a member of its own personal room, so Emit(..., room=sid)
	// and "send to this one client" are the same operation.
	m.EnterRoom(sid, Room(sid))

	managerLog.Debug("connect engine=%s namespace=%s sid=%s", engineSid, namespace, sid)
	return sid, nil
}

func (m *manager) Disconnect(ctx context.Context, sid Sid) error {
	s, ok := m.sessions.Load(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, sid)
	}
	s.setState(SessionDisconnecting)

	if rooms, ok := m.sidRooms.LoadAndDelete(sid); ok {
		for _, room := range rooms.Keys() {
			m.leaveRoomLocked(sid, room)
		}
	}

	if nsps, ok := m.byEngine.Load(s.engineSid); ok {
		nsps.Delete(s.namespace)
		if nsps.Len() == 0 {
			m.byEngine.Delete(s.engineSid)
		}
	}

	m.ackCounter.Delete(sid)
	m.sessions.Delete(sid)

	managerLog.Debug("disconnect sid=%s", sid)
	return nil
}

func (m *manager) IsConnected(sid Sid) bool {
	s, ok := m.sessions.Load(sid)
	if !ok {
		return false
	}
	return s.State() == SessionConnected
}

func (m *manager) SidFromEngineSid(engineSid EngineSid, namespace string) (Sid, bool) {
	nsps, ok := m.byEngine.Load(engineSid)
	if !ok {
		return "", false
	}
	return nsps.Load(namespace)
}

func (m *manager) EnterRoom(sid Sid, room Room) {
	members, _ := m.rooms.LoadOrStore(room, types.NewSet[Sid]())
	members.Add(sid)

	rooms, _ := m.sidRooms.LoadOrStore(sid, types.NewSet[Room]())
	rooms.Add(room)
}

func (m *manager) LeaveRoom(sid Sid, room Room) {
	if rooms, ok := m.sidRooms.Load(sid); ok {
		rooms.Delete(room)
	}
	m.leaveRoomLocked(sid, room)
}

func (m *manager) leaveRoomLocked(sid Sid, room Room) {
	if members, ok := m.rooms.Load(room); ok {
		members.Delete(sid)
		if members.Len() == 0 {
			m.rooms.Delete(room)
		}
	}
}

func (m *manager) CloseRoom(room Room) {
	members, ok := m.rooms.LoadAndDelete(room)
	if !ok {
		return
	}
	for _, sid := range members.Keys() {
		if rooms, ok := m.sidRooms.Load(sid); ok {
			rooms.Delete(room)
		}
	}
}

func (m *manager) GetRooms(sid Sid) []Room {
	rooms, ok := m.sidRooms.Load(sid)
	if !ok {
		return nil
	}
	return rooms.Keys()
}

func (m *manager) session(sid Sid) (*session, bool) {
	return m.sessions.Load(sid)
}

func (m *manager) targets(namespace string, opts EmitOptions) []Sid {
	seen := types.NewSet[Sid]()
	var out []Sid
	add := func(sid Sid) {
		if sid == opts.SkipSid || seen.Has(sid) {
			return
		}
		s, ok := m.sessions.Load(sid)
		if !ok || s.namespace != namespace {
			return
		}
		seen.Add(sid)
		out = append(out, sid)
	}

	if opts.Room != "" {
		if members, ok := m.rooms.Load(opts.Room); ok {
			for _, sid := range members.Keys() {
				add(sid)
			}
		}
		return out
	}

	m.sessions.Range(func(sid Sid, s *session) bool {
		if s.namespace == namespace {
			add(sid)
		}
		return true
	})
	return out
}

func (m *manager) Emit(ctx context.Context, event string, data []any, namespace string, opts EmitOptions) error {
	if m.sender == nil {
		return fmt.Errorf("socketio: manager not initialized")
	}

	targets := m.targets(namespace, opts)
	if opts.Callback != nil && len(targets) > 1 {
		return fmt.Errorf("socketio: cannot use a callback when emitting to more than one recipient")
	}

	payload := append([]any{event}, data...)
	for _, sid := range targets {
		p := packet.NewPacket(packet.EVENT)
		p.Namespace = namespace
		p.Data = payload

		if opts.Callback != nil {
			id := m.nextAckID(sid)
			p.ID = &id
			m.pending.Store(ackKey{sid: sid, id: id}, opts.Callback)
		}

		if err := m.sender.SendPacket(ctx, sid, p); err != nil {
			return err
		}
	}
	return nil
}

// nextAckID mints ack ids starting at 1, per sid, matching the reference
// implementation's itertools.count(1).
func (m *manager) nextAckID(sid Sid) uint64 {
	counter, _ := m.ackCounter.LoadOrStore(sid, &atomic.Uint64{})
	return counter.Add(1)
}

func (m *manager) TriggerCallback(sid Sid, id uint64, args []any) error {
	cb, ok := m.pending.LoadAndDelete(ackKey{sid: sid, id: id})
	if !ok {
		return fmt.Errorf("socketio: no pending ack %d for sid %s", id, sid)
	}
	cb(args)
	return nil
}
