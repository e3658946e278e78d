package socketio

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     map[EngineSid][]string
	disc     map[EngineSid]bool
	sessions map[EngineSid]map[string]any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:     make(map[EngineSid][]string),
		disc:     make(map[EngineSid]bool),
		sessions: make(map[EngineSid]map[string]any),
	}
}

func (f *fakeTransport) Send(ctx context.Context, engineSid EngineSid, event string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[engineSid] = append(f.sent[engineSid], string(data))
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context, engineSid EngineSid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disc[engineSid] = true
	return nil
}

func (f *fakeTransport) GetSession(ctx context.Context, engineSid EngineSid) (map[string]any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.sessions[engineSid]
	return data, ok, nil
}

func (f *fakeTransport) SaveSession(ctx context.Context, engineSid EngineSid, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[engineSid] = data
	return nil
}

func (f *fakeTransport) last(engineSid EngineSid) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := f.sent[engineSid]
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1]
}

func (f *fakeTransport) frames(engineSid EngineSid) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent[engineSid]))
	copy(out, f.sent[engineSid])
	return out
}

func TestConnectAndEventWithAck(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)

	var gotSid Sid
	s.OnConnect("/", func(ctx context.Context, sid Sid) error {
		gotSid = sid
		return nil
	})
	s.On("/", "greet", func(ctx context.Context, sid Sid, args []any) (any, error) {
		name, _ := args[0].(string)
		return "hi " + name, nil
	})

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if gotSid == "" {
		t.Fatal("connect handler never ran")
	}

	ack := transport.last("eio1")
	if !strings.HasPrefix(ack, "0") {
		t.Fatalf("expected CONNECT ack, got %q", ack)
	}

	if err := s.OnMessage(ctx, "eio1", []byte(`21["greet","world"]`)); err != nil {
		t.Fatalf("event: %v", err)
	}

	reply := transport.last("eio1")
	if reply != `31["hi world"]` {
		t.Fatalf("got %q", reply)
	}
}

func TestConnectRejected(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)

	s.OnConnectWithAuth("/", func(ctx context.Context, sid Sid, auth map[string]any) error {
		if auth["token"] != "good" {
			return NewConnectionRefusedError("bad token")
		}
		return nil
	})

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte(`0{"token":"bad"}`)); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frame := transport.last("eio1")
	if !strings.HasPrefix(frame, "4") {
		t.Fatalf("expected CONNECT_ERROR, got %q", frame)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(frame[1:]), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["message"] != "bad token" {
		t.Fatalf("got %+v", body)
	}

	if _, ok := s.manager.SidFromEngineSid("eio1", "/"); ok {
		t.Fatal("rejected connection should not leave a session behind")
	}
}

func TestAlwaysConnectLateRejection(t *testing.T) {
	transport := newFakeTransport()
	opts := DefaultServerOptions()
	opts.SetAlwaysConnect(true)
	s := NewServer(transport, opts)

	s.OnConnectWithAuth("/", func(ctx context.Context, sid Sid, auth map[string]any) error {
		return NewConnectionRefusedError("nope")
	})

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames := transport.frames("eio1")
	if len(frames) != 2 {
		t.Fatalf("expected CONNECT then DISCONNECT, got %v", frames)
	}
	if !strings.HasPrefix(frames[0], "0") {
		t.Fatalf("first frame should be CONNECT ack, got %q", frames[0])
	}
	if frames[1] != "1" {
		t.Fatalf("second frame should be DISCONNECT, got %q", frames[1])
	}
}

func TestUnknownNamespaceRejected(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)
	s.OnConnect("/chat", func(ctx context.Context, sid Sid) error { return nil })

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0/rooms,")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	frame := transport.last("eio1")
	if !strings.HasPrefix(frame, "4/rooms,") {
		t.Fatalf("got %q", frame)
	}
}

func TestBinaryEventRoundTrip(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)

	var gotPayload []byte
	s.OnConnect("/", func(ctx context.Context, sid Sid) error { return nil })
	s.On("/", "upload", func(ctx context.Context, sid Sid, args []any) (any, error) {
		gotPayload, _ = args[0].([]byte)
		return nil, nil
	})

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := s.OnMessage(ctx, "eio1", []byte(`51-["upload",{"_placeholder":true,"num":0}]`)); err != nil {
		t.Fatalf("event header: %v", err)
	}
	if err := s.OnBinaryMessage(ctx, "eio1", []byte{1, 2, 3}); err != nil {
		t.Fatalf("attachment: %v", err)
	}

	if string(gotPayload) != "\x01\x02\x03" {
		t.Fatalf("got %v", gotPayload)
	}
}

func TestDisconnectCascade(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)

	var disconnectedSid Sid
	var disconnectReason string
	s.OnConnect("/", func(ctx context.Context, sid Sid) error { return nil })
	s.OnDisconnect("/", func(ctx context.Context, sid Sid, reason string) {
		disconnectedSid = sid
		disconnectReason = reason
	})

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sid, ok := s.manager.SidFromEngineSid("eio1", "/")
	if !ok {
		t.Fatal("expected a session")
	}

	s.OnTransportDisconnect(ctx, "eio1", "transport close")

	if disconnectedSid != sid {
		t.Fatalf("got %q, want %q", disconnectedSid, sid)
	}
	if disconnectReason != "transport close" {
		t.Fatalf("got %q", disconnectReason)
	}
	if s.manager.IsConnected(sid) {
		t.Fatal("session should no longer be connected")
	}
}

func TestSessionPersistsThroughTransport(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)
	s.OnConnect("/", func(ctx context.Context, sid Sid) error { return nil })
	s.OnConnect("/ns", func(ctx context.Context, sid Sid) error { return nil })

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect /: %v", err)
	}
	if err := s.OnMessage(ctx, "eio1", []byte("0/ns,")); err != nil {
		t.Fatalf("connect /ns: %v", err)
	}
	sid, _ := s.manager.SidFromEngineSid("eio1", "/")
	sidNs, _ := s.manager.SidFromEngineSid("eio1", "/ns")

	if err := s.SaveSession(ctx, sid, map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, ok := s.Session(sid)
	if !ok || data["foo"] != "bar" {
		t.Fatalf("got %+v, %v", data, ok)
	}

	data["foo"] = "baz"
	data["bar"] = "foo"
	if err := s.SaveSession(ctx, sid, data); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.SaveSession(ctx, sidNs, map[string]any{"a": "b"}); err != nil {
		t.Fatalf("save ns: %v", err)
	}

	full, ok, err := transport.GetSession(ctx, "eio1")
	if err != nil || !ok {
		t.Fatalf("transport.GetSession: %v %v %v", full, ok, err)
	}
	root, _ := full["/"].(map[string]any)
	if root["foo"] != "baz" || root["bar"] != "foo" {
		t.Fatalf("root namespace entry not persisted, got %+v", full)
	}
	ns, _ := full["/ns"].(map[string]any)
	if ns["a"] != "b" {
		t.Fatalf("/ns entry not persisted, got %+v", full)
	}
}

func TestConnectRecoversPersistedSession(t *testing.T) {
	transport := newFakeTransport()
	if err := transport.SaveSession(context.Background(), "eio1", map[string]any{
		"/": map[string]any{"returning": true},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := NewServer(transport, nil)
	var seen map[string]any
	s.OnConnect("/", func(ctx context.Context, sid Sid) error {
		seen, _ = s.Session(sid)
		return nil
	})

	if err := s.OnMessage(context.Background(), "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if seen["returning"] != true {
		t.Fatalf("connect handler did not see recovered session, got %+v", seen)
	}
}

func TestAckIgnoredSecondTime(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)
	s.OnConnect("/", func(ctx context.Context, sid Sid) error { return nil })

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sid, _ := s.manager.SidFromEngineSid("eio1", "/")

	calls := 0
	err := s.manager.Emit(ctx, "ping", nil, "/", EmitOptions{
		Room:     Room(sid),
		Callback: func(args []any) { calls++ },
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	if err := s.OnMessage(ctx, "eio1", []byte(`31["pong"]`)); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := s.OnMessage(ctx, "eio1", []byte(`31["pong"]`)); err != nil {
		t.Fatalf("second ack for the same id should be ignored, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("got %d calls, want 1", calls)
	}
}

func TestNamespaceHandlerReflection(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)

	h := &chatHandler{}
	if err := s.RegisterNamespaceHandler(h); err != nil {
		t.Fatalf("RegisterNamespaceHandler: %v", err)
	}

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0/chat,")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !h.connected {
		t.Fatal("OnConnect never ran")
	}

	if err := s.OnMessage(ctx, "eio1", []byte(`2/chat,1["send_message","hi"]`)); err != nil {
		t.Fatalf("event: %v", err)
	}
	reply := transport.last("eio1")
	if reply != `3/chat,1["ok"]` {
		t.Fatalf("got %q", reply)
	}
}

func TestCatchAllReceivesEventName(t *testing.T) {
	transport := newFakeTransport()
	s := NewServer(transport, nil)
	s.OnConnect("/", func(ctx context.Context, sid Sid) error { return nil })

	var gotArgs []any
	s.On("/", "*", func(ctx context.Context, sid Sid, args []any) (any, error) {
		gotArgs = args
		return nil, nil
	})

	ctx := context.Background()
	if err := s.OnMessage(ctx, "eio1", []byte("0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.OnMessage(ctx, "eio1", []byte(`2["shout","loud"]`)); err != nil {
		t.Fatalf("event: %v", err)
	}

	if len(gotArgs) != 2 || gotArgs[0] != "shout" || gotArgs[1] != "loud" {
		t.Fatalf("got %+v, want [shout loud]", gotArgs)
	}
}

type chatHandler struct {
	connected bool
}

func (c *chatHandler) Namespace() string { return "/chat" }

func (c *chatHandler) OnConnect(ctx context.Context, sid Sid) error {
	c.connected = true
	return nil
}

func (c *chatHandler) OnSendMessage(ctx context.Context, sid Sid, args []any) (any, error) {
	return "ok", nil
}
