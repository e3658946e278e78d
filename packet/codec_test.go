package packet

import (
	"errors"
	"testing"
)

func id(n uint64) *uint64 { return &n }

func TestEncodeConnect(t *testing.T) {
	text, attachments, err := Encode(&Packet{Type: CONNECT, Namespace: "/"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != "0" {
		t.Fatalf("got %q, want %q", text, "0")
	}
	if len(attachments) != 0 {
		t.Fatalf("unexpected attachments: %v", attachments)
	}
}

func TestEncodeConnectWithAuth(t *testing.T) {
	text, _, err := Encode(&Packet{Type: CONNECT, Namespace: "/", Data: map[string]any{"token": "abc"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != `0{"token":"abc"}` {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeConnectNamespace(t *testing.T) {
	text, _, err := Encode(&Packet{Type: CONNECT, Namespace: "/admin"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != "0/admin," {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeDisconnect(t *testing.T) {
	text, _, err := Encode(&Packet{Type: DISCONNECT, Namespace: "/"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != "1" {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeEventPlain(t *testing.T) {
	text, _, err := Encode(&Packet{Type: EVENT, Namespace: "/", Data: []any{"hello", "world"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != `2["hello","world"]` {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeEventWithAck(t *testing.T) {
	text, _, err := Encode(&Packet{Type: EVENT, Namespace: "/", Data: []any{"hello"}, ID: id(1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != `21["hello"]` {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeAckEmpty(t *testing.T) {
	text, _, err := Encode(&Packet{Type: ACK, Namespace: "/", ID: id(1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != "31[]" {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeEventBinaryAttachment(t *testing.T) {
	text, attachments, err := Encode(&Packet{
		Type:      EVENT,
		Namespace: "/",
		Data:      []any{"image", []byte{0x01, 0x02}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `51-["image",{"_placeholder":true,"num":0}]`
	if text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
	if len(attachments) != 1 || attachments[0][0] != 0x01 {
		t.Fatalf("unexpected attachments: %v", attachments)
	}
}

func TestDecodeConnect(t *testing.T) {
	d := NewDecoder()
	p, err := d.AddText("0")
	if err != nil {
		t.Fatalf("AddText: %v", err)
	}
	if p == nil || p.Type != CONNECT || p.Namespace != "/" {
		t.Fatalf("got %+v", p)
	}
}

func TestDecodeEventWithNamespaceAndId(t *testing.T) {
	d := NewDecoder()
	p, err := d.AddText(`2/admin,1["foo",1]`)
	if err != nil {
		t.Fatalf("AddText: %v", err)
	}
	if p.Type != EVENT || p.Namespace != "/admin" || p.ID == nil || *p.ID != 1 {
		t.Fatalf("got %+v", p)
	}
	arr, ok := p.Data.([]any)
	if !ok || len(arr) != 2 || arr[0] != "foo" {
		t.Fatalf("got data %+v", p.Data)
	}
}

func TestDecodeBinaryEventRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	text, attachments, err := Encode(&Packet{Type: EVENT, Namespace: "/", Data: []any{"upload", payload}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	d := NewDecoder()
	p, err := d.AddText(text)
	if err != nil {
		t.Fatalf("AddText: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil packet while awaiting attachment, got %+v", p)
	}

	p, err = d.AddAttachment(attachments[0])
	if err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if p == nil || p.Type != BINARY_EVENT {
		t.Fatalf("got %+v", p)
	}
	arr := p.Data.([]any)
	if arr[0] != "upload" {
		t.Fatalf("got %+v", arr)
	}
	got, ok := arr[1].([]byte)
	if !ok || string(got) != string(payload) {
		t.Fatalf("got %+v, want %v", arr[1], payload)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	d := NewDecoder()
	_, err := d.AddText("9")
	if !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("got %v, want ErrInvalidPacket", err)
	}
}

func TestDecodeNonNumericId(t *testing.T) {
	d := NewDecoder()
	// 'x' is not a digit, so nothing is consumed as an id and "x[\"foo\"]"
	// is handed to the JSON decoder whole, which rejects it.
	_, err := d.AddText(`2x["foo"]`)
	if !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("got %v, want ErrInvalidPacket", err)
	}
}

func TestDecodeRejectsConnectErrorFromClient(t *testing.T) {
	d := NewDecoder()
	_, err := d.AddText(`4{"message":"no"}`)
	if !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("got %v, want ErrInvalidPacket", err)
	}
}

func TestDecodeRejectsNonArrayEventPayload(t *testing.T) {
	d := NewDecoder()
	_, err := d.AddText(`2{"not":"an array"}`)
	if !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("got %v, want ErrInvalidPacket", err)
	}
}
