// Package packet implements the Socket.IO v5 packet codec: encoding a
// logical Packet into a text frame plus zero or more binary attachment
// frames, and the inverse decoding, including reassembly of packets whose
// binary attachments arrive as separate transport frames.
//
// The codec is pure: it has no notion of sessions, rooms, or transports. It
// only knows how to turn a Packet into bytes and back.
package packet

import "fmt"

// Type identifies the kind of a Socket.IO packet.
type Type int

const (
	CONNECT Type = iota
	DISCONNECT
	EVENT
	ACK
	CONNECT_ERROR
	BINARY_EVENT
	BINARY_ACK
)

// Valid reports whether t is one of the seven defined packet types.
func (t Type) Valid() bool {
	return t >= CONNECT && t <= BINARY_ACK
}

func (t Type) String() string {
	switch t {
	case CONNECT:
		return "CONNECT"
	case DISCONNECT:
		return "DISCONNECT"
	case EVENT:
		return "EVENT"
	case ACK:
		return "ACK"
	case CONNECT_ERROR:
		return "CONNECT_ERROR"
	case BINARY_EVENT:
		return "BINARY_EVENT"
	case BINARY_ACK:
		return "BINARY_ACK"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// IsBinary reports whether t carries out-of-band binary attachments.
func (t Type) IsBinary() bool {
	return t == BINARY_EVENT || t == BINARY_ACK
}

// Packet is a single logical Socket.IO packet. BinaryAttachments is only
// meaningful (and only ever non-empty) when Type is BINARY_EVENT or
// BINARY_ACK; the invariant Type.IsBinary() == (len(BinaryAttachments) > 0)
// holds for every packet that has finished decoding.
type Packet struct {
	Type              Type
	Namespace         string
	Data              any
	ID                *uint64
	BinaryAttachments [][]byte
}

// NewPacket builds a packet defaulted to the "/" namespace.
func NewPacket(t Type) *Packet {
	return &Packet{Type: t, Namespace: "/"}
}

// Placeholder is the JSON shape that stands in for a binary attachment
// inside the text frame, e.g. {"_placeholder":true,"num":0}.
type Placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}
