package packet

import (
	"encoding/json"
	"fmt"
	"strings"
)

// shape applies the wire-shaping rules from the protocol: EVENT/ACK payloads
// are arrays (a bare value is wrapped in a single-element array, a []any is
// passed through as-is), CONNECT/CONNECT_ERROR payloads are carried as
// whatever value they are (typically an object), and DISCONNECT never has
// a payload.
func shape(t Type, data any) any {
	switch t {
	case EVENT, BINARY_EVENT:
		if data == nil {
			return nil
		}
		if arr, ok := data.([]any); ok {
			return arr
		}
		return []any{data}
	case ACK, BINARY_ACK:
		if data == nil {
			return []any{}
		}
		if arr, ok := data.([]any); ok {
			return arr
		}
		return []any{data}
	case CONNECT, CONNECT_ERROR:
		return data
	default: // DISCONNECT
		return nil
	}
}

// Encode serializes p into a text frame plus, if it carries binary data, an
// ordered slice of attachment frames. A logical EVENT or ACK packet whose
// data tree contains []byte values is transparently promoted to
// BINARY_EVENT/BINARY_ACK: the bytes are pulled out, replaced in the tree by
// placeholders, and returned as separate attachment frames.
func Encode(p *Packet) (text string, attachments [][]byte, err error) {
	if !p.Type.Valid() {
		return "", nil, fmt.Errorf("%w: unknown packet type %d", ErrInvalidPacket, p.Type)
	}

	wireType := p.Type
	shaped := shape(p.Type, p.Data)

	switch p.Type {
	case EVENT, ACK:
		if hasBinary(shaped) {
			shaped = deconstruct(shaped, &attachments)
			if p.Type == EVENT {
				wireType = BINARY_EVENT
			} else {
				wireType = BINARY_ACK
			}
		}
	case BINARY_EVENT, BINARY_ACK:
		if hasBinary(shaped) {
			// A packet fresh from the Decoder carries its attachments as
			// []byte values inside Data; pull them out again.
			shaped = deconstruct(shaped, &attachments)
		} else {
			// Caller already deconstructed the packet; attachments travel
			// alongside unchanged.
			attachments = p.BinaryAttachments
		}
	}

	var b strings.Builder
	b.WriteByte(byte('0' + int(wireType)))

	if wireType.IsBinary() {
		fmt.Fprintf(&b, "%d-", len(attachments))
	}

	if ns := p.Namespace; ns != "" && ns != "/" {
		b.WriteString(ns)
		b.WriteByte(',')
	}

	if p.ID != nil {
		fmt.Fprintf(&b, "%d", *p.ID)
	}

	if shaped != nil {
		encoded, err := json.Marshal(shaped)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
		}
		b.Write(encoded)
	}

	return b.String(), attachments, nil
}
