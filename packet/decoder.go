package packet

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseText parses a single text frame into a packet and the number of
// binary attachment frames it still needs before it's complete (0 for any
// non-binary type). The returned packet's Data may still contain
// Placeholder-shaped values when attachmentsNeeded > 0; reconstruct fills
// them in once every attachment has arrived.
func parseText(s string) (p *Packet, attachmentsNeeded int, err error) {
	if s == "" {
		return nil, 0, fmt.Errorf("%w: empty frame", ErrInvalidPacket)
	}

	digit := s[0]
	if digit < '0' || digit > '9' {
		return nil, 0, fmt.Errorf("%w: frame does not start with a type digit", ErrInvalidPacket)
	}
	t := Type(digit - '0')
	if !t.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown packet type %d", ErrInvalidPacket, t)
	}
	if t == CONNECT_ERROR {
		return nil, 0, fmt.Errorf("%w: CONNECT_ERROR is server-to-client only", ErrInvalidPacket)
	}
	rest := s[1:]

	if t.IsBinary() {
		dash := strings.IndexByte(rest, '-')
		if dash < 0 {
			return nil, 0, fmt.Errorf("%w: binary packet missing attachment count", ErrInvalidPacket)
		}
		n, perr := strconv.Atoi(rest[:dash])
		if perr != nil || n < 1 {
			return nil, 0, fmt.Errorf("%w: invalid attachment count", ErrInvalidPacket)
		}
		attachmentsNeeded = n
		rest = rest[dash+1:]
	}

	namespace := "/"
	if strings.HasPrefix(rest, "/") {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			namespace = rest
			rest = ""
		} else {
			namespace = rest[:comma]
			rest = rest[comma+1:]
		}
	}

	idEnd := 0
	for idEnd < len(rest) && rest[idEnd] >= '0' && rest[idEnd] <= '9' {
		idEnd++
	}
	var id *uint64
	if idEnd > 0 {
		v, perr := strconv.ParseUint(rest[:idEnd], 10, 64)
		if perr != nil {
			return nil, 0, fmt.Errorf("%w: invalid packet id", ErrInvalidPacket)
		}
		id = &v
		rest = rest[idEnd:]
	}

	var data any
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &data); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
		}
	}

	if err := validateShape(t, data); err != nil {
		return nil, 0, err
	}

	return &Packet{Type: t, Namespace: namespace, Data: data, ID: id}, attachmentsNeeded, nil
}

// validateShape rejects payload shapes the protocol never produces for a
// given packet type.
func validateShape(t Type, data any) error {
	switch t {
	case EVENT, BINARY_EVENT, ACK, BINARY_ACK:
		if data != nil {
			if _, ok := data.([]any); !ok {
				return fmt.Errorf("%w: %s payload must be a JSON array", ErrInvalidPacket, t)
			}
		}
	}
	return nil
}

// Decoder reassembles a single in-flight packet out of one text frame
// followed by zero or more binary attachment frames. It holds state for at
// most one packet at a time, matching the protocol's rule that a transport
// connection is never asked to interleave two packets' attachment streams:
// one Decoder per engine_sid session is sufficient and required.
type Decoder struct {
	pending     *Packet
	needed      int
	attachments [][]byte
}

// NewDecoder creates a Decoder ready to receive frames.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// AddText feeds a text frame into the decoder. It returns a completed
// packet immediately if the frame needs no binary attachments, or nil while
// it waits for AddAttachment calls.
func (d *Decoder) AddText(s string) (*Packet, error) {
	if d.pending != nil {
		return nil, fmt.Errorf("%w: text frame received while awaiting %d more attachment(s)", ErrInvalidPacket, d.needed-len(d.attachments))
	}

	p, needed, err := parseText(s)
	if err != nil {
		return nil, err
	}
	if needed == 0 {
		return p, nil
	}

	d.pending = p
	d.needed = needed
	d.attachments = make([][]byte, 0, needed)
	return nil, nil
}

// AddAttachment feeds one binary attachment frame. It returns the completed
// packet once the last expected attachment arrives.
func (d *Decoder) AddAttachment(b []byte) (*Packet, error) {
	if d.pending == nil {
		return nil, fmt.Errorf("%w: binary frame received with no packet awaiting attachments", ErrInvalidPacket)
	}

	d.attachments = append(d.attachments, b)
	if len(d.attachments) < d.needed {
		return nil, nil
	}

	p := d.pending
	data, err := reconstruct(p.Data, d.attachments)
	if err != nil {
		d.reset()
		return nil, err
	}
	p.Data = data
	p.BinaryAttachments = d.attachments

	d.reset()
	return p, nil
}

func (d *Decoder) reset() {
	d.pending = nil
	d.needed = 0
	d.attachments = nil
}
