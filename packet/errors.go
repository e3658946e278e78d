package packet

import "errors"

// ErrInvalidPacket is returned by the Decoder (and anything built on it) for a
// malformed frame: an unparsable digit, an unknown type, a non-numeric id,
// a payload shape that doesn't match the packet type, or a CONNECT_ERROR
// decoded where the protocol never allows a client to send one.
var ErrInvalidPacket = errors.New("packet: invalid packet")
