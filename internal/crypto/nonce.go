package crypto

import (
	"encoding/binary"
	"fmt"
)

const (
	// NonceSize is the size of a SaltyRTC nonce in bytes.
	NonceSize = 24

	// CookieSize is the size of a cookie in bytes.
	CookieSize = 16

	// KeySize is the size of a NaCl box/secretbox key in bytes.
	KeySize = 32
)

// Nonce is the fixed 24-byte layout every signaling frame is prefixed with:
//
//	cookie[16] || source[1] || destination[1] || overflow_be[2] || sequence_be[4]
//
// It doubles as the NaCl nonce for whichever envelope encrypts the frame.
type Nonce struct {
	Cookie      Cookie
	Source      Address
	Destination Address
	Overflow    uint16
	Sequence    uint32
}

// Address identifies a signaling endpoint: 0x00 the server, 0x01 the
// initiator, 0x02..0xff a responder slot.
type Address uint8

const (
	ServerAddress    Address = 0x00
	InitiatorAddress Address = 0x01
)

// IsResponder reports whether the address falls in the responder range.
func (a Address) IsResponder() bool {
	return a >= 0x02
}

// String renders the address the way it appears in log output: "server",
// "initiator", or a hex responder id.
func (a Address) String() string {
	switch a {
	case ServerAddress:
		return "server"
	case InitiatorAddress:
		return "initiator"
	default:
		return fmt.Sprintf("responder(%#02x)", uint8(a))
	}
}

func NewNonce(cookie Cookie, source, destination Address, csn CombinedSequence) Nonce {
	overflow, sequence := csn.Split()
	return Nonce{
		Cookie:      cookie,
		Source:      source,
		Destination: destination,
		Overflow:    overflow,
		Sequence:    sequence,
	}
}

// Encode serializes the nonce into its wire representation.
func (n Nonce) Encode() [NonceSize]byte {
	var buf [NonceSize]byte
	copy(buf[0:16], n.Cookie[:])
	buf[16] = byte(n.Source)
	buf[17] = byte(n.Destination)
	binary.BigEndian.PutUint16(buf[18:20], n.Overflow)
	binary.BigEndian.PutUint32(buf[20:24], n.Sequence)
	return buf
}

// DecodeNonce parses a nonce from the first NonceSize bytes of b.
func DecodeNonce(b []byte) (Nonce, error) {
	if len(b) < NonceSize {
		return Nonce{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(b), NonceSize)
	}
	var n Nonce
	copy(n.Cookie[:], b[0:16])
	n.Source = Address(b[16])
	n.Destination = Address(b[17])
	n.Overflow = binary.BigEndian.Uint16(b[18:20])
	n.Sequence = binary.BigEndian.Uint32(b[20:24])
	return n, nil
}

// CSN returns the combined sequence number encoded in the nonce.
func (n Nonce) CSN() CombinedSequence {
	return CombinedSequence{overflow: n.Overflow, sequence: n.Sequence}
}

var ErrInvalidNonce = fmt.Errorf("invalid nonce")
