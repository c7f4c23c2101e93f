package packet

import (
	"encoding/binary"
	"errors"
)

const (
	SeqSize       = 4
	TimestampSize = 8
	NonceSize     = 12
	TagSize       = 16

	// HeaderSize is the fixed prefix in front of the ciphertext.
	HeaderSize = SeqSize + TimestampSize + NonceSize
	// Overhead is the frame size with an empty ciphertext.
	Overhead = HeaderSize + TagSize

	// MaxFrameSize bounds a frame to a conventional Ethernet MTU.
	MaxFrameSize = 1500
	// MaxPayload is the largest plaintext that fits in MaxFrameSize.
	MaxPayload = MaxFrameSize - Overhead

	// AckPayloadSize is the plaintext size of an ack frame.
	AckPayloadSize = 4
)

// ErrMalformedPacket means the datagram is too short to be a frame.
var ErrMalformedPacket = errors.New("packet: malformed packet")

// Packet is a decoded frame.
type Packet struct {
	Seq        uint32
	Timestamp  uint64 // milliseconds since the Unix epoch
	Nonce      [NonceSize]byte
	Ciphertext []byte
	Tag        [TagSize]byte
}

// Encode lays out the frame fields in wire order. nonce and tag are expected
// to be NonceSize and TagSize bytes long.
func Encode(seq uint32, timestamp uint64, nonce, ciphertext, tag []byte) []byte {
	b := make([]byte, Overhead+len(ciphertext))
	binary.LittleEndian.PutUint32(b, seq)
	binary.LittleEndian.PutUint64(b[SeqSize:], timestamp)
	copy(b[SeqSize+TimestampSize:HeaderSize], nonce)
	copy(b[HeaderSize:], ciphertext)
	copy(b[HeaderSize+len(ciphertext):], tag)
	return b
}

// Encode returns the wire form of p.
func (p *Packet) Encode() []byte {
	return Encode(p.Seq, p.Timestamp, p.Nonce[:], p.Ciphertext, p.Tag[:])
}

// Decode parses a frame. The returned Packet does not retain b.
func Decode(b []byte) (Packet, error) {
	if len(b) < Overhead {
		return Packet{}, ErrMalformedPacket
	}
	n := len(b) - Overhead

	var p Packet
	p.Seq = binary.LittleEndian.Uint32(b)
	p.Timestamp = binary.LittleEndian.Uint64(b[SeqSize:])
	copy(p.Nonce[:], b[SeqSize+TimestampSize:HeaderSize])
	p.Ciphertext = make([]byte, n)
	copy(p.Ciphertext, b[HeaderSize:HeaderSize+n])
	copy(p.Tag[:], b[HeaderSize+n:])
	return p, nil
}

// EncodeAckPayload returns the plaintext acknowledging seq.
func EncodeAckPayload(seq uint32) []byte {
	b := make([]byte, AckPayloadSize)
	binary.LittleEndian.PutUint32(b, seq)
	return b
}

// DecodeAckPayload parses the plaintext of an ack frame.
func DecodeAckPayload(b []byte) (uint32, error) {
	if len(b) != AckPayloadSize {
		return 0, ErrMalformedPacket
	}
	return binary.LittleEndian.Uint32(b), nil
}
