package core

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/secureudp/go-secureudp/cipher"
	"github.com/secureudp/go-secureudp/packet"
)

// codec seals and opens whole frames with one suite and one key.
type codec struct {
	suite cipher.Suite
	key   []byte
	now   func() time.Time
}

func newCodec(cfg *Config) (*codec, error) {
	suite, err := cipher.PickSuite(cfg.Suite)
	if err != nil {
		return nil, err
	}
	if len(cfg.Key) != cipher.KeySize {
		return nil, cipher.ErrInvalidKeyLength
	}
	return &codec{suite: suite, key: cfg.Key, now: time.Now}, nil
}

// ackCodec returns the codec for ack frames. Its key is derived from c's, so
// ack frames and data frames never open as each other.
func (c *codec) ackCodec() (*codec, error) {
	key, err := cipher.AckKey(c.key)
	if err != nil {
		return nil, err
	}
	return &codec{suite: c.suite, key: key, now: c.now}, nil
}

// seal encrypts plaintext under a fresh random nonce and returns the frame.
func (c *codec) seal(seq uint32, plaintext []byte) ([]byte, error) {
	var nonce [cipher.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	ct, tag, err := c.suite.Encrypt(c.key, nonce[:], plaintext)
	if err != nil {
		return nil, err
	}
	ts := uint64(c.now().UnixMilli())
	return packet.Encode(seq, ts, nonce[:], ct, tag), nil
}

// open decodes and authenticates a frame. The decoded packet is returned
// even when authentication fails so that callers can log its sequence.
func (c *codec) open(b []byte) (packet.Packet, []byte, error) {
	p, err := packet.Decode(b)
	if err != nil {
		return p, nil, err
	}
	plaintext, err := c.suite.Decrypt(c.key, p.Nonce[:], p.Ciphertext, p.Tag[:])
	return p, plaintext, err
}
