package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyLength means the key is not KeySize bytes.
	ErrInvalidKeyLength = errors.New("cipher: invalid key length")
	// ErrInvalidNonceLength means the nonce is not NonceSize bytes.
	ErrInvalidNonceLength = errors.New("cipher: invalid nonce length")
	// ErrCipherInit means the underlying primitive could not be built.
	ErrCipherInit = errors.New("cipher: init failed")
	// ErrAuthentication means the tag did not verify. It is the only error
	// Decrypt reports for bad input of the right shape.
	ErrAuthentication = errors.New("cipher: message authentication failed")
)

// Suite is the authenticated encryption boundary. Keys are borrowed for the
// duration of a call and never retained.
type Suite interface {
	Name() string
	// Encrypt seals plaintext and returns the ciphertext, which has the same
	// length as plaintext, and the detached tag.
	Encrypt(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error)
	// Decrypt verifies tag and opens ciphertext. No plaintext is returned
	// unless the tag verifies.
	Decrypt(key, nonce, ciphertext, tag []byte) ([]byte, error)
}

// AEAD ciphers

func aesGCM(key []byte) (cipher.AEAD, error) {
	blk, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blk) // standard 12-byte nonce
}

type aeadSuite struct {
	name    string
	newAEAD func(key []byte) (cipher.AEAD, error)
}

func (s *aeadSuite) Name() string { return s.name }

func (s *aeadSuite) init(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceLength
	}
	aead, err := s.newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCipherInit, s.name, err)
	}
	if aead.NonceSize() != NonceSize || aead.Overhead() != TagSize {
		return nil, fmt.Errorf("%w: %s: unexpected nonce or tag size", ErrCipherInit, s.name)
	}
	return aead, nil
}

func (s *aeadSuite) Encrypt(key, nonce, plaintext []byte) ([]byte, []byte, error) {
	aead, err := s.init(key, nonce)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(make([]byte, 0, len(plaintext)+TagSize), nonce, plaintext, nil)
	n := len(plaintext)
	return sealed[:n:n], sealed[n:], nil
}

func (s *aeadSuite) Decrypt(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	aead, err := s.init(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(tag) != TagSize {
		return nil, ErrAuthentication
	}
	buf := make([]byte, 0, len(ciphertext)+TagSize)
	buf = append(buf, ciphertext...)
	buf = append(buf, tag...)
	b, err := aead.Open(buf[:0], nonce, buf, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return b, nil
}
