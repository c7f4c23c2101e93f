package cipher

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfSalt       = "secureudp-v1"
	kdfIterations = 100000

	ackKeyInfo = "secureudp-v1 ack"
)

// DeriveKey stretches a passphrase into a KeySize key. Both endpoints derive
// the same key from the same passphrase.
func DeriveKey(password string) []byte {
	return pbkdf2.Key([]byte(password), []byte(kdfSalt), kdfIterations, KeySize, sha256.New)
}

// AckKey derives the key sealing acknowledgment frames from the shared key.
// A frame sealed under one of the two keys never opens under the other.
func AckKey(key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	r := hkdf.New(sha256.New, key, nil, []byte(ackKeyInfo))
	subkey := make([]byte, KeySize)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, err
	}
	return subkey, nil
}
