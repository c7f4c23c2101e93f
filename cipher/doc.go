// Package cipher provides the AEAD suites used to seal secureudp frames.
//
// Every suite takes a 256-bit key, a 96-bit nonce and produces a 128-bit tag,
// so frames sealed by any of them share one wire layout. Both endpoints must
// pick the same suite.
package cipher

import (
	"crypto/cipher"
	"errors"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sizes shared by all suites.
const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// DefaultSuite is picked when no name is configured.
const DefaultSuite = "aes-256-gcm"

// ErrCipherNotSupported means the cipher has not been implemented.
var ErrCipherNotSupported = errors.New("cipher: not supported")

// List of AEAD suites and their constructors
var aeadList = map[string]func(key []byte) (cipher.AEAD, error){
	"aes-256-gcm":            aesGCM,
	"chacha20-ietf-poly1305": chacha20poly1305.New,
}

// aliases in the AEAD_* spelling
var aeadAlias = map[string]string{
	"aead_aes_256_gcm":       "aes-256-gcm",
	"aead_chacha20_poly1305": "chacha20-ietf-poly1305",
}

// ListSuites returns a list of available suite names sorted alphabetically.
func ListSuites() []string {
	var l []string
	for k := range aeadList {
		l = append(l, k)
	}
	sort.Strings(l)
	return l
}

// PickSuite returns the Suite of the given name. An empty name selects
// DefaultSuite.
func PickSuite(name string) (Suite, error) {
	name = strings.ToLower(name)
	if name == "" {
		name = DefaultSuite
	}
	if n, ok := aeadAlias[name]; ok {
		name = n
	}
	if newAEAD, ok := aeadList[name]; ok {
		return &aeadSuite{name: name, newAEAD: newAEAD}, nil
	}
	return nil, ErrCipherNotSupported
}
