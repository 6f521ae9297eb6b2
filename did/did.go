// Package did encodes Ed25519 public keys as did:key identifiers.
//
// The identifier is "did:key:" followed by the base58btc multibase form of the
// Ed25519 multicodec tag (varint 0xed) and the 32 raw key bytes, so every
// SZDT issuer string starts with "did:key:z6Mk".
package did

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

const (
	// Prefix starts every identifier this package produces.
	Prefix = "did:key:"

	// Ed25519Multicodec is the multicodec code for an Ed25519 public key.
	Ed25519Multicodec = 0xed

	// PublicKeySize is the length of an Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
)

// Key is an Ed25519 public key addressed by its did:key identifier.
type Key [PublicKeySize]byte

// Encode returns the did:key identifier for pub.
func Encode(pub [PublicKeySize]byte) string {
	payload := append(varint.ToUvarint(Ed25519Multicodec), pub[:]...)
	s, err := multibase.Encode(multibase.Base58BTC, payload)
	if err != nil {
		// Base58BTC is always registered.
		panic(err)
	}
	return Prefix + s
}

// Decode parses a did:key identifier into the raw public key.
func Decode(s string) ([PublicKeySize]byte, error) {
	var pub [PublicKeySize]byte

	rest, ok := strings.CutPrefix(s, "did:")
	if !ok {
		return pub, newError(KindUnsupportedMethod, fmt.Sprintf("%q is not a DID", s), nil)
	}
	method, id, ok := strings.Cut(rest, ":")
	if !ok || method != "key" {
		return pub, newError(KindUnsupportedMethod, fmt.Sprintf("unsupported method %q", method), nil)
	}

	enc, data, err := multibase.Decode(id)
	if err != nil {
		return pub, newError(KindInvalidEncoding, "invalid multibase payload", err)
	}
	if enc != multibase.Base58BTC {
		return pub, newError(KindInvalidEncoding, fmt.Sprintf("multibase %q is not base58btc", rune(enc)), nil)
	}

	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return pub, newError(KindInvalidEncoding, "invalid multicodec prefix", err)
	}
	if code != Ed25519Multicodec {
		return pub, newError(KindUnsupportedKeyType, fmt.Sprintf("multicodec 0x%x is not ed25519-pub", code), nil)
	}
	if l := len(data) - n; l != PublicKeySize {
		return pub, newError(KindInvalidLength, fmt.Sprintf("public key must be %d bytes, got %d", PublicKeySize, l), nil)
	}
	copy(pub[:], data[n:])
	return pub, nil
}

// Parse is Decode returning a Key.
func Parse(s string) (Key, error) {
	pub, err := Decode(s)
	return Key(pub), err
}

// FromPublicKey wraps an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Key, error) {
	if len(pub) != PublicKeySize {
		return Key{}, newError(KindInvalidLength, fmt.Sprintf("public key must be %d bytes, got %d", PublicKeySize, len(pub)), nil)
	}
	var k Key
	copy(k[:], pub)
	return k, nil
}

func (k Key) String() string {
	return Encode(k)
}

// PublicKey returns the key in crypto/ed25519 form.
func (k Key) PublicKey() ed25519.PublicKey {
	pub := make(ed25519.PublicKey, PublicKeySize)
	copy(pub, k[:])
	return pub
}

// Verify reports whether sig is a valid signature of msg by k.
func (k Key) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.PublicKey(), msg, sig)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
