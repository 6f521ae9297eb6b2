package memo

import (
	"crypto/ed25519"
	"fmt"

	"xdao.co/szdt/did"
)

// Signer signs digests on behalf of one issuer.
//
// The engine never touches key storage: callers inject a Signer.
type Signer interface {
	// DID returns the issuer identifier for the signing key.
	DID() string
	// Sign returns a signature over msg.
	Sign(msg []byte) ([]byte, error)
}

// Ed25519Signer is an in-memory Signer.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	key  did.Key
}

// NewEd25519Signer wraps an Ed25519 private key. It panics if priv has the
// wrong length.
func NewEd25519Signer(priv ed25519.PrivateKey) *Ed25519Signer {
	if len(priv) != ed25519.PrivateKeySize {
		panic(fmt.Sprintf("memo: ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv)))
	}
	key, err := did.FromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		panic(err)
	}
	return &Ed25519Signer{priv: priv, key: key}
}

// NewEd25519SignerFromSeed derives the signing key from a 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil
}

func (s *Ed25519Signer) DID() string {
	return s.key.String()
}

// Key returns the public half of the signer.
func (s *Ed25519Signer) Key() did.Key {
	return s.key
}

func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, msg), nil
}

// Sign signs the protected headers and stores the signature in
// Unprotected.Sig. The issuer, issue time and src must already be set, and the
// issuer must be the signer's DID.
func (m *Memo) Sign(s Signer) error {
	if m.Protected.Issuer == "" {
		return newError(KindMissingField, "protected header \"iss\" is required")
	}
	if m.Protected.Src.IsZero() {
		return newError(KindMissingField, "protected header \"src\" is required")
	}
	if want := s.DID(); m.Protected.Issuer != want {
		return newError(KindIssuerMismatch, fmt.Sprintf("issuer %q does not match signer %q", m.Protected.Issuer, want))
	}
	d, err := m.Protected.SigningDigest()
	if err != nil {
		return err
	}
	sig, err := s.Sign(d[:])
	if err != nil {
		return wrapError(KindSigner, "signer failed", err)
	}
	m.Unprotected.Sig = sig
	return nil
}

// VerifySignature checks Unprotected.Sig against the protected headers and the
// key named by the issuer. It does not look at the body.
func (m *Memo) VerifySignature() error {
	if m.Unprotected.Sig == nil {
		return newError(KindMissingSignature, "memo is not signed")
	}
	if m.Protected.Issuer == "" {
		return newError(KindInvalidIssuer, "protected header \"iss\" is missing")
	}
	key, err := did.Parse(m.Protected.Issuer)
	if err != nil {
		return wrapError(KindInvalidIssuer, fmt.Sprintf("issuer %q", m.Protected.Issuer), err)
	}
	d, err := m.Protected.SigningDigest()
	if err != nil {
		return err
	}
	if !key.Verify(d[:], m.Unprotected.Sig) {
		return newError(KindSignatureMismatch, "signature does not match protected headers")
	}
	return nil
}
