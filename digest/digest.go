// Package digest names content by its BLAKE3-256 hash.
//
// A Digest is always computed over bytes: either raw body bytes or the
// canonical encoding of a value (see Of). Two logically identical values
// therefore always share a digest, and any single changed byte changes it.
package digest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"xdao.co/szdt/codec"
)

// Size is the length of a Digest in bytes.
const Size = 32

// ErrInvalid reports a malformed digest in text, CBOR or CID form.
var ErrInvalid = errors.New("digest: invalid digest")

// Digest is a BLAKE3-256 hash.
type Digest [Size]byte

// Sum returns the digest of b.
func Sum(b []byte) Digest {
	return Digest(blake3.Sum256(b))
}

// Of returns the digest of the canonical encoding of v.
func Of(v any) (Digest, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return Digest{}, err
	}
	return Sum(data), nil
}

// FromBytes copies a 32-byte slice into a Digest.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("%w: length %d, want %d", ErrInvalid, len(b), Size)
	}
	copy(d[:], b)
	return d, nil
}

// Parse decodes the lowercase hex form produced by String.
func Parse(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return FromBytes(b)
}

// Equal reports whether d and other are byte-for-byte identical.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compare orders digests as unsigned big-endian integers.
func Compare(a, b Digest) int {
	return bytes.Compare(a[:], b[:])
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns a copy of the digest as a slice.
func (d Digest) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, d[:])
	return b
}

// MarshalCBOR encodes d as a 32-byte byte string.
func (d Digest) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(d[:])
}

// UnmarshalCBOR decodes a 32-byte byte string.
func (d *Digest) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := codec.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	v, err := FromBytes(b)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// FromReader digests everything r yields and reports the number of bytes read.
func FromReader(r io.Reader) (Digest, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, n, err
	}
	return h.Finalize(), n, nil
}
