package storage

import "errors"

// Sentinels shared by every CAS implementation. Backends may wrap them;
// callers test with errors.Is.
var (
	// ErrNotFound: no block is stored under the digest.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidCID: the CID is undefined or does not carry a BLAKE3 multihash.
	ErrInvalidCID = errors.New("storage: invalid cid")
	// ErrCIDMismatch: bytes do not hash to the digest they are named by.
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	// ErrImmutable: different bytes already occupy the digest's slot.
	ErrImmutable = errors.New("storage: immutable object mismatch")
	// ErrNoBackends: a composite CAS was built without any backend.
	ErrNoBackends = errors.New("storage: no backends configured")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsIntegrity reports whether err means a backend holds or served bytes
// that do not match their name.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrCIDMismatch) || errors.Is(err, ErrImmutable)
}
