package storage

import (
	"github.com/ipfs/go-cid"

	"xdao.co/szdt/digest"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
//   - Put MUST be idempotent.
//   - Stored objects MUST be immutable.
//   - Put returns the raw-codec CID of the BLAKE3 digest of the bytes written.
//   - Objects are addressed by digest: Get and Has accept a CID with any
//     multicodec as long as its multihash is the object's BLAKE3 digest.
//   - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// CIDOf returns the CID a CAS assigns to b.
func CIDOf(b []byte) cid.Cid {
	return digest.Sum(b).CID(digest.Raw)
}

// Verify checks that b is the object named by id.
func Verify(id cid.Cid, b []byte) error {
	want, err := digest.FromCID(id)
	if err != nil {
		return ErrInvalidCID
	}
	if !digest.Sum(b).Equal(want) {
		return ErrCIDMismatch
	}
	return nil
}
