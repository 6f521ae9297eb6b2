package digest

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Multicodecs used for SZDT records.
const (
	// Raw marks body bytes digested as-is.
	Raw = cid.Raw
	// DagCBOR marks canonical CBOR records (memos, manifests, structured
	// bodies).
	DagCBOR = cid.DagCBOR
)

// CID returns a CIDv1 with the given multicodec over a BLAKE3 multihash of d.
func (d Digest) CID(multicodec uint64) cid.Cid {
	// Encode only prepends the code and length; it cannot fail.
	mh, _ := multihash.Encode(d[:], multihash.BLAKE3)
	return cid.NewCidV1(multicodec, mh)
}

// FromCID extracts the digest from a CID built by Digest.CID.
func FromCID(c cid.Cid) (Digest, error) {
	if !c.Defined() {
		return Digest{}, fmt.Errorf("%w: undefined CID", ErrInvalid)
	}
	dm, err := multihash.Decode(c.Hash())
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if dm.Code != multihash.BLAKE3 {
		return Digest{}, fmt.Errorf("%w: multihash %s is not blake3", ErrInvalid, multihash.Codes[dm.Code])
	}
	return FromBytes(dm.Digest)
}

// ParseCID parses a CID string and extracts its digest.
func ParseCID(s string) (Digest, cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return Digest{}, cid.Undef, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	d, err := FromCID(c)
	if err != nil {
		return Digest{}, cid.Undef, err
	}
	return d, c, nil
}
