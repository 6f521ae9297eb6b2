package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
)

// ImportReceipt names everything ImportCAS stored.
type ImportReceipt struct {
	// Memo and Manifest use the dag-cbor codec; bodies use raw.
	Memo      cid.Cid
	Manifest  cid.Cid
	Resources []cid.Cid // cid.Undef where a body was skipped

	// Skipped holds the verification failures tolerated in Permissive mode.
	Skipped []error
}

// ImportCAS drains r into cas: the header memo, the manifest and every body
// that verifies. Only verified bytes are stored.
//
// In Permissive mode bodies that fail verification are skipped and listed in
// the receipt; in Strict mode the first failure aborts the import and the
// partial receipt is returned with the error.
func ImportCAS(r *Reader, cas storage.CAS) (*ImportReceipt, error) {
	receipt := &ImportReceipt{}

	memoID, err := putDagCBOR(cas, r.hdr.memoRaw)
	if err != nil {
		return receipt, fmt.Errorf("archive: store memo: %w", err)
	}
	receipt.Memo = memoID
	manifestID, err := putDagCBOR(cas, r.hdr.manifestRaw)
	if err != nil {
		return receipt, fmt.Errorf("archive: store manifest: %w", err)
	}
	receipt.Manifest = manifestID

	for {
		res, body, err := r.Next()
		if errors.Is(err, io.EOF) {
			return receipt, nil
		}
		if err != nil {
			if r.opts.Mode == Permissive && IsKind(err, KindContentMismatch) {
				receipt.Resources = append(receipt.Resources, cid.Undef)
				receipt.Skipped = append(receipt.Skipped, err)
				continue
			}
			return receipt, err
		}
		id, err := cas.Put(body)
		if err != nil {
			return receipt, fmt.Errorf("archive: store %s: %w", res.Path, err)
		}
		if d, err := digest.FromCID(id); err != nil || !d.Equal(res.Src) {
			return receipt, fmt.Errorf("archive: store %s: %w", res.Path, storage.ErrCIDMismatch)
		}
		receipt.Resources = append(receipt.Resources, id)
	}
}

func putDagCBOR(cas storage.CAS, raw []byte) (cid.Cid, error) {
	id, err := cas.Put(raw)
	if err != nil {
		return cid.Undef, err
	}
	d, err := digest.FromCID(id)
	if err != nil {
		return cid.Undef, storage.ErrInvalidCID
	}
	return d.CID(digest.DagCBOR), nil
}
