package archive

import (
	"fmt"
	"io"
	"time"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
	"xdao.co/szdt/memo"
	"xdao.co/szdt/seq"
)

// Options control the header memo Write signs.
type Options struct {
	// Now is the issue time. Zero means time.Now().
	Now time.Time
	// Expires sets exp when non-zero.
	Expires time.Time
	// Prev names the memo this archive supersedes.
	Prev *digest.Digest
	// Nickname is the issuer's suggested petname (iss-nickname).
	Nickname string
}

// Receipt describes a written archive.
type Receipt struct {
	Memo         *memo.Memo
	MemoDigest   digest.Digest
	Manifest     *Manifest
	MemoSize     uint64
	ManifestSize uint64
	Ranges       []ByteRange
	Size         uint64
}

// Write emits memo ‖ manifest ‖ bodies to w. The memo is signed by signer and
// points at the manifest.
func Write(w io.Writer, signer memo.Signer, entries []Entry, opts Options) (*Receipt, error) {
	manifest, _, err := BuildManifest(entries)
	if err != nil {
		return nil, err
	}
	manifestRaw, err := manifest.MarshalCBOR()
	if err != nil {
		return nil, wrapError(KindInvalidManifest, "encode manifest", err)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	m := memo.New(digest.Sum(manifestRaw), now)
	m.Protected.Issuer = signer.DID()
	m.Protected.IssuerNickname = opts.Nickname
	m.Protected.ContentType = codec.ManifestContentType
	m.Protected.Prev = opts.Prev
	if !opts.Expires.IsZero() {
		exp := uint64(opts.Expires.Unix())
		m.Protected.Expires = &exp
	}
	if err := m.Sign(signer); err != nil {
		return nil, err
	}
	memoRaw, err := m.MarshalCBOR()
	if err != nil {
		return nil, err
	}

	sw := seq.NewWriter(w)
	if _, err := sw.WriteRaw(memoRaw); err != nil {
		return nil, fmt.Errorf("archive: write memo: %w", err)
	}
	if _, err := sw.WriteRaw(manifestRaw); err != nil {
		return nil, fmt.Errorf("archive: write manifest: %w", err)
	}

	ranges := Offsets(manifest, uint64(len(memoRaw)), uint64(len(manifestRaw)))
	for i, e := range entries {
		if uint64(sw.Offset()) != ranges[i].Offset {
			return nil, newError(KindInvalidManifest, "record offset drifted from manifest").at(i, e.Path)
		}
		if _, err := sw.Write(e.Body); err != nil {
			return nil, fmt.Errorf("archive: write %s: %w", e.Path, err)
		}
	}

	return &Receipt{
		Memo:         m,
		MemoDigest:   digest.Sum(memoRaw),
		Manifest:     manifest,
		MemoSize:     uint64(len(memoRaw)),
		ManifestSize: uint64(len(manifestRaw)),
		Ranges:       ranges,
		Size:         uint64(sw.Offset()),
	}, nil
}
