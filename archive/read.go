package archive

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
	"xdao.co/szdt/memo"
	"xdao.co/szdt/seq"
)

// ReadOptions control header and body verification.
type ReadOptions struct {
	// Now is the time the memo's validity window is checked against.
	// Zero means time.Now().
	Now  time.Time
	Skew time.Duration
	Mode Mode

	// MaxRecordSize caps a single record. Zero means
	// codec.DefaultMaxRecordSize.
	MaxRecordSize int
}

func (o ReadOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o ReadOptions) maxRecord() uint64 {
	if o.MaxRecordSize > 0 {
		return uint64(o.MaxRecordSize)
	}
	return codec.DefaultMaxRecordSize
}

// header is the verified memo and manifest pair that opens an archive.
type header struct {
	memo        *memo.Memo
	memoRaw     []byte
	manifest    *Manifest
	manifestRaw []byte
}

func (h *header) ranges() []ByteRange {
	return Offsets(h.manifest, uint64(len(h.memoRaw)), uint64(len(h.manifestRaw)))
}

func readHeader(sr *seq.Reader, opts ReadOptions) (*header, error) {
	rec, err := sr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newError(KindInvalidManifest, "empty archive")
		}
		return nil, wrapError(KindInvalidManifest, "read memo", err)
	}
	m, err := seq.Memo(rec)
	if err != nil {
		return nil, wrapError(KindInvalidManifest, "first record is not a memo", err)
	}
	if err := m.Validate(opts.now(), opts.Skew); err != nil {
		return nil, wrapError(KindInvalidManifest, "header memo", err)
	}
	if ct := m.Protected.ContentType; ct != "" && ct != codec.ManifestContentType {
		return nil, newError(KindInvalidManifest, fmt.Sprintf("memo content-type %q is not a manifest", ct))
	}

	rec2, err := sr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newError(KindInvalidManifest, "archive ends after memo")
		}
		return nil, wrapError(KindInvalidManifest, "read manifest", err)
	}
	if err := m.CheckDigest(digest.Sum(rec2.Raw)); err != nil {
		return nil, wrapError(KindContentMismatch, "manifest does not match memo", err)
	}
	manifest, err := FromValue(rec2.Value)
	if err != nil {
		return nil, err
	}
	return &header{memo: m, memoRaw: rec.Raw, manifest: manifest, manifestRaw: rec2.Raw}, nil
}

// verifyBody checks one body record against its manifest entry and returns
// the body content.
func verifyBody(i int, res Resource, raw []byte, v codec.Value) ([]byte, error) {
	if uint64(len(raw)) != res.Length {
		return nil, newError(KindContentMismatch, fmt.Sprintf("record is %d bytes, manifest says %d", len(raw), res.Length)).at(i, res.Path)
	}
	body, ok := v.([]byte)
	if !ok {
		return nil, newError(KindContentMismatch, "record is not a byte string").at(i, res.Path)
	}
	if d := digest.Sum(body); !d.Equal(res.Src) {
		return body, newError(KindContentMismatch, fmt.Sprintf("body digest %s does not match src %s", d, res.Src)).at(i, res.Path)
	}
	return body, nil
}

// Reader streams the resources of an archive, verifying each against the
// signed manifest.
//
// A Reader owns its source and must not be shared between goroutines.
type Reader struct {
	sr   *seq.Reader
	opts ReadOptions
	hdr  *header
	next int
	err  error // sticky
}

// NewReader reads and verifies the archive header: the memo's timestamps and
// signature, and the manifest's digest against the memo.
func NewReader(r io.Reader, opts ReadOptions) (*Reader, error) {
	sr := seq.NewReader(r)
	if opts.MaxRecordSize > 0 {
		sr.SetMaxRecordSize(opts.MaxRecordSize)
	}
	hdr, err := readHeader(sr, opts)
	if err != nil {
		return nil, err
	}
	return &Reader{sr: sr, opts: opts, hdr: hdr}, nil
}

func (r *Reader) Memo() *memo.Memo { return r.hdr.memo }

func (r *Reader) Manifest() *Manifest { return r.hdr.manifest }

// MemoDigest returns the digest of the header memo record.
func (r *Reader) MemoDigest() digest.Digest { return digest.Sum(r.hdr.memoRaw) }

// Ranges returns the byte range of every resource.
func (r *Reader) Ranges() []ByteRange { return r.hdr.ranges() }

// Next returns the next resource and its body. It returns io.EOF after the
// last listed resource.
//
// A body that fails verification yields a *Error of KindContentMismatch. In
// Strict mode that error is sticky; in Permissive mode the next call moves
// on to the following resource. A stream that ends early yields
// KindMissingResource, and a record whose framing is lost ends the read in
// either mode.
func (r *Reader) Next() (Resource, []byte, error) {
	if r.err != nil {
		return Resource{}, nil, r.err
	}
	resources := r.hdr.manifest.Resources
	if r.next >= len(resources) {
		return Resource{}, nil, io.EOF
	}
	i := r.next
	res := resources[i]

	rec, err := r.sr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.err = newError(KindMissingResource, fmt.Sprintf("stream ended after %d of %d resources", i, len(resources))).at(i, res.Path)
			return res, nil, r.err
		}
		if rec.Raw == nil {
			r.err = wrapError(KindMissingResource, "resource record unreadable", err).at(i, res.Path)
			return res, nil, r.err
		}
		r.next++
		return res, nil, r.fail(wrapError(KindContentMismatch, "resource record is not canonical", err).at(i, res.Path))
	}
	r.next++

	body, err := verifyBody(i, res, rec.Raw, rec.Value)
	if err != nil {
		return res, body, r.fail(err)
	}
	return res, body, nil
}

func (r *Reader) fail(err error) error {
	if r.opts.Mode == Strict {
		r.err = err
	}
	return err
}

// Index gives random access to the resources of an archive through the
// byte ranges its manifest implies.
type Index struct {
	r      io.ReaderAt
	opts   ReadOptions
	hdr    *header
	ranges []ByteRange
}

// OpenAt reads and verifies the archive header from r. Bodies are only read
// on demand.
func OpenAt(r io.ReaderAt, opts ReadOptions) (*Index, error) {
	sr := seq.NewReader(io.NewSectionReader(r, 0, math.MaxInt64))
	if opts.MaxRecordSize > 0 {
		sr.SetMaxRecordSize(opts.MaxRecordSize)
	}
	hdr, err := readHeader(sr, opts)
	if err != nil {
		return nil, err
	}
	return &Index{r: r, opts: opts, hdr: hdr, ranges: hdr.ranges()}, nil
}

func (x *Index) Memo() *memo.Memo { return x.hdr.memo }

func (x *Index) Manifest() *Manifest { return x.hdr.manifest }

func (x *Index) Ranges() []ByteRange { return x.ranges }

// ReadResource fetches resource i by its byte range and re-checks its digest.
func (x *Index) ReadResource(i int) (Resource, []byte, error) {
	resources := x.hdr.manifest.Resources
	if i < 0 || i >= len(resources) {
		return Resource{}, nil, newError(KindNotFound, fmt.Sprintf("no resource %d", i))
	}
	res, rng := resources[i], x.ranges[i]
	if rng.Length > x.opts.maxRecord() || rng.End() > math.MaxInt64 {
		return res, nil, newError(KindContentMismatch, fmt.Sprintf("record length %d out of range", rng.Length)).at(i, res.Path)
	}

	raw := make([]byte, rng.Length)
	n, err := x.r.ReadAt(raw, int64(rng.Offset))
	if n < len(raw) {
		if err == nil || errors.Is(err, io.EOF) {
			return res, nil, newError(KindMissingResource, fmt.Sprintf("archive truncated at offset %d", rng.Offset+uint64(n))).at(i, res.Path)
		}
		return res, nil, err
	}

	v, err := codec.DecodeAll(raw)
	if err != nil {
		return res, nil, wrapError(KindContentMismatch, "resource record is not canonical", err).at(i, res.Path)
	}
	body, err := verifyBody(i, res, raw, v)
	if err != nil {
		return res, body, err
	}
	return res, body, nil
}

// ReadPath fetches the resource stored under path p.
func (x *Index) ReadPath(p string) (Resource, []byte, error) {
	i := x.hdr.manifest.Lookup(p)
	if i < 0 {
		return Resource{}, nil, &Error{Kind: KindNotFound, Index: -1, Path: p, Message: "no such path"}
	}
	return x.ReadResource(i)
}
