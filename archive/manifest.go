package archive

import (
	"fmt"
	"math"
	"path"
	"strings"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
)

// Manifest keys.
const (
	KeyResources   = "resources"
	KeySrc         = "src"
	KeyLength      = "length"
	KeyPath        = "path"
	KeyContentType = "content-type"
)

// Resource describes one body of an archive.
//
// Length is the size of the body's encoded record, not of its content, so
// offsets can be summed without re-encoding anything.
type Resource struct {
	Src         digest.Digest
	Length      uint64
	Path        string
	ContentType string
}

// Manifest lists an archive's resources in stream order.
type Manifest struct {
	Resources []Resource
}

// Entry is one input to BuildManifest.
type Entry struct {
	Path        string
	Body        []byte
	ContentType string
}

// BuildManifest digests every body and returns the manifest with the digests
// in input order.
func BuildManifest(entries []Entry) (*Manifest, []digest.Digest, error) {
	m := &Manifest{Resources: make([]Resource, 0, len(entries))}
	digests := make([]digest.Digest, 0, len(entries))
	for _, e := range entries {
		d := digest.Sum(e.Body)
		m.Resources = append(m.Resources, Resource{
			Src:         d,
			Length:      codec.EncodedBytesLen(uint64(len(e.Body))),
			Path:        e.Path,
			ContentType: e.ContentType,
		})
		digests = append(digests, d)
	}
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	return m, digests, nil
}

// ValidatePath checks a single resource path: non-empty, absolute, slash
// separated, clean and free of ".." segments.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return newError(KindEmptyPath, "empty path")
	case !strings.HasPrefix(p, "/"):
		return &Error{Kind: KindPathNotAbsolute, Index: -1, Path: p, Message: "path must begin with /"}
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == ".." {
			return &Error{Kind: KindPathEscapesRoot, Index: -1, Path: p, Message: "path escapes archive root"}
		}
	}
	if p == "/" || path.Clean(p) != p || strings.ContainsAny(p, "\\\x00") {
		return &Error{Kind: KindInvalidPath, Index: -1, Path: p, Message: "path is not a clean file path"}
	}
	return nil
}

// Validate checks every path, path uniqueness and that the total length
// fits in 64 bits.
func (m *Manifest) Validate() error {
	seen := make(map[string]int, len(m.Resources))
	var total uint64
	for i, r := range m.Resources {
		if err := ValidatePath(r.Path); err != nil {
			return err.(*Error).at(i, r.Path)
		}
		if j, ok := seen[r.Path]; ok {
			return newError(KindDuplicatePath, fmt.Sprintf("resource %d repeats the path of resource %d", i, j)).at(i, r.Path)
		}
		seen[r.Path] = i
		if r.Length == 0 {
			return newError(KindInvalidManifest, "zero-length record").at(i, r.Path)
		}
		if total > math.MaxUint64-r.Length {
			return newError(KindInvalidManifest, "total length overflows").at(i, r.Path)
		}
		total += r.Length
	}
	return nil
}

// Size returns the sum of all record lengths.
func (m *Manifest) Size() uint64 {
	var total uint64
	for _, r := range m.Resources {
		total += r.Length
	}
	return total
}

// Lookup returns the index of the resource with path p, or -1.
func (m *Manifest) Lookup(p string) int {
	for i, r := range m.Resources {
		if r.Path == p {
			return i
		}
	}
	return -1
}

// Value returns the manifest as a canonical map.
func (m *Manifest) Value() map[string]any {
	resources := make([]any, 0, len(m.Resources))
	for _, r := range m.Resources {
		entry := map[string]any{
			KeySrc:    r.Src.Bytes(),
			KeyLength: r.Length,
			KeyPath:   r.Path,
		}
		if r.ContentType != "" {
			entry[KeyContentType] = r.ContentType
		}
		resources = append(resources, entry)
	}
	return map[string]any{KeyResources: resources}
}

// MarshalCBOR returns the canonical encoding of the manifest.
func (m *Manifest) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(m.Value())
}

// UnmarshalCBOR decodes a canonical manifest record. Unknown keys are
// ignored; the result is validated.
func (m *Manifest) UnmarshalCBOR(data []byte) error {
	v, err := codec.DecodeAll(data)
	if err != nil {
		return wrapError(KindInvalidManifest, "manifest is not canonical", err)
	}
	dec, err := FromValue(v)
	if err != nil {
		return err
	}
	*m = *dec
	return nil
}

// DecodeManifest decodes a single canonical manifest record.
func DecodeManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := m.UnmarshalCBOR(raw); err != nil {
		return nil, err
	}
	return &m, nil
}

// FromValue converts a decoded value into a validated Manifest.
func FromValue(v codec.Value) (*Manifest, error) {
	top, ok := v.(map[string]any)
	if !ok {
		return nil, newError(KindInvalidManifest, "manifest is not a map")
	}
	list, ok := top[KeyResources].([]any)
	if !ok {
		return nil, newError(KindInvalidManifest, "missing resources array")
	}
	m := &Manifest{Resources: make([]Resource, 0, len(list))}
	for i, item := range list {
		r, err := resourceFromValue(item)
		if err != nil {
			return nil, err.at(i, r.Path)
		}
		m.Resources = append(m.Resources, r)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func resourceFromValue(v codec.Value) (Resource, *Error) {
	var r Resource
	entry, ok := v.(map[string]any)
	if !ok {
		return r, newError(KindInvalidManifest, "resource is not a map")
	}
	if p, ok := entry[KeyPath].(string); ok {
		r.Path = p
	} else {
		return r, newError(KindInvalidManifest, "resource path missing or not text")
	}
	src, ok := entry[KeySrc].([]byte)
	if !ok {
		return r, newError(KindInvalidManifest, "resource src missing or not bytes")
	}
	d, err := digest.FromBytes(src)
	if err != nil {
		return r, wrapError(KindInvalidManifest, "resource src", err)
	}
	r.Src = d
	if r.Length, ok = entry[KeyLength].(uint64); !ok {
		return r, newError(KindInvalidManifest, "resource length missing or not an unsigned integer")
	}
	if ct, present := entry[KeyContentType]; present {
		if r.ContentType, ok = ct.(string); !ok {
			return r, newError(KindInvalidManifest, "resource content-type is not text")
		}
	}
	return r, nil
}

// ByteRange is a half-open span [Offset, Offset+Length) of an archive.
type ByteRange struct {
	Offset uint64
	Length uint64
}

// End returns the offset one past the range.
func (b ByteRange) End() uint64 {
	return b.Offset + b.Length
}

// Offsets returns the byte range of every resource in order. The first
// range starts after the memo and manifest records; pass zero sizes for
// offsets relative to the start of the resource region.
func Offsets(m *Manifest, memoSize, manifestSize uint64) []ByteRange {
	out := make([]ByteRange, 0, len(m.Resources))
	off := memoSize + manifestSize
	for _, r := range m.Resources {
		out = append(out, ByteRange{Offset: off, Length: r.Length})
		off += r.Length
	}
	return out
}
