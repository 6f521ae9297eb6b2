package memo

import (
	"fmt"
	"sort"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
)

// MaxExtra caps the number of unrecognised entries kept per header map.
const MaxExtra = 64

// Header keys.
const (
	KeyIssuer         = "iss"
	KeyIssuerNickname = "iss-nickname"
	KeyIssuedAt       = "iat"
	KeyNotBefore      = "nbf"
	KeyExpires        = "exp"
	KeyPrev           = "prev"
	KeyContentType    = "content-type"
	KeyPath           = "path"
	KeySrc            = "src"
	KeySignature      = "sig"
)

var protectedKeys = map[string]bool{
	KeyIssuer:         true,
	KeyIssuerNickname: true,
	KeyIssuedAt:       true,
	KeyNotBefore:      true,
	KeyExpires:        true,
	KeyPrev:           true,
	KeyContentType:    true,
	KeyPath:           true,
	KeySrc:            true,
}

// Protected holds the signed headers.
//
// Zero-valued optional fields are omitted from the encoding. Extra carries any
// other key and round-trips unchanged; it may not reuse a recognised key.
type Protected struct {
	Issuer         string // DID of the signing key
	IssuerNickname string // issuer-suggested petname for the key
	IssuedAt       uint64 // unix seconds
	NotBefore      *uint64
	Expires        *uint64
	Prev           *digest.Digest // digest of the memo this one supersedes
	ContentType    string
	Path           string
	Src            digest.Digest
	Extra          map[string]codec.Value

	// Optional recognised keys that arrived as explicit nulls or as empty
	// text. They are re-emitted so a decoded memo re-encodes to the bytes
	// that were signed.
	nulls   []string
	empties []string
}

// Unprotected holds headers that are not covered by the signature.
type Unprotected struct {
	Sig   []byte
	Extra map[string]codec.Value

	sigNull bool // "sig" arrived as an explicit null
}

// Map returns the protected headers as a canonical map.
func (p *Protected) Map() (map[string]any, error) {
	if err := checkExtra(p.Extra, protectedKeys); err != nil {
		return nil, err
	}
	m := make(map[string]any, len(p.Extra)+len(protectedKeys))
	for k, v := range p.Extra {
		m[k] = v
	}
	for _, k := range p.nulls {
		m[k] = nil
	}
	for _, k := range p.empties {
		m[k] = ""
	}
	if p.Issuer != "" {
		m[KeyIssuer] = p.Issuer
	}
	if p.IssuerNickname != "" {
		m[KeyIssuerNickname] = p.IssuerNickname
	}
	m[KeyIssuedAt] = p.IssuedAt
	if p.NotBefore != nil {
		m[KeyNotBefore] = *p.NotBefore
	}
	if p.Expires != nil {
		m[KeyExpires] = *p.Expires
	}
	if p.Prev != nil {
		m[KeyPrev] = p.Prev.Bytes()
	}
	if p.ContentType != "" {
		m[KeyContentType] = p.ContentType
	}
	if p.Path != "" {
		m[KeyPath] = p.Path
	}
	m[KeySrc] = p.Src.Bytes()
	return m, nil
}

// Encode returns the canonical encoding of the protected headers. These are
// the bytes whose digest is signed.
func (p *Protected) Encode() ([]byte, error) {
	m, err := p.Map()
	if err != nil {
		return nil, err
	}
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, wrapError(KindInvalidHeader, "protected headers are not canonical", err)
	}
	return data, nil
}

// SigningDigest returns the digest the issuer signs.
func (p *Protected) SigningDigest() (digest.Digest, error) {
	data, err := p.Encode()
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.Sum(data), nil
}

// Map returns the unprotected headers as a canonical map.
func (u *Unprotected) Map() (map[string]any, error) {
	if err := checkExtra(u.Extra, map[string]bool{KeySignature: true}); err != nil {
		return nil, err
	}
	m := make(map[string]any, len(u.Extra)+1)
	for k, v := range u.Extra {
		m[k] = v
	}
	if u.Sig != nil {
		m[KeySignature] = u.Sig
	} else if u.sigNull {
		m[KeySignature] = nil
	}
	return m, nil
}

func checkExtra(extra map[string]codec.Value, reserved map[string]bool) error {
	if len(extra) > MaxExtra {
		return newError(KindInvalidHeader, fmt.Sprintf("%d extra headers exceed the limit of %d", len(extra), MaxExtra))
	}
	for k := range extra {
		if reserved[k] {
			return newError(KindInvalidHeader, fmt.Sprintf("extra header %q shadows a recognised header", k))
		}
	}
	return nil
}

func protectedFromMap(m map[string]any) (Protected, error) {
	var p Protected
	var err error
	var ok bool

	if p.Issuer, _, err = textField(m, KeyIssuer); err != nil {
		return p, err
	}
	if p.IssuerNickname, _, err = textField(m, KeyIssuerNickname); err != nil {
		return p, err
	}
	if p.IssuedAt, ok, err = uintField(m, KeyIssuedAt); err != nil {
		return p, err
	} else if !ok {
		return p, newError(KindMissingField, "protected header \"iat\" is required")
	}
	if v, ok, err := uintField(m, KeyNotBefore); err != nil {
		return p, err
	} else if ok {
		p.NotBefore = &v
	}
	if v, ok, err := uintField(m, KeyExpires); err != nil {
		return p, err
	} else if ok {
		p.Expires = &v
	}
	if d, ok, err := digestField(m, KeyPrev); err != nil {
		return p, err
	} else if ok {
		p.Prev = &d
	}
	if p.ContentType, _, err = textField(m, KeyContentType); err != nil {
		return p, err
	}
	if p.Path, _, err = textField(m, KeyPath); err != nil {
		return p, err
	}
	if p.Src, ok, err = digestField(m, KeySrc); err != nil {
		return p, err
	} else if !ok {
		return p, newError(KindMissingField, "protected header \"src\" is required")
	}

	for k, v := range m {
		if protectedKeys[k] {
			switch {
			case v == nil && k != KeyIssuedAt && k != KeySrc:
				p.nulls = append(p.nulls, k)
			case v == "":
				p.empties = append(p.empties, k)
			}
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]codec.Value)
		}
		p.Extra[k] = v
	}
	sort.Strings(p.nulls)
	sort.Strings(p.empties)
	if len(p.Extra) > MaxExtra {
		return p, newError(KindInvalidHeader, fmt.Sprintf("%d extra protected headers exceed the limit of %d", len(p.Extra), MaxExtra))
	}
	return p, nil
}

func unprotectedFromMap(m map[string]any) (Unprotected, error) {
	var u Unprotected
	switch sig := m[KeySignature].(type) {
	case nil:
		_, u.sigNull = m[KeySignature]
	case []byte:
		u.Sig = sig
	default:
		return u, newError(KindInvalidHeader, fmt.Sprintf("unprotected header \"sig\" must be bytes, got %T", sig))
	}
	for k, v := range m {
		if k == KeySignature {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]codec.Value)
		}
		u.Extra[k] = v
	}
	if len(u.Extra) > MaxExtra {
		return u, newError(KindInvalidHeader, fmt.Sprintf("%d extra unprotected headers exceed the limit of %d", len(u.Extra), MaxExtra))
	}
	return u, nil
}

func textField(m map[string]any, key string) (string, bool, error) {
	switch v := m[key].(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	default:
		return "", false, newError(KindInvalidHeader, fmt.Sprintf("header %q must be text, got %T", key, v))
	}
}

func uintField(m map[string]any, key string) (uint64, bool, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, false, nil
	case uint64:
		return v, true, nil
	default:
		return 0, false, newError(KindInvalidHeader, fmt.Sprintf("header %q must be an unsigned integer, got %T", key, v))
	}
}

func digestField(m map[string]any, key string) (digest.Digest, bool, error) {
	switch v := m[key].(type) {
	case nil:
		return digest.Digest{}, false, nil
	case []byte:
		d, err := digest.FromBytes(v)
		if err != nil {
			return d, false, wrapError(KindInvalidHeader, fmt.Sprintf("header %q", key), err)
		}
		return d, true, nil
	default:
		return digest.Digest{}, false, newError(KindInvalidHeader, fmt.Sprintf("header %q must be a digest, got %T", key, v))
	}
}
