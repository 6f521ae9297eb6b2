package memo

import (
	"fmt"
	"time"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
)

// Memo keys.
const (
	KeyType        = "type"
	KeyProtected   = "protected"
	KeyUnprotected = "unprotected"

	// TypeTag is the value of the top-level "type" key.
	TypeTag = "szdt/memo"
)

// Memo is a signed envelope pointing at a body by digest.
type Memo struct {
	Protected   Protected
	Unprotected Unprotected

	untyped bool // decoded from a record without the "type" key
}

// New returns an unsigned memo for a body with digest src, issued at now and
// not valid before now.
func New(src digest.Digest, now time.Time) *Memo {
	iat := unixSeconds(now)
	nbf := iat
	return &Memo{
		Protected: Protected{
			IssuedAt:  iat,
			NotBefore: &nbf,
			Src:       src,
		},
	}
}

// ForBody returns a memo for a structured body. The body is canonically
// encoded and the encoding digested.
func ForBody(body any, now time.Time) (*Memo, error) {
	src, err := digest.Of(body)
	if err != nil {
		return nil, err
	}
	return New(src, now), nil
}

// ForBytes returns a memo for a raw byte body, digested as-is.
func ForBytes(body []byte, now time.Time) *Memo {
	return New(digest.Sum(body), now)
}

// Value returns the memo as a canonical map.
func (m *Memo) Value() (map[string]any, error) {
	p, err := m.Protected.Map()
	if err != nil {
		return nil, err
	}
	u, err := m.Unprotected.Map()
	if err != nil {
		return nil, err
	}
	v := map[string]any{
		KeyProtected:   p,
		KeyUnprotected: u,
	}
	if !m.untyped {
		v[KeyType] = TypeTag
	}
	return v, nil
}

// MarshalCBOR returns the canonical encoding of the memo.
func (m *Memo) MarshalCBOR() ([]byte, error) {
	v, err := m.Value()
	if err != nil {
		return nil, err
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, wrapError(KindInvalidHeader, "memo is not canonical", err)
	}
	return data, nil
}

// UnmarshalCBOR decodes a canonical memo record.
func (m *Memo) UnmarshalCBOR(data []byte) error {
	v, err := codec.DecodeAll(data)
	if err != nil {
		return err
	}
	dec, err := FromValue(v)
	if err != nil {
		return err
	}
	*m = *dec
	return nil
}

// Decode decodes a single canonical memo record.
func Decode(raw []byte) (*Memo, error) {
	var m Memo
	if err := m.UnmarshalCBOR(raw); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsMemo reports whether v is shaped like a memo: a map holding "protected"
// and "unprotected" maps.
func IsMemo(v codec.Value) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, p := m[KeyProtected].(map[string]any)
	_, u := m[KeyUnprotected].(map[string]any)
	return p && u
}

// FromValue converts a decoded value into a Memo.
func FromValue(v codec.Value) (*Memo, error) {
	if !IsMemo(v) {
		return nil, newError(KindInvalidHeader, "value is not a memo")
	}
	top := v.(map[string]any)
	for k, tv := range top {
		switch k {
		case KeyProtected, KeyUnprotected:
		case KeyType:
			if tv != TypeTag {
				return nil, newError(KindInvalidHeader, fmt.Sprintf("unexpected memo type %v", tv))
			}
		default:
			return nil, newError(KindInvalidHeader, fmt.Sprintf("unexpected top-level key %q", k))
		}
	}
	p, err := protectedFromMap(top[KeyProtected].(map[string]any))
	if err != nil {
		return nil, err
	}
	u, err := unprotectedFromMap(top[KeyUnprotected].(map[string]any))
	if err != nil {
		return nil, err
	}
	_, typed := top[KeyType]
	return &Memo{Protected: p, Unprotected: u, untyped: !typed}, nil
}

// Digest returns the digest of the memo's full encoding, unprotected headers
// included. A decoded memo re-encodes to its original record, so this equals
// the digest of the bytes it was decoded from.
func (m *Memo) Digest() (digest.Digest, error) {
	data, err := m.MarshalCBOR()
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.Sum(data), nil
}

// Clone returns a deep copy of m.
func (m *Memo) Clone() *Memo {
	c := *m
	if p := m.Protected.NotBefore; p != nil {
		v := *p
		c.Protected.NotBefore = &v
	}
	if p := m.Protected.Expires; p != nil {
		v := *p
		c.Protected.Expires = &v
	}
	if p := m.Protected.Prev; p != nil {
		v := *p
		c.Protected.Prev = &v
	}
	c.Protected.Extra = cloneExtra(m.Protected.Extra)
	c.Protected.nulls = append([]string(nil), m.Protected.nulls...)
	c.Protected.empties = append([]string(nil), m.Protected.empties...)
	if m.Unprotected.Sig != nil {
		c.Unprotected.Sig = append([]byte{}, m.Unprotected.Sig...)
	}
	c.Unprotected.Extra = cloneExtra(m.Unprotected.Extra)
	return &c
}

func cloneExtra(in map[string]codec.Value) map[string]codec.Value {
	if in == nil {
		return nil
	}
	out := make(map[string]codec.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
