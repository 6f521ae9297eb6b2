package memo

import (
	"fmt"
	"time"

	"xdao.co/szdt/digest"
)

// VerifyTimestamps checks the nbf/exp window. The memo is not yet valid when
// now+skew < nbf and expired when now-skew > exp. Absent fields pass.
func (m *Memo) VerifyTimestamps(now time.Time, skew time.Duration) error {
	if skew < 0 {
		skew = -skew
	}
	t := now.Unix()
	s := int64(skew / time.Second)

	if nbf := m.Protected.NotBefore; nbf != nil && before(t+s, *nbf) {
		return newError(KindNotYetValid, fmt.Sprintf("not valid before %d (now %d, skew %ds)", *nbf, t, s))
	}
	if exp := m.Protected.Expires; exp != nil && after(t-s, *exp) {
		return newError(KindExpired, fmt.Sprintf("expired at %d (now %d, skew %ds)", *exp, t, s))
	}
	return nil
}

// before reports t < ts.
func before(t int64, ts uint64) bool {
	return t < 0 || uint64(t) < ts
}

// after reports t > ts.
func after(t int64, ts uint64) bool {
	return t >= 0 && uint64(t) > ts
}

// VerifyContent checks a body against the src digest. A []byte body is
// digested as-is; any other value is canonically encoded first.
func (m *Memo) VerifyContent(body any) error {
	var d digest.Digest
	if b, ok := body.([]byte); ok {
		d = digest.Sum(b)
	} else {
		var err error
		if d, err = digest.Of(body); err != nil {
			return wrapError(KindContentMismatch, "body cannot be canonically encoded", err)
		}
	}
	return m.CheckDigest(d)
}

// CheckDigest compares an already computed body digest with src.
func (m *Memo) CheckDigest(d digest.Digest) error {
	if !d.Equal(m.Protected.Src) {
		return newError(KindContentMismatch, fmt.Sprintf("body digest %s does not match src %s", d, m.Protected.Src))
	}
	return nil
}

// Validate checks the timestamp window and the signature.
func (m *Memo) Validate(now time.Time, skew time.Duration) error {
	if err := m.VerifyTimestamps(now, skew); err != nil {
		return err
	}
	return m.VerifySignature()
}

// Verify runs every check: timestamps, signature and body content.
func (m *Memo) Verify(body any, now time.Time, skew time.Duration) error {
	if err := m.Validate(now, skew); err != nil {
		return err
	}
	return m.VerifyContent(body)
}
