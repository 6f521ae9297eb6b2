package memo

import (
	"fmt"

	"xdao.co/szdt/digest"
)

// Compare orders two versions of a memo. The greater issue time wins; on a
// tie the memo whose digest is the greater unsigned big-endian integer wins.
// The result is -1, 0 or +1.
func Compare(a, b *Memo) (int, error) {
	switch {
	case a.Protected.IssuedAt < b.Protected.IssuedAt:
		return -1, nil
	case a.Protected.IssuedAt > b.Protected.IssuedAt:
		return 1, nil
	}
	da, err := a.Digest()
	if err != nil {
		return 0, err
	}
	db, err := b.Digest()
	if err != nil {
		return 0, err
	}
	return digest.Compare(da, db), nil
}

// Latest returns the winning memo per issuer according to Compare.
func Latest(memos []*Memo) (map[string]*Memo, error) {
	out := make(map[string]*Memo)
	for _, m := range memos {
		iss := m.Protected.Issuer
		cur, ok := out[iss]
		if !ok {
			out[iss] = m
			continue
		}
		c, err := Compare(m, cur)
		if err != nil {
			return nil, err
		}
		if c > 0 {
			out[iss] = m
		}
	}
	return out, nil
}

// ValidateSupersession checks that newer is a well-formed successor of older.
//
// newer supersedes older when:
//   - newer's prev header equals the digest of older
//   - both share the same issuer
//   - newer was not issued before older
func ValidateSupersession(newer, older *Memo) error {
	oldDigest, err := older.Digest()
	if err != nil {
		return err
	}
	newDigest, err := newer.Digest()
	if err != nil {
		return err
	}
	if newDigest.Equal(oldDigest) {
		return newError(KindSupersession, "new memo is identical to old")
	}
	if newer.Protected.Prev == nil {
		return newError(KindSupersession, "new memo does not declare prev")
	}
	if !newer.Protected.Prev.Equal(oldDigest) {
		return newError(KindSupersession, fmt.Sprintf("prev %s does not match old memo %s", newer.Protected.Prev, oldDigest))
	}
	if newer.Protected.Issuer != older.Protected.Issuer {
		return newError(KindSupersession, fmt.Sprintf("issuer mismatch old=%q new=%q", older.Protected.Issuer, newer.Protected.Issuer))
	}
	if newer.Protected.IssuedAt < older.Protected.IssuedAt {
		return newError(KindSupersession, fmt.Sprintf("new memo issued at %d before old memo at %d", newer.Protected.IssuedAt, older.Protected.IssuedAt))
	}
	return nil
}
