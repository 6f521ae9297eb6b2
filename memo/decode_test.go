package memo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
)

func rawMemo(t *testing.T, protected, unprotected map[string]any) []byte {
	t.Helper()
	data, err := codec.Marshal(map[string]any{
		KeyProtected:   protected,
		KeyUnprotected: unprotected,
	})
	require.NoError(t, err)
	return data
}

func TestDecodeWithoutTypeTag(t *testing.T) {
	src := digest.Sum([]byte("hello"))
	m, err := Decode(rawMemo(t, map[string]any{
		"iat": uint64(1700000000),
		"src": src.Bytes(),
	}, map[string]any{}))
	require.NoError(t, err)
	require.Equal(t, src, m.Protected.Src)
	require.Equal(t, uint64(1700000000), m.Protected.IssuedAt)
	require.Nil(t, m.Unprotected.Sig)
}

func TestDecodeKeepsExplicitNulls(t *testing.T) {
	s := testSigner(t, 0xA1)
	src := digest.Sum([]byte("hello"))
	protected := map[string]any{
		"iss":          s.DID(),
		"iss-nickname": nil,
		"iat":          uint64(1700000000),
		"src":          src.Bytes(),
	}
	signing, err := codec.Marshal(protected)
	require.NoError(t, err)
	d := digest.Sum(signing)
	sig, err := s.Sign(d[:])
	require.NoError(t, err)

	m, err := Decode(rawMemo(t, protected, map[string]any{"sig": sig}))
	require.NoError(t, err)
	require.Empty(t, m.Protected.IssuerNickname)
	require.NoError(t, m.VerifySignature())
}

func TestDecodeKeepsEmptyText(t *testing.T) {
	s := testSigner(t, 0xA1)
	src := digest.Sum([]byte("hello"))
	for _, key := range []string{KeyIssuerNickname, KeyContentType, KeyPath} {
		t.Run(key, func(t *testing.T) {
			protected := map[string]any{
				"iss": s.DID(),
				"iat": uint64(1700000000),
				"src": src.Bytes(),
				key:   "",
			}
			signing, err := codec.Marshal(protected)
			require.NoError(t, err)
			d := digest.Sum(signing)
			sig, err := s.Sign(d[:])
			require.NoError(t, err)

			raw := rawMemo(t, protected, map[string]any{"sig": sig})
			m, err := Decode(raw)
			require.NoError(t, err)
			require.NoError(t, m.VerifySignature())
			require.NoError(t, m.VerifyContent([]byte("hello")))

			again, err := m.MarshalCBOR()
			require.NoError(t, err)
			require.Equal(t, raw, again)
		})
	}
}

func TestDecodedDigestMatchesRecord(t *testing.T) {
	src := digest.Sum([]byte("hello")).Bytes()
	protected := map[string]any{"iat": uint64(1700000000), "src": src}
	records := map[string][]byte{
		"untyped":  rawMemo(t, protected, map[string]any{}),
		"sig null": rawMemo(t, protected, map[string]any{"sig": nil}),
	}
	typed, err := codec.Marshal(map[string]any{
		KeyType:        TypeTag,
		KeyProtected:   protected,
		KeyUnprotected: map[string]any{"sig": nil},
	})
	require.NoError(t, err)
	records["typed sig null"] = typed

	for name, raw := range records {
		t.Run(name, func(t *testing.T) {
			m, err := Decode(raw)
			require.NoError(t, err)
			got, err := m.Digest()
			require.NoError(t, err)
			require.Equal(t, digest.Sum(raw), got)

			cloned, err := m.Clone().Digest()
			require.NoError(t, err)
			require.Equal(t, got, cloned)
		})
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	src := digest.Sum([]byte("hello")).Bytes()
	tests := []struct {
		name        string
		protected   map[string]any
		unprotected map[string]any
		kind        Kind
	}{
		{"missing src", map[string]any{"iat": uint64(1)}, map[string]any{}, KindMissingField},
		{"missing iat", map[string]any{"src": src}, map[string]any{}, KindMissingField},
		{"text iat", map[string]any{"iat": "now", "src": src}, map[string]any{}, KindInvalidHeader},
		{"negative exp", map[string]any{"iat": uint64(1), "exp": int64(-1), "src": src}, map[string]any{}, KindInvalidHeader},
		{"short src", map[string]any{"iat": uint64(1), "src": src[:31]}, map[string]any{}, KindInvalidHeader},
		{"text prev", map[string]any{"iat": uint64(1), "src": src, "prev": "abc"}, map[string]any{}, KindInvalidHeader},
		{"bytes issuer", map[string]any{"iat": uint64(1), "src": src, "iss": []byte("x")}, map[string]any{}, KindInvalidHeader},
		{"text sig", map[string]any{"iat": uint64(1), "src": src}, map[string]any{"sig": "deadbeef"}, KindInvalidHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(rawMemo(t, tt.protected, tt.unprotected))
			require.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	for _, v := range []any{
		"memo",
		map[string]any{"protected": map[string]any{}},
		map[string]any{"protected": "x", "unprotected": map[string]any{}},
		map[string]any{"type": "szdt/other", "protected": map[string]any{}, "unprotected": map[string]any{}},
		map[string]any{"protected": map[string]any{}, "unprotected": map[string]any{}, "body": []byte("x")},
	} {
		data, err := codec.Marshal(v)
		require.NoError(t, err)
		_, err = Decode(data)
		require.True(t, IsKind(err, KindInvalidHeader), "value %v: %v", v, err)
	}

	_, err := Decode([]byte{0x18, 0x05})
	require.True(t, codec.IsRule(err, codec.RuleNonMinimalInteger))
}

func TestExtraHeaderLimits(t *testing.T) {
	m := New(digest.Sum(nil), scenarioTime)
	m.Protected.Extra = map[string]codec.Value{}
	for i := 0; i < MaxExtra; i++ {
		m.Protected.Extra[fmt.Sprintf("x-%02d", i)] = uint64(i)
	}
	raw, err := m.MarshalCBOR()
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, got.Protected.Extra, MaxExtra)

	m.Protected.Extra["one-too-many"] = true
	_, err = m.MarshalCBOR()
	require.True(t, IsKind(err, KindInvalidHeader))

	protected, err := New(digest.Sum(nil), scenarioTime).Protected.Map()
	require.NoError(t, err)
	for i := 0; i <= MaxExtra; i++ {
		protected[fmt.Sprintf("x-%02d", i)] = uint64(i)
	}
	_, err = Decode(rawMemo(t, protected, map[string]any{}))
	require.True(t, IsKind(err, KindInvalidHeader))

	m = New(digest.Sum(nil), scenarioTime)
	m.Protected.Extra = map[string]codec.Value{"src": []byte("shadow")}
	_, err = m.MarshalCBOR()
	require.True(t, IsKind(err, KindInvalidHeader))

	m = New(digest.Sum(nil), scenarioTime)
	m.Unprotected.Extra = map[string]codec.Value{"sig": []byte("shadow")}
	_, err = m.MarshalCBOR()
	require.True(t, IsKind(err, KindInvalidHeader))
}

func TestExtraMustBeCanonical(t *testing.T) {
	m := New(digest.Sum(nil), scenarioTime)
	m.Protected.Extra = map[string]codec.Value{"ratio": 0.5}
	_, err := m.MarshalCBOR()
	require.True(t, IsKind(err, KindInvalidHeader))
	require.True(t, codec.IsRule(err, codec.RuleUnsupportedType))
}

func TestIsMemo(t *testing.T) {
	m := New(digest.Sum(nil), scenarioTime)
	v, err := m.Value()
	require.NoError(t, err)
	require.True(t, IsMemo(v))

	require.False(t, IsMemo([]byte("hello")))
	require.False(t, IsMemo(map[string]any{"resources": []any{}}))
	require.False(t, IsMemo(map[string]any{"protected": map[string]any{}}))
}
