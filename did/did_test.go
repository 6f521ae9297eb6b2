package did

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/require"
)

var vectorKey = [PublicKeySize]byte{
	215, 90, 152, 1, 130, 177, 10, 183, 213, 75, 254, 211, 201, 100, 7, 58,
	14, 225, 114, 243, 218, 166, 35, 37, 175, 2, 26, 104, 247, 7, 81, 26,
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := Encode(vectorKey)
	require.True(t, strings.HasPrefix(s, "did:key:z6Mk"), s)

	got, err := Decode(s)
	require.NoError(t, err)
	require.Equal(t, vectorKey, got)
}

func TestKnownIdentifierRoundTrips(t *testing.T) {
	const id = "did:key:z6MkjxXr49JYNRDagDRVTNJKj17vTcmxwPb1KybzeVUM13qs"
	k, err := Parse(id)
	require.NoError(t, err)
	require.Equal(t, id, k.String())
}

func TestKeyFromGeneratedPublicKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0xA1
	}
	priv := ed25519.NewKeyFromSeed(seed)
	k, err := FromPublicKey(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	msg := []byte("message")
	require.True(t, k.Verify(msg, ed25519.Sign(priv, msg)))
	require.False(t, k.Verify([]byte("other"), ed25519.Sign(priv, msg)))

	text, err := k.MarshalText()
	require.NoError(t, err)
	var back Key
	require.NoError(t, back.UnmarshalText(text))
	require.Equal(t, k, back)
	require.Equal(t, priv.Public(), back.PublicKey())
}

func TestFromPublicKeyWrongLength(t *testing.T) {
	_, err := FromPublicKey(make(ed25519.PublicKey, 31))
	require.True(t, IsKind(err, KindInvalidLength), "got %v", err)
}

func encodePayload(t *testing.T, base multibase.Encoding, code uint64, key []byte) string {
	t.Helper()
	s, err := multibase.Encode(base, append(varint.ToUvarint(code), key...))
	require.NoError(t, err)
	return Prefix + s
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  Kind
	}{
		{"empty", "", KindUnsupportedMethod},
		{"not a did", "z6MkjxXr49JYNRDagDRVTNJKj17vTcmxwPb1KybzeVUM13qs", KindUnsupportedMethod},
		{"other method", "did:web:example.com", KindUnsupportedMethod},
		{"missing method separator", "did:key", KindUnsupportedMethod},
		{"bad base58", "did:key:z0OIl", KindInvalidEncoding},
		{"uppercase garbage", "did:key:INVALID", KindInvalidEncoding},
		{"empty payload", "did:key:", KindInvalidEncoding},
		{"base32 multibase", encodePayload(t, multibase.Base32, Ed25519Multicodec, vectorKey[:]), KindInvalidEncoding},
		{"secp256k1 key", encodePayload(t, multibase.Base58BTC, 0xe7, make([]byte, 33)), KindUnsupportedKeyType},
		{"x25519 key", encodePayload(t, multibase.Base58BTC, 0xec, vectorKey[:]), KindUnsupportedKeyType},
		{"short key", encodePayload(t, multibase.Base58BTC, Ed25519Multicodec, vectorKey[:31]), KindInvalidLength},
		{"long key", encodePayload(t, multibase.Base58BTC, Ed25519Multicodec, append(vectorKey[:], 0)), KindInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)
			require.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}
