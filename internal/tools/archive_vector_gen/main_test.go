package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/szdt/archive"
)

func TestGenerateIsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, generate(&a))
	require.NoError(t, generate(&b))
	require.Equal(t, a.String(), b.String())
}

func TestGeneratedArchiveVerifies(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, generate(&out))

	text := out.String()
	start := strings.Index(text, "---BEGIN---\n") + len("---BEGIN---\n")
	end := strings.Index(text, "\n---END---")
	raw, err := hex.DecodeString(text[start:end])
	require.NoError(t, err)

	r, err := archive.NewReader(bytes.NewReader(raw), archive.ReadOptions{Now: vectorTime})
	require.NoError(t, err)
	require.Contains(t, text, "MEMO="+r.MemoDigest().String())
	require.Contains(t, text, "DID="+r.Memo().Protected.Issuer)

	for _, want := range vectorEntries() {
		res, body, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, want.Path, res.Path)
		require.Equal(t, want.Body, body)
	}
}
