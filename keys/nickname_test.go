package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNickname(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"Alice Smith", "alicesmith"},
		{"-bob-", "bob"},
		{"carol_92!", "carol92"},
		{"dave-the-builder", "dave-the-builder"},
		{strings.Repeat("x", 80), strings.Repeat("x", MaxNicknameLength)},
	}
	for _, tt := range tests {
		got, err := ParseNickname(tt.in)
		require.NoError(t, err, "ParseNickname(%q)", tt.in)
		require.Equal(t, tt.want, got, "ParseNickname(%q)", tt.in)
	}

	for _, in := range []string{"", "---", "!!!", "ñ"} {
		_, err := ParseNickname(in)
		require.ErrorIs(t, err, ErrNicknameTooShort, "ParseNickname(%q)", in)
	}
}

func TestUniqueNickname(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)

	got, err := ks.UniqueNickname("Alice")
	require.NoError(t, err)
	require.Equal(t, "alice", got)

	_, err = ks.Create("alice", nil)
	require.NoError(t, err)
	got, err = ks.UniqueNickname("alice")
	require.NoError(t, err)
	require.Equal(t, "alice2", got)

	_, err = ks.Create("alice2", nil)
	require.NoError(t, err)
	got, err = ks.UniqueNickname("alice")
	require.NoError(t, err)
	require.Equal(t, "alice3", got)

	got, err = ks.UniqueNickname("!!!")
	require.NoError(t, err)
	require.Equal(t, DefaultNickname, got)

	long := strings.Repeat("z", MaxNicknameLength)
	_, err = ks.Create(long, nil)
	require.NoError(t, err)
	got, err = ks.UniqueNickname(long)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("z", MaxNicknameLength-1)+"2", got)
}
