package keys

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/szdt/did"
)

func testStore(t *testing.T) *KeyStore {
	t.Helper()
	ks, err := Open(filepath.Join(t.TempDir(), "keys"))
	require.NoError(t, err)
	return ks
}

func TestCreateAndSign(t *testing.T) {
	ks := testStore(t)
	seed := bytes.Repeat([]byte{0xA1}, 32)

	c, err := ks.Create("alice", seed)
	require.NoError(t, err)
	require.True(t, c.HasPrivateKey)

	signer, err := ks.Signer("alice")
	require.NoError(t, err)
	require.Equal(t, c.DID.String(), signer.DID())
	sig, err := signer.Sign([]byte("msg"))
	require.NoError(t, err)
	require.True(t, c.DID.Verify([]byte("msg"), sig), "signature did not verify against stored DID")

	info, err := os.Stat(filepath.Join(ks.Directory, "alice", rootKeyFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = ks.Create("alice", nil)
	require.ErrorIs(t, err, ErrExists)
	_, err = ks.Create("Alice", nil)
	require.Error(t, err, "non-normal nickname")
}

func TestContactsAndDelete(t *testing.T) {
	ks := testStore(t)

	cs, err := ks.Contacts()
	require.NoError(t, err)
	require.Empty(t, cs)

	bob, err := ks.Create("bob", nil)
	require.NoError(t, err)
	var issuer did.Key
	issuer[0] = 7
	_, err = ks.AddContact("carol", issuer)
	require.NoError(t, err)

	cs, err = ks.Contacts()
	require.NoError(t, err)
	require.Len(t, cs, 2)
	require.Equal(t, "bob", cs[0].Nickname)
	require.Equal(t, "carol", cs[1].Nickname)
	require.False(t, cs[1].HasPrivateKey)
	require.Equal(t, issuer, cs[1].DID)

	found, err := ks.ContactForDID(bob.DID)
	require.NoError(t, err)
	require.Equal(t, "bob", found.Nickname)
	var unknown did.Key
	_, err = ks.ContactForDID(unknown)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = ks.Signer("carol")
	require.ErrorIs(t, err, ErrNoPrivateKey)

	require.NoError(t, ks.Delete("bob"))
	_, err = ks.Contact("bob")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, ks.Delete("bob"), ErrNotFound)
	_, err = ks.Signer("nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeriveRole(t *testing.T) {
	ks := testStore(t)
	root, err := ks.Create("dave", bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	key, err := ks.Derive("dave", "publisher")
	require.NoError(t, err)
	require.NotEqual(t, root.DID, key, "role key equals root key")
	again, err := ks.Derive("dave", "publisher")
	require.NoError(t, err)
	require.Equal(t, key, again)

	signer, err := ks.RoleSigner("dave", "publisher")
	require.NoError(t, err)
	require.Equal(t, key.String(), signer.DID())
	_, err = ks.RoleSigner("dave", "mirror")
	require.ErrorIs(t, err, ErrNotFound)

	c, err := ks.Contact("dave")
	require.NoError(t, err)
	require.Equal(t, []string{"publisher"}, c.Roles)

	var pub did.Key
	_, err = ks.AddContact("erin", pub)
	require.NoError(t, err)
	_, err = ks.Derive("erin", "publisher")
	require.ErrorIs(t, err, ErrNoPrivateKey)
}

func TestParseSeedHex(t *testing.T) {
	got, err := ParseSeedHex("  0x" + string(bytes.Repeat([]byte("ab"), 32)) + "\n")
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xab}, 32), got)

	_, err = ParseSeedHex("abcd")
	require.Error(t, err, "short seed")
	_, err = ParseSeedHex("zz")
	require.Error(t, err, "bad hex")
}
