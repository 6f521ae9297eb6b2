package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/szdt/internal/config"
	"xdao.co/szdt/storage/bundle"
	"xdao.co/szdt/storage/localfs"
)

const aliceSeed = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

// setup points the CLI at a fresh config and keystore and returns a scratch
// directory.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "keys:\n  dir: " + filepath.Join(dir, "keys") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	t.Setenv(config.EnvVar, path)
	return dir
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
}

var site = map[string]string{
	"index.html":   "<h1>hello</h1>",
	"css/site.css": "h1 { color: teal }",
}

func packSite(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "site")
	writeTree(t, src, site)

	stdout, stderr, code := runCLI(t, "key", "create", "Alice", "--seed-hex", aliceSeed)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "did:key:z6Mk")

	archivePath := filepath.Join(dir, "site.szdt")
	stdout, stderr, code = runCLI(t, "archive", src, "--sign", "alice", "-o", archivePath)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "2 resources")
	return archivePath
}

func TestUsage(t *testing.T) {
	_, _, code := runCLI(t)
	require.Equal(t, 2, code)

	_, stderr, code := runCLI(t, "frobnicate")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "unknown command")

	stdout, _, code := runCLI(t, "help")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "szdt archive")

	_, stderr, code = runCLI(t, "archive", t.TempDir())
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "missing --sign")
}

func TestArchiveListVerifyUnarchive(t *testing.T) {
	dir := setup(t)
	archivePath := packSite(t, dir)

	stdout, stderr, code := runCLI(t, "list", archivePath)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "Nickname: alice")
	require.Contains(t, stdout, "/css/site.css")
	require.Contains(t, stdout, "text/html")
	require.Less(t, strings.Index(stdout, "/css/site.css"), strings.Index(stdout, "/index.html"))

	stdout, stderr, code = runCLI(t, "verify", archivePath)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "2 of 2 resources verified")

	// A reader with an empty keystore learns the issuer as a contact.
	otherKeys := filepath.Join(dir, "other-keys")
	dst := filepath.Join(dir, "out")
	stdout, stderr, code = runCLI(t, "unarchive", archivePath, "--dir", dst, "--keys", otherKeys)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "Unpacked 2 resources")
	require.Contains(t, stdout, "Signed by: alice")
	for name, body := range site {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err)
		require.Equal(t, body, string(got))
	}

	stdout, stderr, code = runCLI(t, "key", "list", "--keys", otherKeys)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "alice\tcontact\tdid:key:")

	// Unpacking again reuses the contact.
	_, stderr, code = runCLI(t, "unarchive", archivePath, "--dir", dst, "--keys", otherKeys)
	require.Equal(t, 0, code, stderr)
	stdout, _, _ = runCLI(t, "key", "list", "--keys", otherKeys)
	require.Equal(t, 1, strings.Count(stdout, "\n"), stdout)
}

func TestArchiveRefusesToOverwrite(t *testing.T) {
	dir := setup(t)
	archivePath := packSite(t, dir)

	_, _, code := runCLI(t, "archive", filepath.Join(dir, "site"), "--sign", "alice", "-o", archivePath)
	require.Equal(t, 1, code)
}

func TestVerifyCorruptArchive(t *testing.T) {
	dir := setup(t)
	archivePath := packSite(t, dir)

	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff // last byte of /index.html
	require.NoError(t, os.WriteFile(archivePath, data, 0o644))

	stdout, _, code := runCLI(t, "verify", archivePath)
	require.Equal(t, 1, code)
	require.Contains(t, stdout, "FAIL /index.html")
	require.Contains(t, stdout, "1 of 2 resources verified")

	dst := filepath.Join(dir, "out")
	stdout, _, code = runCLI(t, "unarchive", archivePath, "--dir", dst, "--mode", "permissive")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, "Skipped 1 resources")
	_, err = os.Stat(filepath.Join(dst, "css", "site.css"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "index.html"))
	require.True(t, os.IsNotExist(err))

	_, _, code = runCLI(t, "unarchive", archivePath, "--dir", filepath.Join(dir, "strict"))
	require.Equal(t, 1, code)
}

func TestImportLocalFS(t *testing.T) {
	dir := setup(t)
	archivePath := packSite(t, dir)

	bundlePath := filepath.Join(dir, "site.tar")
	stdout, stderr, code := runCLI(t, "import", archivePath, "--backend", "localfs", "--localfs-dir", filepath.Join(dir, "cas"), "--bundle", bundlePath)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "memo\t")
	require.Contains(t, stdout, "manifest\t")
	require.Contains(t, stdout, "/index.html\t")
	require.Contains(t, stdout, "/css/site.css\t")

	f, err := os.Open(bundlePath)
	require.NoError(t, err)
	defer f.Close()
	dst, err := localfs.New(filepath.Join(dir, "copy"))
	require.NoError(t, err)
	idx, err := bundle.Import(f, dst)
	require.NoError(t, err)
	require.Len(t, idx.Blocks, 4)
	require.Contains(t, idx.Labels, "memo")
	require.Contains(t, idx.Labels, "/index.html")

	_, _, code = runCLI(t, "import", archivePath, "--storage-config")
	require.Equal(t, 2, code)
}

func TestKeyCommands(t *testing.T) {
	setup(t)

	stdout, stderr, code := runCLI(t, "key", "create", "bob")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "Created key bob")

	_, _, code = runCLI(t, "key", "create", "bob")
	require.Equal(t, 1, code)

	stdout, stderr, code = runCLI(t, "key", "derive", "bob", "--role", "author")
	require.Equal(t, 0, code, stderr)
	derived := strings.TrimSpace(stdout[strings.LastIndex(stdout, " ")+1:])

	stdout, stderr, code = runCLI(t, "did", "bob", "--role", "author")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, derived, strings.TrimSpace(stdout))

	stdout, _, code = runCLI(t, "did", "bob")
	require.Equal(t, 0, code)
	require.NotEqual(t, derived, strings.TrimSpace(stdout))

	stdout, _, code = runCLI(t, "key", "list")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "bob\tkey\t")
	require.Contains(t, stdout, "roles=author")

	_, _, code = runCLI(t, "key", "delete", "bob")
	require.Equal(t, 0, code)
	_, _, code = runCLI(t, "did", "bob")
	require.Equal(t, 1, code)
}
