package casconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/casregistry"
	_ "xdao.co/szdt/storage/localfs"
)

func TestParseValidates(t *testing.T) {
	_, err := Parse([]byte("backends: []\n"))
	require.Error(t, err)

	_, err = Parse([]byte("write_policy: some\nbackends:\n  - name: localfs\n"))
	require.ErrorContains(t, err, "write_policy")

	_, err = Parse([]byte("backends:\n  - name: localfs\n  - name: localfs\n"))
	require.ErrorContains(t, err, "duplicate")

	cfg, err := Parse([]byte("backends:\n  - name: localfs\n  - name: localfs\n    id: second\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 2)
}

func TestOpenPolicies(t *testing.T) {
	a, b := filepath.Join(t.TempDir(), "a"), filepath.Join(t.TempDir(), "b")
	cfg := Config{Backends: []BackendConfig{
		{Name: "localfs", ID: "a", Config: map[string]string{"localfs-dir": a}},
		{Name: "localfs", ID: "b", Config: map[string]string{"localfs-dir": b}},
	}}

	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "b")
	require.NoError(t, err)
	defer closeFn()
	multi, ok := cas.(storage.MultiCAS)
	require.True(t, ok, "got %T", cas)

	id, err := multi.Put([]byte("first policy"))
	require.NoError(t, err)
	require.True(t, multi.Adapters[0].Has(id))
	require.False(t, multi.Adapters[1].Has(id))

	cfg.WritePolicy = "all"
	cas, closeFn2, err := cfg.Open(casregistry.UsageCLI, "")
	require.NoError(t, err)
	defer closeFn2()
	rep, ok := cas.(storage.ReplicatingCAS)
	require.True(t, ok, "got %T", cas)

	_, ids, err := rep.PutAll([]byte("all policy"))
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Equal(t, ids["a"], ids["b"])
}

func TestOpenErrors(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "nope"}}}
	_, _, err := cfg.Open(casregistry.UsageCLI, "")
	require.ErrorContains(t, err, "unknown backend")

	cfg = Config{Backends: []BackendConfig{{Name: "localfs"}}}
	_, _, err = cfg.Open(casregistry.UsageCLI, "")
	require.ErrorContains(t, err, "localfs-dir")

	_, _, err = cfg.Open(casregistry.UsageCLI, "elsewhere")
	require.ErrorContains(t, err, "not found")
}
