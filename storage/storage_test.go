package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/localfs"
	"xdao.co/szdt/storage/testkit"
)

func newLocal(t *testing.T) storage.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return cas
}

func TestCIDOf(t *testing.T) {
	b := []byte("hello")
	id := storage.CIDOf(b)
	require.Equal(t, uint64(cid.Raw), id.Type())

	d, err := digest.FromCID(id)
	require.NoError(t, err)
	require.True(t, d.Equal(digest.Sum(b)))
}

func TestVerify(t *testing.T) {
	b := []byte("hello")
	require.NoError(t, storage.Verify(storage.CIDOf(b), b))
	require.NoError(t, storage.Verify(digest.Sum(b).CID(digest.DagCBOR), b))
	require.ErrorIs(t, storage.Verify(storage.CIDOf(b), []byte("hellp")), storage.ErrCIDMismatch)
	require.ErrorIs(t, storage.Verify(testkit.SHA256CID(b), b), storage.ErrInvalidCID)
	require.ErrorIs(t, storage.Verify(cid.Undef, b), storage.ErrInvalidCID)
}

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{newLocal(t), newLocal(t)}}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: newLocal(t)},
			{Name: "b", CAS: newLocal(t)},
		}}
	})
}

func TestMultiCAS_FallsBackInOrder(t *testing.T) {
	first, second := newLocal(t), newLocal(t)
	id, err := second.Put([]byte("only in second"))
	require.NoError(t, err)

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}}
	require.True(t, m.Has(id))
	got, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("only in second"), got)

	_, err = storage.MultiCAS{}.Put([]byte("x"))
	require.Error(t, err)
}

type failingCAS struct{ storage.CAS }

var errBackend = errors.New("backend down")

func (failingCAS) Put([]byte) (cid.Cid, error) { return cid.Undef, errBackend }
func (failingCAS) Get(cid.Cid) ([]byte, error) { return nil, errBackend }

func TestMultiCAS_StopsOnHardError(t *testing.T) {
	second := newLocal(t)
	id, err := second.Put([]byte("x"))
	require.NoError(t, err)

	m := storage.MultiCAS{Adapters: []storage.CAS{failingCAS{}, second}}
	_, err = m.Get(id)
	require.ErrorIs(t, err, errBackend)
}

// renamingCAS reports the dag-cbor CID instead of the raw one.
type renamingCAS struct{ storage.CAS }

func (r renamingCAS) Put(b []byte) (cid.Cid, error) {
	if _, err := r.CAS.Put(b); err != nil {
		return cid.Undef, err
	}
	return digest.Sum(b).CID(digest.DagCBOR), nil
}

func TestReplicatingCAS_PutAll(t *testing.T) {
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "a", CAS: newLocal(t)},
		{Name: "b", CAS: newLocal(t)},
	}}
	want, ids, err := r.PutAll([]byte("replicated"))
	require.NoError(t, err)
	require.True(t, want.Equals(storage.CIDOf([]byte("replicated"))))
	require.True(t, ids["a"].Equals(want))
	require.True(t, ids["b"].Equals(want))

	r.Backends = append(r.Backends, storage.NamedCAS{Name: "c", CAS: renamingCAS{newLocal(t)}})
	_, _, err = r.PutAll([]byte("mismatch"))
	require.ErrorIs(t, err, storage.ErrCIDMismatch)

	r.Backends = []storage.NamedCAS{{Name: "down", CAS: failingCAS{}}}
	_, _, err = r.PutAll([]byte("x"))
	require.ErrorIs(t, err, errBackend)
	require.ErrorContains(t, err, `"down"`)

	_, err = storage.ReplicatingCAS{}.Put([]byte("x"))
	require.ErrorIs(t, err, storage.ErrNoBackends)
	_, err = storage.MultiCAS{}.Put([]byte("x"))
	require.ErrorIs(t, err, storage.ErrNoBackends)
}

func TestIsIntegrity(t *testing.T) {
	require.True(t, storage.IsIntegrity(storage.ErrCIDMismatch))
	require.True(t, storage.IsIntegrity(fmt.Errorf("wrapped: %w", storage.ErrImmutable)))
	require.False(t, storage.IsIntegrity(storage.ErrNotFound))
	require.False(t, storage.IsIntegrity(nil))
}

// lyingCAS answers every Get with the same wrong bytes.
type lyingCAS struct{ storage.CAS }

func (lyingCAS) Get(cid.Cid) ([]byte, error) { return []byte("tampered"), nil }

func TestReplicatingCAS_SkipsDamagedReplica(t *testing.T) {
	good := newLocal(t)
	id, err := good.Put([]byte("intact"))
	require.NoError(t, err)

	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "liar", CAS: lyingCAS{}},
		{Name: "good", CAS: good},
	}}
	got, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("intact"), got)

	r.Backends = r.Backends[:1]
	_, err = r.Get(id)
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
	require.ErrorContains(t, err, `"liar"`)

	_, err = storage.ReplicatingCAS{}.Get(id)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
