package localfs

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/testkit"
)

func newCAS(t *testing.T) *CAS {
	t.Helper()
	cas, err := New(t.TempDir())
	require.NoError(t, err)
	return cas
}

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS { return newCAS(t) })
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	cas := newCAS(t)
	orig := []byte("original")
	id, err := cas.Put(orig)
	require.NoError(t, err)
	require.True(t, id.Equals(storage.CIDOf(orig)))

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(digest.Sum(orig))
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	_, err = cas.Get(id)
	require.ErrorIs(t, err, storage.ErrCIDMismatch)

	// Put does not repair the damaged object.
	_, err = cas.Put(orig)
	require.ErrorIs(t, err, storage.ErrImmutable)
}

func TestLocalFS_RejectForeignHash(t *testing.T) {
	_, err := newCAS(t).Get(testkit.SHA256CID([]byte("x")))
	require.ErrorIs(t, err, storage.ErrInvalidCID)
}

func TestLocalFS_ConcurrentPut(t *testing.T) {
	cas := newCAS(t)
	body := []byte("written by many")
	want := storage.CIDOf(body)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := cas.Put(body)
			if err == nil && !id.Equals(want) {
				err = storage.ErrCIDMismatch
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Only the object itself remains in its shard.
	entries, err := os.ReadDir(filepath.Dir(cas.pathFor(digest.Sum(body))))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
