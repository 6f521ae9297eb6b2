package localfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
)

// CAS is a local filesystem-backed content-addressable store.
//
// Objects are stored immutably under their BLAKE3 digest, so a body and the
// manifest entry naming it share a key regardless of CID multicodec.
// Objects live at <root>/<first two hex digits>/<hex digest>, read-only.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

// Root returns the directory backing the store.
func (c *CAS) Root() string {
	return c.root
}

// Put stores b under its digest. Objects appear complete or not at all:
// bytes go to a temporary file in the shard directory, which is then
// hard-linked into place.
func (c *CAS) Put(b []byte) (cid.Cid, error) {
	d := digest.Sum(b)
	id := d.CID(digest.Raw)
	path := c.pathFor(d)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	tmp, err := c.writeTemp(filepath.Dir(path), b)
	if err != nil {
		return cid.Undef, err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if !os.IsExist(err) {
			return cid.Undef, err
		}
		existing, gerr := c.Get(id)
		if gerr != nil || !bytes.Equal(existing, b) {
			// Present but unreadable, corrupted or different.
			return cid.Undef, storage.ErrImmutable
		}
	}
	return id, nil
}

func (c *CAS) writeTemp(dir string, b []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(0o444); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	d, err := digest.FromCID(id)
	if err != nil {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !digest.Sum(b).Equal(d) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	d, err := digest.FromCID(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(c.pathFor(d))
	return err == nil
}

func (c *CAS) pathFor(d digest.Digest) string {
	s := d.String()
	return filepath.Join(c.root, s[:2], s)
}
