// Package ipfs stores blocks in a local IPFS repository through the Kubo
// "ipfs" command. It does not embed a network client and needs no daemon.
//
// Blocks are written as CIDv1 raw with a 32-byte BLAKE3 multihash, the same
// names storage.CIDOf assigns, and every read is re-hashed before it is
// returned. Reachability through IPFS says nothing about validity; the
// digest does.
package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
)

// CAS is a storage.CAS backed by the ipfs binary.
type CAS struct {
	bin string
	env []string
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. Empty means "ipfs" on PATH.
	Bin string
	// Repo sets IPFS_PATH for every invocation when non-empty.
	Repo string
	// Env, when non-nil, replaces the process environment.
	Env []string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	env := opts.Env
	if opts.Repo != "" {
		if env == nil {
			env = os.Environ()
		}
		env = append(append([]string(nil), env...), "IPFS_PATH="+opts.Repo)
	}
	return &CAS{bin: bin, env: env}
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id := storage.CIDOf(data)

	out, err := c.run(data,
		"block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype=blake3",
		"--mhlen=32",
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

// Get fetches a block. Any BLAKE3 CID is accepted; the raw form is what
// Kubo indexes, so the lookup always uses it.
func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	d, err := digest.FromCID(id)
	if err != nil {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(nil, "block", "get", d.CID(digest.Raw).String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	d, err := digest.FromCID(id)
	if err != nil {
		return false
	}
	_, err = c.run(nil, "block", "stat", d.CID(digest.Raw).String())
	return err == nil
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}
