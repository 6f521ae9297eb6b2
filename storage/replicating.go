package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// NamedCAS is a backend together with the name used in errors and reports.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS keeps every block on all of its backends.
//
// Put succeeds only once each backend has stored the block under the
// expected CID. Get reads in order and re-hashes what it receives: a replica
// holding corrupt bytes is passed over in favour of the next one.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll stores data on every backend. It returns the expected CID and the
// CID each backend reported, including the offending one on a mismatch.
func (r ReplicatingCAS) PutAll(data []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}
	want := CIDOf(data)
	reported := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q is not configured", b.Name)
		}
		got, err := b.CAS.Put(data)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		reported[b.Name] = got
		if !got.Equals(want) {
			return cid.Undef, reported, fmt.Errorf("storage: backend %q named the block %s: %w", b.Name, got, ErrCIDMismatch)
		}
	}
	return want, reported, nil
}

func (r ReplicatingCAS) Put(data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(data)
	return id, err
}

// Get returns the first verified copy. If no backend has a good copy but
// one returned bad bytes, that integrity error is reported instead of
// ErrNotFound.
func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	var damaged error
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		data, err := b.CAS.Get(id)
		if err == nil {
			err = Verify(id, data)
		}
		switch {
		case err == nil:
			return data, nil
		case IsNotFound(err):
		case IsIntegrity(err):
			if damaged == nil {
				damaged = fmt.Errorf("storage: backend %q: %w", b.Name, err)
			}
		default:
			return nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
	}
	if damaged != nil {
		return nil, damaged
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
