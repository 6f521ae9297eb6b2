package storage

import (
	"github.com/ipfs/go-cid"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Reads try Adapters in slice order; callers MUST supply a fixed order.
// Put writes only to the first adapter.
type MultiCAS struct {
	Adapters []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(bytes []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return m.Adapters[0].Put(bytes)
}

func (m MultiCAS) Get(id cid.Cid) ([]byte, error) {
	return getInOrder(id, m.Adapters)
}

func (m MultiCAS) Has(id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(id) {
			return true
		}
	}
	return false
}

// getInOrder returns the first hit. A backend returning ErrNotFound is
// skipped; any other error stops the lookup.
func getInOrder(id cid.Cid, backends []CAS) ([]byte, error) {
	for _, cas := range backends {
		if cas == nil {
			continue
		}
		b, err := cas.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}
