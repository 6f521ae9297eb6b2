// Package testkit holds the behaviour every storage.CAS implementation in
// this module must share.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
)

// NewCAS returns an empty store private to t.
type NewCAS func(t *testing.T) storage.CAS

// SHA256CID returns a raw CID over the SHA2-256 hash of b. No CAS in this
// module accepts it.
func SHA256CID(b []byte) cid.Cid {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, mh)
}

var conformance = []struct {
	name string
	run  func(t *testing.T, cas storage.CAS)
}{
	{"RoundTrip", func(t *testing.T, cas storage.CAS) {
		roundTrip(t, cas, []byte("hello, szdt storage"))
	}},
	{"EmptyBlock", func(t *testing.T, cas storage.CAS) {
		roundTrip(t, cas, []byte{})
	}},
	{"LargeBlock", func(t *testing.T, cas storage.CAS) {
		big := make([]byte, 512<<10)
		for i := range big {
			big[i] = byte(i * 31)
		}
		roundTrip(t, cas, big)
	}},
	{"PutIdempotent", func(t *testing.T, cas storage.CAS) {
		first := mustPut(t, cas, []byte("same bytes"))
		second := mustPut(t, cas, []byte("same bytes"))
		if !first.Equals(second) {
			t.Fatalf("second Put named the block %s, first %s", second, first)
		}
	}},
	{"NotFound", func(t *testing.T, cas storage.CAS) {
		b := []byte("missing")
		id := storage.CIDOf(b)
		if cas.Has(id) {
			t.Fatalf("Has(%s) before Put", id)
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get before Put: err=%v, want ErrNotFound", err)
		}
		mustPut(t, cas, b)
		if !cas.Has(id) {
			t.Fatalf("Has(%s) false after Put", id)
		}
	}},
	{"AnyCodecSameDigest", func(t *testing.T, cas storage.CAS) {
		record := []byte{0xa1, 0x61, 0x61, 0x01} // {"a": 1}
		mustPut(t, cas, record)
		id := digest.Sum(record).CID(digest.DagCBOR)
		if !cas.Has(id) {
			t.Fatalf("Has(%s) false for the dag-cbor name of a stored block", id)
		}
		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if !bytes.Equal(got, record) {
			t.Fatalf("Get(%s) returned %x", id, got)
		}
	}},
	{"ForeignHash", func(t *testing.T, cas storage.CAS) {
		b := []byte("sha2 bytes")
		mustPut(t, cas, b)
		id := SHA256CID(b)
		if cas.Has(id) {
			t.Fatalf("Has accepted sha2-256 CID %s", id)
		}
		if _, err := cas.Get(id); err == nil {
			t.Fatalf("Get accepted sha2-256 CID %s", id)
		}
	}},
	{"UndefinedCID", func(t *testing.T, cas storage.CAS) {
		if cas.Has(cid.Undef) {
			t.Fatalf("Has accepted cid.Undef")
		}
		if _, err := cas.Get(cid.Undef); err == nil {
			t.Fatalf("Get accepted cid.Undef")
		}
	}},
}

// RunCASConformance runs the shared cases against fresh stores from newCAS.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	for _, c := range conformance {
		t.Run(c.name, func(t *testing.T) {
			c.run(t, newCAS(t))
		})
	}
}

func mustPut(t *testing.T, cas storage.CAS, b []byte) cid.Cid {
	t.Helper()
	id, err := cas.Put(b)
	if err != nil {
		t.Fatalf("Put(%d bytes): %v", len(b), err)
	}
	return id
}

func roundTrip(t *testing.T, cas storage.CAS, want []byte) {
	t.Helper()
	id := mustPut(t, cas, want)
	if expected := storage.CIDOf(want); !id.Equals(expected) {
		t.Fatalf("Put named the block %s, want %s", id, expected)
	}
	if id.Type() != cid.Raw {
		t.Fatalf("Put returned codec %#x, want raw", id.Type())
	}
	got, err := cas.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Get(%s) returned %d bytes that differ from the %d stored", id, len(got), len(want))
	}
	if err := storage.Verify(id, got); err != nil {
		t.Fatalf("Get(%s) bytes fail verification: %v", id, err)
	}
}
