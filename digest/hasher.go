package digest

import "github.com/zeebo/blake3"

// Hasher computes a Digest incrementally.
//
// A Hasher has a single owner. It is finalized exactly once; writing to it or
// finalizing it again afterwards panics.
type Hasher struct {
	h    *blake3.Hasher
	done bool
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Write implements io.Writer. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	if h.done {
		panic("digest: write to finalized Hasher")
	}
	return h.h.Write(p)
}

// Update feeds the next chunk of content.
func (h *Hasher) Update(chunk []byte) {
	_, _ = h.Write(chunk)
}

// Finalize returns the digest of everything written.
func (h *Hasher) Finalize() Digest {
	if h.done {
		panic("digest: Hasher finalized twice")
	}
	h.done = true
	var d Digest
	h.h.Sum(d[:0])
	return d
}
