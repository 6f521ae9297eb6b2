package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"xdao.co/szdt/archive"
	"xdao.co/szdt/memo"
)

// vectorTime is the fixed issue time of every generated vector.
var vectorTime = time.Unix(1700000000, 0)

func mustSigner(seedByte byte) *memo.Ed25519Signer {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	s, err := memo.NewEd25519SignerFromSeed(seed)
	if err != nil {
		panic(err)
	}
	return s
}

func vectorEntries() []archive.Entry {
	return []archive.Entry{
		{Path: "/index.html", Body: []byte("<h1>Conformance vector</h1>"), ContentType: "text/html"},
		{Path: "/data.bin", Body: bytes.Repeat([]byte{0x5a}, 300)},
	}
}

// generate writes a deterministic signed archive and its key facts.
func generate(w io.Writer) error {
	var buf bytes.Buffer
	receipt, err := archive.Write(&buf, mustSigner(0xA1), vectorEntries(), archive.Options{
		Now:      vectorTime,
		Nickname: "vector",
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "DID=%s\n", receipt.Memo.Protected.Issuer)
	fmt.Fprintf(w, "MEMO=%s\n", receipt.MemoDigest)
	fmt.Fprintf(w, "MANIFEST=%s\n", receipt.Memo.Protected.Src)
	for i, res := range receipt.Manifest.Resources {
		r := receipt.Ranges[i]
		fmt.Fprintf(w, "RESOURCE=%s %d %d %s\n", res.Path, r.Offset, r.Length, res.Src)
	}
	fmt.Fprintf(w, "---BEGIN---\n%s\n---END---\n", hex.EncodeToString(buf.Bytes()))
	return nil
}

func main() {
	if err := generate(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
