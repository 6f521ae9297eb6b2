package bundle_test

import (
	"archive/tar"
	"bytes"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/bundle"
	"xdao.co/szdt/storage/localfs"
	"xdao.co/szdt/storage/testkit"
)

func newStore(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return cas
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	cas := newStore(t)
	id1, err := cas.Put([]byte("hello"))
	require.NoError(t, err)
	id2, err := cas.Put([]byte("world"))
	require.NoError(t, err)

	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"b": id2, "a": id1}}
	var outA, outB bytes.Buffer
	require.NoError(t, bundle.Export(&outA, cas, []cid.Cid{id2, id1, id2}, opts))
	require.NoError(t, bundle.Export(&outB, cas, []cid.Cid{id1, id2}, opts))
	require.Equal(t, outA.Bytes(), outB.Bytes())
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := newStore(t)
	payload := []byte("payload")
	id, err := src.Put(payload)
	require.NoError(t, err)

	// Records stored under their dag-cbor name travel the same way.
	record := []byte{0xa1, 0x61, 0x6b, 0x01}
	_, err = src.Put(record)
	require.NoError(t, err)
	recordID := digest.Sum(record).CID(digest.DagCBOR)

	var buf bytes.Buffer
	labels := map[string]cid.Cid{"memo": recordID, "/index.html": id}
	require.NoError(t, bundle.Export(&buf, src, []cid.Cid{id, recordID}, bundle.ExportOptions{IncludeIndex: true, Labels: labels}))

	dst := newStore(t)
	idx, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	require.NoError(t, err)
	require.NotNil(t, idx)
	require.Equal(t, bundle.FormatVersion, idx.Version)
	require.Len(t, idx.Blocks, 2)
	require.Equal(t, labels, idx.Labels)

	got, err := dst.Get(id)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	got, err = dst.Get(recordID)
	require.NoError(t, err)
	require.Equal(t, record, got)
}

func TestBundle_ImportWithoutIndex(t *testing.T) {
	src := newStore(t)
	id, err := src.Put([]byte("x"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bundle.Export(&buf, src, []cid.Cid{id}, bundle.ExportOptions{}))

	idx, err := bundle.Import(&buf, newStore(t))
	require.NoError(t, err)
	require.Nil(t, idx)
}

func TestBundle_ExportMissingBlock(t *testing.T) {
	err := bundle.Export(&bytes.Buffer{}, newStore(t), []cid.Cid{storage.CIDOf([]byte("absent"))}, bundle.ExportOptions{})
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = bundle.Export(&bytes.Buffer{}, newStore(t), []cid.Cid{cid.Undef}, bundle.ExportOptions{})
	require.ErrorIs(t, err, storage.ErrInvalidCID)
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	other := storage.CIDOf([]byte("other"))

	// Name says "other" but bytes are "good".
	b := makeDeterministicTar(t, "blocks/"+other.String(), good)
	_, err := bundle.Import(bytes.NewReader(b), newStore(t))
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestBundle_ImportRejectsForeignHash(t *testing.T) {
	good := []byte("good")
	b := makeDeterministicTar(t, "blocks/"+testkit.SHA256CID(good).String(), good)
	_, err := bundle.Import(bytes.NewReader(b), newStore(t))
	require.ErrorIs(t, err, storage.ErrInvalidCID)
}

func TestBundle_ImportUnknownEntries(t *testing.T) {
	b := makeDeterministicTar(t, "notes.txt", []byte("hi"))
	_, err := bundle.Import(bytes.NewReader(b), newStore(t))
	require.Error(t, err)

	_, err = bundle.ImportWithOptions(bytes.NewReader(b), newStore(t), bundle.ImportOptions{IgnoreUnknown: true})
	require.NoError(t, err)

	b = makeDeterministicTar(t, "blocks/../escape", []byte("hi"))
	_, err = bundle.Import(bytes.NewReader(b), newStore(t))
	require.Error(t, err)
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	require.NoError(t, tw.WriteHeader(h))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}
