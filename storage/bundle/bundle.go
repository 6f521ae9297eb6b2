// Package bundle moves CAS blocks between stores as a TAR file.
//
// A bundle holds one regular file per block, blocks/<cid>, plus an optional
// index.cbor describing them. Export output is byte-for-byte deterministic:
// entries are sorted and headers carry no owner or time information. Import
// trusts nothing but the digests: every block is re-hashed against its name
// before it is stored.
package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

const (
	indexName   = "index.cbor"
	blockPrefix = "blocks/"
)

var epoch = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.cbor is written.
	IncludeIndex bool
}

// Index is the decoded index.cbor of a bundle.
type Index struct {
	Version int
	Blocks  []Block
	Labels  map[string]cid.Cid
}

// Block is one index entry.
type Block struct {
	CID  cid.Cid
	Size uint64
}

// Export writes a bundle of the given blocks, read from cas.
//
// Duplicate ids are written once. Every block is verified against its CID
// before it is written.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	idx := Index{Version: FormatVersion}
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		if err := storage.Verify(id, b); err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, blockPrefix+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		idx.Blocks = append(idx.Blocks, Block{CID: id, Size: uint64(len(b))})
	}

	if opts.IncludeIndex {
		for k, v := range opts.Labels {
			if k == "" {
				_ = tw.Close()
				return fmt.Errorf("bundle: empty label key")
			}
			if !v.Defined() {
				_ = tw.Close()
				return storage.ErrInvalidCID
			}
		}
		idx.Labels = opts.Labels
		b, err := codec.Marshal(idx.value())
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, indexName, b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle from r and stores every block in cas. It returns
// the bundle's index, or nil if it has none.
func Import(r io.Reader, cas storage.CAS) (*Index, error) {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions is Import with options.
//
// Each block must hash to the digest in its file name, and cas must store
// it under that digest.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) (*Index, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var idx *Index

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return idx, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return idx, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return idx, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			b, err := io.ReadAll(tr)
			if err != nil {
				return idx, err
			}
			if idx, err = decodeIndex(b); err != nil {
				return nil, err
			}
			continue
		}

		if !strings.HasPrefix(name, blockPrefix) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return idx, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cid.Decode(strings.TrimPrefix(name, blockPrefix))
		if err != nil || !id.Defined() {
			return idx, storage.ErrInvalidCID
		}
		key := id.String()
		if _, ok := seen[key]; ok {
			return idx, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return idx, err
		}
		if err := storage.Verify(id, payload); err != nil {
			return idx, err
		}

		putID, err := cas.Put(payload)
		if err != nil {
			return idx, err
		}
		if err := storage.Verify(putID, payload); err != nil {
			return idx, err
		}
	}
}

func (idx Index) value() map[string]any {
	blocks := make([]any, 0, len(idx.Blocks))
	for _, b := range idx.Blocks {
		blocks = append(blocks, map[string]any{
			"cid":  b.CID.String(),
			"size": b.Size,
		})
	}
	v := map[string]any{
		"version":   uint64(idx.Version),
		"multihash": "blake3",
		"blocks":    blocks,
	}
	if len(idx.Labels) > 0 {
		labels := make(map[string]any, len(idx.Labels))
		for k, id := range idx.Labels {
			labels[k] = id.String()
		}
		v["labels"] = labels
	}
	return v
}

func decodeIndex(b []byte) (*Index, error) {
	v, err := codec.DecodeAll(b)
	if err != nil {
		return nil, fmt.Errorf("bundle: index: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("bundle: index is not a map")
	}
	version, ok := m["version"].(uint64)
	if !ok || version != FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported index version %v", m["version"])
	}
	idx := &Index{Version: int(version)}

	blocks, _ := m["blocks"].([]any)
	for _, entry := range blocks {
		e, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bundle: index block is not a map")
		}
		id, err := decodeCID(e["cid"])
		if err != nil {
			return nil, err
		}
		size, ok := e["size"].(uint64)
		if !ok {
			return nil, fmt.Errorf("bundle: index block %s has no size", id)
		}
		idx.Blocks = append(idx.Blocks, Block{CID: id, Size: size})
	}

	if labels, ok := m["labels"].(map[string]any); ok {
		idx.Labels = make(map[string]cid.Cid, len(labels))
		for k, raw := range labels {
			id, err := decodeCID(raw)
			if err != nil {
				return nil, err
			}
			idx.Labels[k] = id
		}
	}
	return idx, nil
}

func decodeCID(v any) (cid.Cid, error) {
	s, ok := v.(string)
	if !ok {
		return cid.Undef, fmt.Errorf("bundle: index CID is not text")
	}
	_, id, err := digest.ParseCID(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("bundle: index: %w", err)
	}
	return id, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
