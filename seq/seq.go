// Package seq reads and writes SZDT sequences: canonical CBOR records
// concatenated with no outer framing.
//
// Every record is self-delimiting, so the reader advances by exactly the
// number of bytes each record occupies. Record kinds are discovered by
// inspecting the decoded value, never by position.
package seq

import (
	"errors"
	"fmt"
	"io"

	"xdao.co/szdt/codec"
	"xdao.co/szdt/memo"
)

// ErrNotMemo is returned by Memo for records that are not memos.
var ErrNotMemo = errors.New("seq: record is not a memo")

// Kind classifies a decoded record.
type Kind int

const (
	// KindValue is any structured value without a recognised shape.
	KindValue Kind = iota
	// KindMemo is a map with "protected" and "unprotected" maps.
	KindMemo
	// KindManifest is a map with a "resources" array.
	KindManifest
	// KindBytes is a byte string, typically a raw body.
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindMemo:
		return "memo"
	case KindManifest:
		return "manifest"
	case KindBytes:
		return "bytes"
	default:
		return "value"
	}
}

// Classify returns the Kind of a decoded value.
func Classify(v codec.Value) Kind {
	switch t := v.(type) {
	case []byte:
		return KindBytes
	case map[string]any:
		if memo.IsMemo(t) {
			return KindMemo
		}
		if _, ok := t["resources"].([]any); ok {
			return KindManifest
		}
	}
	return KindValue
}

// Record is one record of a sequence.
type Record struct {
	Offset int64 // absolute position of the first byte
	Raw    []byte
	Value  codec.Value
	Kind   Kind
}

// Len returns the encoded size of the record.
func (r Record) Len() int64 {
	return int64(len(r.Raw))
}

// Memo decodes a memo record into its typed form.
func Memo(r Record) (*memo.Memo, error) {
	if r.Kind != KindMemo {
		return nil, fmt.Errorf("%w: record at offset %d is %s", ErrNotMemo, r.Offset, r.Kind)
	}
	return memo.FromValue(r.Value)
}

// Writer appends canonical records to a sink.
//
// A Writer owns its sink's position and must not be shared between
// goroutines.
type Writer struct {
	w      io.Writer
	offset int64
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.offset
}

// Write appends the canonical encoding of v and returns its size.
func (w *Writer) Write(v any) (int, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return 0, err
	}
	return w.write(data)
}

// WriteRaw appends a record that is already canonically encoded. raw must
// hold exactly one valid item.
func (w *Writer) WriteRaw(raw []byte) (int, error) {
	n, err := codec.DecodeLen(raw)
	if err != nil {
		return 0, err
	}
	if n != len(raw) {
		return 0, &codec.Error{Rule: codec.RuleTrailingBytes, Offset: int64(n), Message: "raw record holds more than one item"}
	}
	return w.write(raw)
}

func (w *Writer) write(data []byte) (int, error) {
	n, err := w.w.Write(data)
	w.offset += int64(n)
	if err != nil {
		return n, err
	}
	if n != len(data) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Reader yields the records of a sequence.
//
// A Reader owns its source and cursor and must not be shared between
// goroutines. Independent Readers over copies of the same bytes may run
// concurrently.
type Reader struct {
	dec *codec.Decoder
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: codec.NewDecoder(r)}
}

// SetMaxRecordSize caps the encoded size of a single record.
func (r *Reader) SetMaxRecordSize(n int) {
	r.dec.MaxRecordSize = n
}

// Offset returns the absolute offset of the next record.
func (r *Reader) Offset() int64 {
	return r.dec.Offset()
}

// Next returns the next record, or io.EOF at the end of the sequence.
//
// A bad record yields a *codec.Error. If the returned Record carries Raw, the
// record could still be measured (see codec.Rule.Framed) and the cursor has
// already moved past it. Otherwise the cursor is unchanged and the caller
// either stops or calls Resync.
func (r *Reader) Next() (Record, error) {
	off := r.dec.Offset()
	v, raw, err := r.dec.DecodeRaw()
	rec := Record{Offset: off, Raw: raw}
	if err != nil {
		return rec, err
	}
	rec.Value = v
	rec.Kind = Classify(v)
	return rec, nil
}

// Resync skips one byte so scanning can continue after an unframed error.
func (r *Reader) Resync() error {
	return r.dec.Skip()
}

// All reads the rest of the sequence, skipping bad records.
//
// It returns every good record and one error per bad region: a framed
// violation costs exactly its own record, an unframed one is resynchronised
// byte by byte and reported once. Reading stops at the end of the sequence or
// on the first error that is not a *codec.Error.
func (r *Reader) All() ([]Record, []error) {
	var recs []Record
	var errs []error
	resyncing := false
	for {
		rec, err := r.Next()
		if err == nil {
			recs = append(recs, rec)
			resyncing = false
			continue
		}
		if errors.Is(err, io.EOF) {
			return recs, errs
		}
		var ce *codec.Error
		if !errors.As(err, &ce) {
			return recs, append(errs, err)
		}
		if rec.Raw != nil {
			errs = append(errs, err)
			resyncing = false
			continue
		}
		if !resyncing {
			errs = append(errs, err)
			resyncing = true
		}
		if err := r.Resync(); err != nil {
			if !errors.Is(err, io.EOF) {
				errs = append(errs, err)
			}
			return recs, errs
		}
	}
}
