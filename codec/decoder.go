package codec

import (
	"errors"
	"io"
)

const (
	readAhead = 4 << 10
	maxChunk  = 1 << 20

	// DefaultMaxRecordSize bounds how much a stream Decoder buffers for a
	// single item.
	DefaultMaxRecordSize = 1 << 30
)

// Decoder reads concatenated canonical items from a stream.
//
// It owns a cursor into the stream: Offset reports the absolute position of
// the next unread byte. A Decoder must not be shared between goroutines.
type Decoder struct {
	r      io.Reader
	buf    []byte // pulled from r but not yet consumed
	offset int64

	// MaxRecordSize caps the encoded size of one item. Zero means
	// DefaultMaxRecordSize.
	MaxRecordSize int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Offset returns the absolute offset of the next item.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Next returns the raw bytes of the next item.
//
// At a clean item boundary with no more input it returns io.EOF. If the item
// violates a framed rule, its bytes are returned together with the *Error and
// the cursor moves past it. For unframed failures (truncation, malformed
// heads) the cursor does not move; call Skip to resynchronise.
func (d *Decoder) Next() ([]byte, error) {
	if len(d.buf) == 0 {
		data, err := d.more(d.buf, 1)
		d.buf = data
		if len(d.buf) == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
	}

	s := &scanner{data: d.buf, base: d.offset, more: d.more}
	n, err := s.run()
	d.buf = s.data
	if n == 0 {
		return nil, err
	}
	raw := make([]byte, n)
	copy(raw, d.buf[:n])
	d.consume(n)
	return raw, err
}

// Decode returns the next item as a Value. Errors follow Next.
func (d *Decoder) Decode() (Value, error) {
	v, _, err := d.DecodeRaw()
	return v, err
}

// DecodeRaw is Decode that also returns the item's bytes. On a framed
// violation the bytes are returned alongside the error.
func (d *Decoder) DecodeRaw() (Value, []byte, error) {
	raw, err := d.Next()
	if err != nil {
		return nil, raw, err
	}
	var v Value
	if err := decMode.Unmarshal(raw, &v); err != nil {
		return nil, raw, &Error{Rule: RuleUnsupportedType, Offset: d.offset - int64(len(raw)), Message: err.Error(), Cause: err}
	}
	return v, raw, nil
}

// Skip discards one byte at the cursor. It returns io.EOF if the stream is
// exhausted.
func (d *Decoder) Skip() error {
	if len(d.buf) == 0 {
		data, err := d.more(d.buf, 1)
		d.buf = data
		if len(d.buf) == 0 {
			if err == nil {
				err = io.EOF
			}
			return err
		}
	}
	d.consume(1)
	return nil
}

func (d *Decoder) consume(n int) {
	d.offset += int64(n)
	// Copy the read-ahead tail so a large record is not kept alive.
	d.buf = append([]byte(nil), d.buf[n:]...)
}

func (d *Decoder) more(data []byte, n int) ([]byte, error) {
	limit := d.MaxRecordSize
	if limit <= 0 {
		limit = DefaultMaxRecordSize
	}
	if len(data)+n > limit {
		return data, &Error{
			Rule:    RuleRecordTooLarge,
			Offset:  d.offset,
			Message: "item exceeds maximum record size",
		}
	}
	for n > 0 {
		step := n
		if step < readAhead {
			step = readAhead
		}
		if step > maxChunk {
			step = maxChunk
		}
		if room := limit - len(data); step > room {
			step = room
		}
		atLeast := n
		if atLeast > step {
			atLeast = step
		}
		start := len(data)
		data = append(data, make([]byte, step)...)
		m, err := io.ReadAtLeast(d.r, data[start:], atLeast)
		data = data[:start+m]
		n -= m
		if err != nil {
			return data, err
		}
	}
	return data, nil
}
