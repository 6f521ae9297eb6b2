// Package codec implements the canonical binary encoding used by every SZDT
// record.
//
// The encoding is CBOR (RFC 8949) restricted to the Core Deterministic profile:
//
//   - integers and lengths use the shortest head for their value
//   - containers are definite-length only
//   - map keys are text strings, unique, and sorted bytewise by their own
//     encoding
//   - no tags, no floating point, and only the simple values false, true and
//     null
//
// Every logical value therefore has exactly one valid encoding, which is what
// makes digests over encoded bytes stable across implementations.
//
// Decoded values use a fixed set of Go types (see Value). Decoding is strict:
// any input that is not the canonical encoding of its value is rejected with a
// *Error whose Rule names the violated constraint.
//
// For buffers:
//
//	data, err := codec.Marshal(value)
//	v, n, err := codec.Decode(data)
//
// For streams of concatenated records:
//
//	dec := codec.NewDecoder(r)
//	for {
//		v, err := dec.Decode()
//		...
//	}
package codec
