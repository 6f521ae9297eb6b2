package codec

import (
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Media types for SZDT records.
const (
	MemoContentType     = "application/vnd.szdt.memo+cbor"
	ManifestContentType = "application/vnd.szdt.manifest+cbor"
	ArchiveContentType  = "application/vnd.szdt.szdt+cbor-seq"
	ArchiveExtension    = ".szdt"
)

// Value is a decoded canonical value. It is always one of:
//
//	nil, bool, uint64, int64 (negative only), []byte, string,
//	[]any, map[string]any
//
// Non-negative integers always decode as uint64 and negative integers as
// int64, so decode(encode(v)) == v holds for values built from these types.
type Value = any

// encMode is Core Deterministic Encoding (RFC 8949 §4.2): bytewise-sorted map
// keys, shortest integer heads, definite lengths.
var encMode cbor.EncMode

// decMode materialises items that already passed the strict scanner. Its own
// restrictions mirror the scanner so a direct call can never be more lenient.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// A nil body is an empty byte string, never CBOR null.
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encOptions.TagsMd = cbor.TagsForbidden
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		TagsMd:          cbor.TagsForbidden,
		MaxNestedLevels: 2 * MaxDepth,
		// The scanner bounds items by input size, not element count.
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
		IntDec:           cbor.IntDecConvertNone,
		// Only text keys are canonical, so any-typed targets get
		// map[string]any rather than map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal returns the canonical encoding of v.
//
// v may be a Value or any Go type that fxamacker/cbor can encode (structs with
// cbor tags, types implementing cbor.Marshaler). The output is re-checked
// against the canonical rules, so floats, tags and non-text map keys fail with
// RuleUnsupportedType or RuleNonTextMapKey.
func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, &Error{Rule: RuleUnsupportedType, Message: err.Error(), Cause: err}
	}
	if _, err := DecodeLen(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode decodes the first canonical item in data.
//
// It returns the value and the number of bytes the item occupies. When the
// item violates a rule that still allows measuring it (Rule.Framed), n is the
// item length and err is a *Error; otherwise n is 0.
func Decode(data []byte) (v Value, n int, err error) {
	n, err = DecodeLen(data)
	if err != nil {
		return nil, n, err
	}
	if err := decMode.Unmarshal(data[:n], &v); err != nil {
		return nil, n, &Error{Rule: RuleUnsupportedType, Message: err.Error(), Cause: err}
	}
	return v, n, nil
}

// DecodeLen validates the first item in data and returns its length without
// materialising it.
func DecodeLen(data []byte) (int, error) {
	return scan(data, 0)
}

// DecodeAll decodes data, which must hold exactly one canonical item.
func DecodeAll(data []byte) (Value, error) {
	v, n, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, &Error{Rule: RuleTrailingBytes, Offset: int64(n), Message: "extraneous data after item"}
	}
	return v, nil
}

// Unmarshal decodes data, which must hold exactly one canonical item, into v.
func Unmarshal(data []byte, v any) error {
	n, err := DecodeLen(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return &Error{Rule: RuleTrailingBytes, Offset: int64(n), Message: "extraneous data after item"}
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return &Error{Rule: RuleUnsupportedType, Message: err.Error(), Cause: err}
	}
	return nil
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the first
// item in data along with the remaining bytes.
func Diagnose(data []byte) (string, []byte, error) {
	return cbor.DiagnoseFirst(data)
}
