package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// MaxDepth is the deepest container nesting accepted by the decoder.
const MaxDepth = 32

const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorTag    = 6
	majorSimple = 7

	aiIndefinite = 31
	breakByte    = 0xff
)

// scanner measures one CBOR data item and checks it against the canonical
// rules in a single pass.
//
// Violations that do not prevent measuring the item are recorded in
// violation and scanning continues to the end of the item. Anything that
// makes the item boundary unknowable is returned immediately.
type scanner struct {
	data []byte
	pos  int
	base int64

	// more extends data by at least n bytes. nil for fixed buffers.
	more func(data []byte, n int) ([]byte, error)

	violation *Error
}

// scan returns the length of the first item in data.
func scan(data []byte, base int64) (int, error) {
	s := &scanner{data: data, base: base}
	return s.run()
}

func (s *scanner) run() (int, error) {
	start := s.pos
	if err := s.item(0); err != nil {
		return 0, err
	}
	if s.violation != nil {
		return s.pos - start, s.violation
	}
	return s.pos - start, nil
}

func (s *scanner) errorf(rule Rule, format string, args ...any) *Error {
	return &Error{Rule: rule, Offset: s.base + int64(s.pos), Message: fmt.Sprintf(format, args...)}
}

func (s *scanner) violate(rule Rule, format string, args ...any) {
	if s.violation == nil {
		s.violation = s.errorf(rule, format, args...)
	}
}

func (s *scanner) need(n uint64) error {
	avail := uint64(len(s.data) - s.pos)
	if avail >= n {
		return nil
	}
	if n > math.MaxInt32 && n > uint64(math.MaxInt-len(s.data)) {
		return s.errorf(RuleTruncated, "item length %d exceeds input", n)
	}
	if s.more == nil {
		return s.errorf(RuleTruncated, "need %d bytes, have %d", n, avail)
	}
	data, err := s.more(s.data, int(n-avail))
	s.data = data
	if uint64(len(s.data)-s.pos) >= n {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return s.errorf(RuleTruncated, "need %d bytes, have %d", n, len(s.data)-s.pos)
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return err
}

// head reads an initial byte and its argument, enforcing shortest form.
func (s *scanner) head() (major, ai byte, arg uint64, err error) {
	if err := s.need(1); err != nil {
		return 0, 0, 0, err
	}
	b := s.data[s.pos]
	s.pos++
	major, ai = b>>5, b&0x1f

	var floor uint64
	switch {
	case ai < 24:
		return major, ai, uint64(ai), nil
	case ai == 24:
		if err := s.need(1); err != nil {
			return 0, 0, 0, err
		}
		arg = uint64(s.data[s.pos])
		s.pos++
		floor = 24
	case ai == 25:
		if err := s.need(2); err != nil {
			return 0, 0, 0, err
		}
		arg = uint64(binary.BigEndian.Uint16(s.data[s.pos:]))
		s.pos += 2
		floor = 1 << 8
	case ai == 26:
		if err := s.need(4); err != nil {
			return 0, 0, 0, err
		}
		arg = uint64(binary.BigEndian.Uint32(s.data[s.pos:]))
		s.pos += 4
		floor = 1 << 16
	case ai == 27:
		if err := s.need(8); err != nil {
			return 0, 0, 0, err
		}
		arg = binary.BigEndian.Uint64(s.data[s.pos:])
		s.pos += 8
		floor = 1 << 32
	case ai == aiIndefinite:
		return major, ai, 0, nil
	default:
		return 0, 0, 0, s.errorf(RuleMalformed, "reserved additional information %d", ai)
	}

	// Floats (major 7, ai 25..27) carry a bit pattern, not a count.
	if major == majorSimple {
		return major, ai, arg, nil
	}
	if arg < floor {
		switch major {
		case majorUint, majorNegInt, majorTag:
			s.violate(RuleNonMinimalInteger, "integer %d not in shortest form", arg)
		default:
			s.violate(RuleNonMinimalLength, "length %d not in shortest form", arg)
		}
	}
	return major, ai, arg, nil
}

func (s *scanner) item(depth int) error {
	if depth > MaxDepth {
		return s.errorf(RuleNestingTooDeep, "nesting exceeds %d levels", MaxDepth)
	}
	major, ai, arg, err := s.head()
	if err != nil {
		return err
	}

	switch major {
	case majorUint:
		if ai == aiIndefinite {
			return s.errorf(RuleMalformed, "indefinite integer")
		}
		return nil

	case majorNegInt:
		if ai == aiIndefinite {
			return s.errorf(RuleMalformed, "indefinite integer")
		}
		if arg > math.MaxInt64 {
			s.violate(RuleUnsupportedType, "negative integer below int64 range")
		}
		return nil

	case majorBytes, majorText:
		if ai == aiIndefinite {
			s.violate(RuleIndefiniteLength, "indefinite-length string")
			return s.chunks(major)
		}
		if err := s.need(arg); err != nil {
			return err
		}
		if major == majorText && !utf8.Valid(s.data[s.pos:s.pos+int(arg)]) {
			s.violate(RuleInvalidUTF8, "text string is not valid UTF-8")
		}
		s.pos += int(arg)
		return nil

	case majorArray:
		if ai == aiIndefinite {
			s.violate(RuleIndefiniteLength, "indefinite-length array")
			for {
				done, err := s.atBreak()
				if err != nil || done {
					return err
				}
				if err := s.item(depth + 1); err != nil {
					return err
				}
			}
		}
		for i := uint64(0); i < arg; i++ {
			if err := s.item(depth + 1); err != nil {
				return err
			}
		}
		return nil

	case majorMap:
		if ai == aiIndefinite {
			s.violate(RuleIndefiniteLength, "indefinite-length map")
		}
		prevStart, prevEnd := -1, -1
		for i := uint64(0); ai == aiIndefinite || i < arg; i++ {
			if ai == aiIndefinite {
				done, err := s.atBreak()
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}
			keyStart := s.pos
			if err := s.need(1); err != nil {
				return err
			}
			if s.data[s.pos]>>5 != majorText {
				s.violate(RuleNonTextMapKey, "map key is not a text string")
			}
			if err := s.item(depth + 1); err != nil {
				return err
			}
			keyEnd := s.pos
			if prevStart >= 0 {
				switch c := bytes.Compare(s.data[prevStart:prevEnd], s.data[keyStart:keyEnd]); {
				case c == 0:
					s.violate(RuleDuplicateMapKey, "duplicate map key")
				case c > 0:
					s.violate(RuleUnsortedMapKeys, "map keys not in bytewise order")
				}
			}
			prevStart, prevEnd = keyStart, keyEnd
			if err := s.item(depth + 1); err != nil {
				return err
			}
		}
		return nil

	case majorTag:
		if ai == aiIndefinite {
			return s.errorf(RuleMalformed, "indefinite tag")
		}
		s.violate(RuleUnsupportedType, "tag %d not allowed", arg)
		return s.item(depth + 1)

	default: // majorSimple
		switch {
		case ai == 20, ai == 21, ai == 22:
			return nil
		case ai == 23 || ai < 20 || ai == 24:
			s.violate(RuleUnsupportedType, "simple value not allowed")
			return nil
		case ai >= 25 && ai <= 27:
			s.violate(RuleUnsupportedType, "floating point not allowed")
			return nil
		default:
			return s.errorf(RuleMalformed, "unexpected break")
		}
	}
}

// chunks consumes the definite-length chunks of an indefinite string.
func (s *scanner) chunks(major byte) error {
	for {
		done, err := s.atBreak()
		if err != nil || done {
			return err
		}
		m, ai, arg, err := s.head()
		if err != nil {
			return err
		}
		if m != major || ai == aiIndefinite {
			return s.errorf(RuleMalformed, "invalid chunk in indefinite string")
		}
		if err := s.need(arg); err != nil {
			return err
		}
		s.pos += int(arg)
	}
}

// atBreak consumes a break byte if one is next.
func (s *scanner) atBreak() (bool, error) {
	if err := s.need(1); err != nil {
		return false, err
	}
	if s.data[s.pos] == breakByte {
		s.pos++
		return true, nil
	}
	return false, nil
}

// EncodedBytesLen returns the size of the canonical encoding of a byte string
// holding n content bytes.
func EncodedBytesLen(n uint64) uint64 {
	switch {
	case n < 24:
		return 1 + n
	case n <= math.MaxUint8:
		return 2 + n
	case n <= math.MaxUint16:
		return 3 + n
	case n <= math.MaxUint32:
		return 5 + n
	default:
		return 9 + n
	}
}
