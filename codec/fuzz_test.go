package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func FuzzDecode(f *testing.F) {
	for _, seed := range []string{
		"\x01", "\x18\x05", "\xa2\x61\x61\x01\x61\x62\x02", "\x9f\x01\xff",
		"\x5f\x41\x01\xff", "\xc1\x01", "\xf9\x3c\x00", "\x62\xff\xfe", "\x1c",
	} {
		f.Add([]byte(seed))
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		v, n, err := Decode(data)
		if err != nil {
			var ce *Error
			require.True(t, errors.As(err, &ce), "error is %T, want *codec.Error", err)
			require.Equal(t, ce.Rule.Framed(), n > 0, "rule %s consumed %d", ce.Rule, n)
			return
		}
		out, err := Marshal(v)
		require.NoError(t, err, "re-encode accepted value")
		require.Equal(t, data[:n], out)
	})
}

func FuzzDecoder(f *testing.F) {
	f.Add([]byte("\x01\x1c\x02\x18\x05\x61\x78"))
	f.Fuzz(func(t *testing.T, data []byte) {
		dec := NewDecoder(bytes.NewReader(data))
		for steps := 0; steps <= len(data)+1; steps++ {
			before := dec.Offset()
			raw, err := dec.Next()
			if err == nil || raw != nil {
				continue
			}
			var ce *Error
			if !errors.As(err, &ce) {
				require.Equal(t, int64(len(data)), dec.Offset(), "stopped early: %v", err)
				return
			}
			require.Equal(t, before, dec.Offset(), "cursor moved on unframed error")
			require.NoError(t, dec.Skip())
		}
		t.Fatalf("decoder did not terminate")
	})
}
