package catalog

import (
	"bytes"
	"encoding/binary"
)

// FloatsToBytes encodes v as little-endian float32 values. A nil or empty
// vector encodes to nil.
func FloatsToBytes(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, f)
	return buf.Bytes()
}

// BytesToFloats decodes little-endian float32 values. Trailing bytes that do
// not form a whole value are ignored.
func BytesToFloats(b []byte) []float64 {
	n := len(b) / 4
	if n == 0 {
		return nil
	}
	f := make([]float32, n)
	_ = binary.Read(bytes.NewReader(b[:n*4]), binary.LittleEndian, &f)
	out := make([]float64, n)
	for i, x := range f {
		out[i] = float64(x)
	}
	return out
}
