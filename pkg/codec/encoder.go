package codec

import (
	"math"
	"sort"
)

// Encoder appends encoded values to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Reset empties the encoder, reusing the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes. The slice is valid until the next Reset
// or Encode call.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Encode serializes a single value to a fresh byte slice.
func Encode(v Value) []byte {
	e := NewEncoder()
	e.Encode(v)
	return e.Bytes()
}

// Encode appends v using the smallest tag that can represent it.
// Map entries are written in sorted key order.
func (e *Encoder) Encode(v Value) {
	switch v.kind {
	case KindNil:
		e.buf = append(e.buf, 0xc0)
	case KindBool:
		if v.b {
			e.buf = append(e.buf, 0xc3)
		} else {
			e.buf = append(e.buf, 0xc2)
		}
	case KindInt:
		e.writeInt(v.i)
	case KindUint:
		e.buf = append(e.buf, 0xcf)
		e.buf = appendBE(e.buf, v.u, 8)
	case KindFloat:
		e.buf = append(e.buf, 0xcb)
		e.buf = appendBE(e.buf, math.Float64bits(v.f), 8)
	case KindString:
		e.writeStringHeader(len(v.s))
		e.buf = append(e.buf, v.s...)
	case KindBytes:
		n := len(v.raw)
		switch {
		case n <= 0xff:
			e.buf = append(e.buf, 0xc4, byte(n))
		case n <= 0xffff:
			e.buf = append(e.buf, 0xc5)
			e.buf = appendBE(e.buf, uint64(n), 2)
		default:
			e.buf = append(e.buf, 0xc6)
			e.buf = appendBE(e.buf, uint64(n), 4)
		}
		e.buf = append(e.buf, v.raw...)
	case KindArray:
		e.writeContainerHeader(len(v.arr), 0x90, 0xdc, 0xdd)
		for _, item := range v.arr {
			e.Encode(item)
		}
	case KindMap:
		e.writeContainerHeader(len(v.m), 0x80, 0xde, 0xdf)
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.writeStringHeader(len(k))
			e.buf = append(e.buf, k...)
			e.Encode(v.m[k])
		}
	default:
		e.buf = append(e.buf, 0xc0)
	}
}

func (e *Encoder) writeInt(i int64) {
	switch {
	case i >= 0 && i <= 0x7f:
		e.buf = append(e.buf, byte(i))
	case i < 0 && i >= -32:
		e.buf = append(e.buf, byte(int8(i)))
	case i >= 0 && i <= math.MaxUint8:
		e.buf = append(e.buf, 0xcc, byte(i))
	case i >= 0 && i <= math.MaxUint16:
		e.buf = append(e.buf, 0xcd)
		e.buf = appendBE(e.buf, uint64(i), 2)
	case i >= 0 && i <= math.MaxUint32:
		e.buf = append(e.buf, 0xce)
		e.buf = appendBE(e.buf, uint64(i), 4)
	case i >= 0:
		e.buf = append(e.buf, 0xcf)
		e.buf = appendBE(e.buf, uint64(i), 8)
	case i >= math.MinInt8:
		e.buf = append(e.buf, 0xd0, byte(int8(i)))
	case i >= math.MinInt16:
		e.buf = append(e.buf, 0xd1)
		e.buf = appendBE(e.buf, uint64(uint16(int16(i))), 2)
	case i >= math.MinInt32:
		e.buf = append(e.buf, 0xd2)
		e.buf = appendBE(e.buf, uint64(uint32(int32(i))), 4)
	default:
		e.buf = append(e.buf, 0xd3)
		e.buf = appendBE(e.buf, uint64(i), 8)
	}
}

func (e *Encoder) writeStringHeader(n int) {
	switch {
	case n < 32:
		e.buf = append(e.buf, 0xa0|byte(n))
	case n <= 0xff:
		e.buf = append(e.buf, 0xd9, byte(n))
	case n <= 0xffff:
		e.buf = append(e.buf, 0xda)
		e.buf = appendBE(e.buf, uint64(n), 2)
	default:
		e.buf = append(e.buf, 0xdb)
		e.buf = appendBE(e.buf, uint64(n), 4)
	}
}

func (e *Encoder) writeContainerHeader(n int, fix, tag16, tag32 byte) {
	switch {
	case n < 16:
		e.buf = append(e.buf, fix|byte(n))
	case n <= 0xffff:
		e.buf = append(e.buf, tag16)
		e.buf = appendBE(e.buf, uint64(n), 2)
	default:
		e.buf = append(e.buf, tag32)
		e.buf = appendBE(e.buf, uint64(n), 4)
	}
}

// appendBE appends the low size bytes of v in big-endian order.
func appendBE(buf []byte, v uint64, size int) []byte {
	for shift := (size - 1) * 8; shift >= 0; shift -= 8 {
		buf = append(buf, byte(v>>uint(shift)))
	}
	return buf
}
