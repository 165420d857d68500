package codec

import "math"

// Primitive names understood by ReadPrimitive and AppendPrimitive.
const (
	PrimString  = "string"
	PrimNumber  = "number"
	PrimBoolean = "boolean"
	PrimInt8    = "int8"
	PrimUint8   = "uint8"
	PrimInt16   = "int16"
	PrimUint16  = "uint16"
	PrimInt32   = "int32"
	PrimUint32  = "uint32"
	PrimInt64   = "int64"
	PrimUint64  = "uint64"
	PrimFloat32 = "float32"
	PrimFloat64 = "float64"
)

// IsPrimitive reports whether name is a primitive type name.
func IsPrimitive(name string) bool {
	_, ok := primitiveWidth(name)
	return ok
}

// primitiveWidth returns the fixed byte width of a primitive, or 0 for the
// variable-width string and number forms.
func primitiveWidth(name string) (int, bool) {
	switch name {
	case PrimString, PrimNumber:
		return 0, true
	case PrimBoolean, PrimInt8, PrimUint8:
		return 1, true
	case PrimInt16, PrimUint16:
		return 2, true
	case PrimInt32, PrimUint32, PrimFloat32:
		return 4, true
	case PrimInt64, PrimUint64, PrimFloat64, "bigint64", "biguint64":
		return 8, true
	}
	return 0, false
}

// le reads size bytes at off in little-endian order. On short input it
// returns 0 and len(buf).
func le(buf []byte, off, size int) (uint64, int, bool) {
	if off < 0 || off > len(buf) || len(buf)-off < size {
		return 0, len(buf), false
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[off+i])
	}
	return v, off + size, true
}

func appendLE(buf []byte, v uint64, size int) []byte {
	for i := 0; i < size; i++ {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

// ReadVarint reads a state-stream integer at off. Bytes below 0x80 are the
// value itself, 0xe0-0xff are negative fixints, and the explicit-width tags
// carry little-endian payloads. Float tags are truncated toward zero.
// Undefined tags consume one byte and yield 0.
func ReadVarint(buf []byte, off int) (int64, int) {
	if off < 0 || off >= len(buf) {
		return 0, len(buf)
	}
	p := buf[off]
	off++
	switch {
	case p < 0x80:
		return int64(p), off
	case p >= 0xe0:
		return int64(p) - 256, off
	}
	switch p {
	case 0xcc, 0xcd, 0xce, 0xcf:
		u, next, _ := le(buf, off, 1<<(p-0xcc))
		return int64(u), next
	case 0xd0:
		u, next, _ := le(buf, off, 1)
		return int64(int8(u)), next
	case 0xd1:
		u, next, _ := le(buf, off, 2)
		return int64(int16(u)), next
	case 0xd2:
		u, next, _ := le(buf, off, 4)
		return int64(int32(u)), next
	case 0xd3:
		u, next, _ := le(buf, off, 8)
		return int64(u), next
	case 0xca:
		u, next, _ := le(buf, off, 4)
		return int64(math.Float32frombits(uint32(u))), next
	case 0xcb:
		u, next, _ := le(buf, off, 8)
		return int64(math.Float64frombits(u)), next
	}
	return 0, off
}

// ReadNumber reads a state-stream "number": the ReadVarint encodings, except
// that float tags produce a Float instead of being truncated.
func ReadNumber(buf []byte, off int) (Value, int) {
	if off >= 0 && off < len(buf) {
		switch buf[off] {
		case 0xca:
			u, next, _ := le(buf, off+1, 4)
			return Float(float64(math.Float32frombits(uint32(u)))), next
		case 0xcb:
			u, next, _ := le(buf, off+1, 8)
			return Float(math.Float64frombits(u)), next
		case 0xcf:
			u, next, _ := le(buf, off+1, 8)
			return Uint(u), next
		}
	}
	i, next := ReadVarint(buf, off)
	return Int(i), next
}

// ReadWireString reads a state-stream string. Any prefix below 0xc0 is a
// fixstr whose length is the low five bits; 0xd9-0xdb carry 8, 16 or 32-bit
// little-endian lengths. Other prefixes read as "".
func ReadWireString(buf []byte, off int) (string, int) {
	if off < 0 || off >= len(buf) {
		return "", len(buf)
	}
	p := buf[off]
	off++
	var n int
	switch {
	case p < 0xc0:
		n = int(p & 0x1f)
	case p == 0xd9 || p == 0xda || p == 0xdb:
		u, next, ok := le(buf, off, 1<<(p-0xd9))
		if !ok {
			return "", next
		}
		n, off = int(u), next
	default:
		return "", off
	}
	if n < 0 || len(buf)-off < n {
		return "", len(buf)
	}
	return string(buf[off : off+n]), off + n
}

// ReadPrimitive reads a value of the named primitive type. ok is false when
// the name is not a primitive; in that case nothing is consumed.
func ReadPrimitive(name string, buf []byte, off int) (v Value, next int, ok bool) {
	width, known := primitiveWidth(name)
	if !known {
		return Nil(), off, false
	}
	switch name {
	case PrimString:
		s, n := ReadWireString(buf, off)
		return String(s), n, true
	case PrimNumber:
		num, n := ReadNumber(buf, off)
		return num, n, true
	}

	u, next, _ := le(buf, off, width)
	switch name {
	case PrimBoolean:
		return Bool(u != 0), next, true
	case PrimInt8:
		return Int(int64(int8(u))), next, true
	case PrimInt16:
		return Int(int64(int16(u))), next, true
	case PrimInt32:
		return Int(int64(int32(u))), next, true
	case PrimInt64, "bigint64":
		return Int(int64(u)), next, true
	case PrimUint64, "biguint64":
		return Uint(u), next, true
	case PrimFloat32:
		return Float(float64(math.Float32frombits(uint32(u)))), next, true
	case PrimFloat64:
		return Float(math.Float64frombits(u)), next, true
	}
	// uint8, uint16, uint32
	return Int(int64(u)), next, true
}

// AppendVarint appends i in the ReadVarint encoding, using the smallest form.
func AppendVarint(buf []byte, i int64) []byte {
	switch {
	case i >= 0 && i <= 0x7f:
		return append(buf, byte(i))
	case i < 0 && i >= -32:
		return append(buf, byte(int8(i)))
	case i >= 0 && i <= math.MaxUint8:
		return append(buf, 0xcc, byte(i))
	case i >= 0 && i <= math.MaxUint16:
		return appendLE(append(buf, 0xcd), uint64(i), 2)
	case i >= 0 && i <= math.MaxUint32:
		return appendLE(append(buf, 0xce), uint64(i), 4)
	case i >= 0:
		return appendLE(append(buf, 0xcf), uint64(i), 8)
	case i >= math.MinInt8:
		return append(buf, 0xd0, byte(int8(i)))
	case i >= math.MinInt16:
		return appendLE(append(buf, 0xd1), uint64(uint16(int16(i))), 2)
	case i >= math.MinInt32:
		return appendLE(append(buf, 0xd2), uint64(uint32(int32(i))), 4)
	}
	return appendLE(append(buf, 0xd3), uint64(i), 8)
}

// AppendNumber appends v in the ReadNumber encoding. Non-numeric values are
// written as 0.
func AppendNumber(buf []byte, v Value) []byte {
	switch v.kind {
	case KindInt:
		return AppendVarint(buf, v.i)
	case KindUint:
		return appendLE(append(buf, 0xcf), v.u, 8)
	case KindFloat:
		return appendLE(append(buf, 0xcb), math.Float64bits(v.f), 8)
	}
	return append(buf, 0)
}

// AppendWireString appends s in the ReadWireString encoding.
func AppendWireString(buf []byte, s string) []byte {
	n := len(s)
	switch {
	case n < 32:
		buf = append(buf, 0xa0|byte(n))
	case n <= math.MaxUint8:
		buf = append(buf, 0xd9, byte(n))
	case n <= math.MaxUint16:
		buf = appendLE(append(buf, 0xda), uint64(n), 2)
	default:
		buf = appendLE(append(buf, 0xdb), uint64(n), 4)
	}
	return append(buf, s...)
}

// AppendPrimitive appends v as the named primitive. ok is false when the
// name is not a primitive.
func AppendPrimitive(buf []byte, name string, v Value) ([]byte, bool) {
	width, known := primitiveWidth(name)
	if !known {
		return buf, false
	}
	switch name {
	case PrimString:
		s, _ := v.Str()
		return AppendWireString(buf, s), true
	case PrimNumber:
		return AppendNumber(buf, v), true
	case PrimBoolean:
		b, _ := v.Bool()
		if b {
			return append(buf, 1), true
		}
		return append(buf, 0), true
	case PrimFloat32:
		f, _ := v.Float()
		return appendLE(buf, uint64(math.Float32bits(float32(f))), 4), true
	case PrimFloat64:
		f, _ := v.Float()
		return appendLE(buf, math.Float64bits(f), 8), true
	case PrimUint64, "biguint64":
		u, _ := v.Uint()
		return appendLE(buf, u, 8), true
	}
	i, _ := v.Int()
	return appendLE(buf, uint64(i), width), true
}
