package codec

import "math"

// MaxDepth limits nesting of arrays and maps during Decode. Deeper input
// decodes as Nil and consumes the rest of the buffer.
const MaxDepth = 128

// Decode reads one value starting at off and returns it with the offset of
// the next unread byte. It never panics: truncated input yields a neutral
// value with the offset clamped to len(buf), and unknown tags decode as Nil
// after their payload (when the length is known) is skipped.
func Decode(buf []byte, off int) (Value, int) {
	if off < 0 {
		off = 0
	}
	d := decoder{buf: buf}
	return d.value(off, 0)
}

// Unmarshal decodes the first value in data.
func Unmarshal(data []byte) Value {
	v, _ := Decode(data, 0)
	return v
}

type decoder struct {
	buf []byte
}

// need reports whether n bytes are available at off.
func (d *decoder) need(off, n int) bool {
	return n >= 0 && off <= len(d.buf) && len(d.buf)-off >= n
}

func (d *decoder) be(off, size int) (uint64, int, bool) {
	if !d.need(off, size) {
		return 0, len(d.buf), false
	}
	var v uint64
	for i := 0; i < size; i++ {
		v = v<<8 | uint64(d.buf[off+i])
	}
	return v, off + size, true
}

func (d *decoder) value(off, depth int) (Value, int) {
	if off >= len(d.buf) {
		return Nil(), len(d.buf)
	}
	tag := d.buf[off]
	off++

	switch {
	case tag <= 0x7f:
		return Int(int64(tag)), off
	case tag >= 0xe0:
		return Int(int64(int8(tag))), off
	case tag >= 0xa0 && tag <= 0xbf:
		return d.str(off, int(tag&0x1f))
	case tag >= 0x90 && tag <= 0x9f:
		return d.array(off, int(tag&0x0f), depth)
	case tag >= 0x80 && tag <= 0x8f:
		return d.mapping(off, int(tag&0x0f), depth)
	}

	switch tag {
	case 0xc0:
		return Nil(), off
	case 0xc2:
		return Bool(false), off
	case 0xc3:
		return Bool(true), off
	case 0xc4, 0xc5, 0xc6:
		n, next, ok := d.be(off, 1<<(tag-0xc4))
		if !ok {
			return Bytes(nil), next
		}
		if !d.need(next, int(n)) {
			return Bytes(nil), len(d.buf)
		}
		out := make([]byte, n)
		copy(out, d.buf[next:next+int(n)])
		return Bytes(out), next + int(n)
	case 0xca:
		bits, next, ok := d.be(off, 4)
		if !ok {
			return Float(0), next
		}
		return Float(float64(math.Float32frombits(uint32(bits)))), next
	case 0xcb:
		bits, next, ok := d.be(off, 8)
		if !ok {
			return Float(0), next
		}
		return Float(math.Float64frombits(bits)), next
	case 0xcc, 0xcd, 0xce, 0xcf:
		u, next, ok := d.be(off, 1<<(tag-0xcc))
		if !ok {
			return Int(0), next
		}
		return Uint(u), next
	case 0xd0:
		u, next, ok := d.be(off, 1)
		if !ok {
			return Int(0), next
		}
		return Int(int64(int8(u))), next
	case 0xd1:
		u, next, ok := d.be(off, 2)
		if !ok {
			return Int(0), next
		}
		return Int(int64(int16(u))), next
	case 0xd2:
		u, next, ok := d.be(off, 4)
		if !ok {
			return Int(0), next
		}
		return Int(int64(int32(u))), next
	case 0xd3:
		u, next, ok := d.be(off, 8)
		if !ok {
			return Int(0), next
		}
		return Int(int64(u)), next
	case 0xd9, 0xda, 0xdb:
		n, next, ok := d.be(off, 1<<(tag-0xd9))
		if !ok {
			return String(""), next
		}
		return d.str(next, int(n))
	case 0xdc, 0xdd:
		n, next, ok := d.be(off, 2<<(tag-0xdc))
		if !ok {
			return Array(), next
		}
		return d.array(next, int(n), depth)
	case 0xde, 0xdf:
		n, next, ok := d.be(off, 2<<(tag-0xde))
		if !ok {
			return Map(nil), next
		}
		return d.mapping(next, int(n), depth)
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8:
		// fixext: one type byte plus 1, 2, 4, 8 or 16 data bytes.
		size := 1 + 1<<(tag-0xd4)
		if !d.need(off, size) {
			return Nil(), len(d.buf)
		}
		return Nil(), off + size
	case 0xc7, 0xc8, 0xc9:
		n, next, ok := d.be(off, 1<<(tag-0xc7))
		if !ok || !d.need(next, int(n)+1) {
			return Nil(), len(d.buf)
		}
		return Nil(), next + 1 + int(n)
	}
	// 0xc1 is never used.
	return Nil(), off
}

func (d *decoder) str(off, n int) (Value, int) {
	if !d.need(off, n) {
		return String(""), len(d.buf)
	}
	return String(string(d.buf[off : off+n])), off + n
}

func (d *decoder) array(off, n, depth int) (Value, int) {
	if depth >= MaxDepth {
		return Nil(), len(d.buf)
	}
	// Every element takes at least one byte; never preallocate beyond that.
	items := make([]Value, 0, min(n, len(d.buf)-off))
	for i := 0; i < n && off < len(d.buf); i++ {
		var v Value
		v, off = d.value(off, depth+1)
		items = append(items, v)
	}
	return Array(items...), off
}

func (d *decoder) mapping(off, n, depth int) (Value, int) {
	if depth >= MaxDepth {
		return Nil(), len(d.buf)
	}
	m := make(map[string]Value, min(n, (len(d.buf)-off)/2))
	for i := 0; i < n && off < len(d.buf); i++ {
		var k, v Value
		k, off = d.value(off, depth+1)
		v, off = d.value(off, depth+1)
		switch k.kind {
		case KindString, KindInt, KindUint, KindFloat, KindBool:
			m[k.Text()] = v
		}
	}
	return Map(m), off
}
