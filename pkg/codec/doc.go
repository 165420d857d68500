// Package codec implements the compact tagged-byte value encoding used by
// room messages, and the primitive readers used by the schema state stream.
//
// # Values
//
// A Value is a closed sum over the shapes the wire format can carry:
//
//	Nil, Bool, Int, Uint, Float, String, Bytes, Array, Map
//
// Integers decode to Int whenever they fit in an int64; Uint only appears for
// unsigned values above math.MaxInt64. Map keys are always strings.
//
// # Self-contained encoding
//
// Encode and Decode use the MessagePack subset below, with multi-byte
// lengths and numbers in big-endian order:
//
//	0x00-0x7f positive fixint     0xe0-0xff negative fixint
//	0x80-0x8f fixmap              0x90-0x9f fixarray
//	0xa0-0xbf fixstr              0xc0 nil, 0xc2 false, 0xc3 true
//	0xc4-0xc6 bin 8/16/32         0xca float32, 0xcb float64
//	0xcc-0xcf uint 8/16/32/64     0xd0-0xd3 int 8/16/32/64
//	0xd9-0xdb str 8/16/32         0xdc-0xdd array 16/32
//	0xde-0xdf map 16/32
//
// Decoding never fails: truncated input yields a neutral value (0, "",
// empty) and the returned offset is clamped to the buffer length, so callers
// that loop until no progress is made always terminate.
//
// # State-stream primitives
//
// The schema state stream embeds numbers and strings with the same tags but
// little-endian payloads. ReadVarint, ReadNumber, ReadWireString and
// ReadPrimitive read that form; the Append* functions write it.
package codec
