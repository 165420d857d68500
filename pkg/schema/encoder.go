package schema

import (
	"github.com/vango-dev/roomsync/pkg/codec"
)

// Encoder builds operation streams in the format Apply reads. It is used
// to produce fixtures and to serve state from test servers.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an empty stream encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 128)}
}

// Bytes returns the encoded stream.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Reset empties the encoder.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Raw appends bytes unchanged.
func (e *Encoder) Raw(b ...byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Switch makes ref the current ref.
func (e *Encoder) Switch(ref int) *Encoder {
	e.buf = append(e.buf, SwitchToStructure)
	e.buf = codec.AppendVarint(e.buf, int64(ref))
	return e
}

// fieldByte packs a structure operation and field index.
func fieldByte(op byte, index int) byte {
	if op == OpReplace {
		return byte(index)
	}
	return op | byte(index&0x3f)
}

// Set writes a primitive structure field.
func (e *Encoder) Set(index int, prim string, v codec.Value) *Encoder {
	e.buf = append(e.buf, fieldByte(OpAdd, index))
	e.buf, _ = codec.AppendPrimitive(e.buf, prim, v)
	return e
}

// SetRef points a ref, map or array field at child. A non-negative typeID
// writes the polymorphic type marker.
func (e *Encoder) SetRef(index, child, typeID int) *Encoder {
	e.buf = append(e.buf, fieldByte(OpAdd, index))
	e.buf = codec.AppendVarint(e.buf, int64(child))
	if typeID >= 0 {
		e.buf = append(e.buf, TypeIDMarker)
		e.buf = codec.AppendVarint(e.buf, int64(typeID))
	}
	return e
}

// Delete removes a structure field.
func (e *Encoder) Delete(index int) *Encoder {
	e.buf = append(e.buf, fieldByte(OpDelete, index))
	return e
}

// MapPut adds key at index with a primitive value.
func (e *Encoder) MapPut(index int, key, prim string, v codec.Value) *Encoder {
	e.buf = append(e.buf, OpAdd)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	e.buf = codec.AppendWireString(e.buf, key)
	e.buf, _ = codec.AppendPrimitive(e.buf, prim, v)
	return e
}

// MapPutRef adds key at index pointing at a child structure.
func (e *Encoder) MapPutRef(index int, key string, child, typeID int) *Encoder {
	e.buf = append(e.buf, OpAdd)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	e.buf = codec.AppendWireString(e.buf, key)
	e.buf = codec.AppendVarint(e.buf, int64(child))
	if typeID >= 0 {
		e.buf = append(e.buf, TypeIDMarker)
		e.buf = codec.AppendVarint(e.buf, int64(typeID))
	}
	return e
}

// MapReplace replaces the primitive value of an existing map index.
func (e *Encoder) MapReplace(index int, prim string, v codec.Value) *Encoder {
	e.buf = append(e.buf, OpReplace)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	e.buf, _ = codec.AppendPrimitive(e.buf, prim, v)
	return e
}

// MapDelete removes the entry at index.
func (e *Encoder) MapDelete(index int) *Encoder {
	e.buf = append(e.buf, OpDelete)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	return e
}

// Clear empties the current map or array.
func (e *Encoder) Clear() *Encoder {
	e.buf = append(e.buf, OpClear)
	return e
}

// Reverse reverses the current array.
func (e *Encoder) Reverse() *Encoder {
	e.buf = append(e.buf, OpReverse)
	return e
}

// Push adds a primitive array element at index with the given op.
func (e *Encoder) Push(op byte, index int, prim string, v codec.Value) *Encoder {
	e.buf = append(e.buf, op)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	e.buf, _ = codec.AppendPrimitive(e.buf, prim, v)
	return e
}

// PushRef adds a structure array element at index with the given op.
func (e *Encoder) PushRef(op byte, index, child int) *Encoder {
	e.buf = append(e.buf, op)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	e.buf = codec.AppendVarint(e.buf, int64(child))
	return e
}

// RemoveAt deletes the array element at index.
func (e *Encoder) RemoveAt(index int) *Encoder {
	e.buf = append(e.buf, OpDelete)
	e.buf = codec.AppendVarint(e.buf, int64(index))
	return e
}

// ByRefID writes OpAddByRefID or OpDeleteByRefID for child.
func (e *Encoder) ByRefID(op byte, child int) *Encoder {
	e.buf = append(e.buf, op)
	e.buf = codec.AppendVarint(e.buf, int64(child))
	return e
}

// EncodeLegacyHandshake renders s in the compact legacy form. Type ids,
// field indexes and referenced types must fit in a byte.
func EncodeLegacyHandshake(s *Schema) []byte {
	buf := []byte{byte(s.RootType), byte(len(s.Types))}
	for _, id := range s.Types.IDs() {
		td := s.Types[id]
		buf = append(buf, byte(id), byte(len(td.Fields)))
		for _, f := range td.SortedFields() {
			buf = append(buf, byte(f.Index))
			buf = codec.AppendWireString(buf, f.Name)
			buf = codec.AppendWireString(buf, f.TypeString())
			switch f.Type {
			case TypeRef, TypeMap, TypeArray:
				if f.ReferencedType >= 0 {
					buf = append(buf, byte(f.ReferencedType))
				} else {
					buf = append(buf, legacyNoReference)
				}
			}
		}
	}
	return buf
}

// EncodeReflectionHandshake renders s as a self-describing reflection
// stream. Fields are written flat, without inheritance, so field indexes
// must be contiguous from 0.
func EncodeReflectionHandshake(s *Schema) []byte {
	e := NewEncoder()
	const typesRef = 1
	next := typesRef + 1

	ids := s.Types.IDs()
	typeRefs := make([]int, len(ids))
	fieldsRefs := make([]int, len(ids))
	for i := range ids {
		typeRefs[i] = next
		fieldsRefs[i] = next + 1
		next += 2
	}

	e.SetRef(0, typesRef, -1)
	e.Set(1, codec.PrimNumber, codec.Int(int64(s.RootType)))

	e.Switch(typesRef)
	for i := range ids {
		e.PushRef(OpAdd, i, typeRefs[i])
	}

	for i, id := range ids {
		e.Switch(typeRefs[i])
		e.Set(0, codec.PrimNumber, codec.Int(int64(id)))
		e.SetRef(2, fieldsRefs[i], -1)
	}

	for i, id := range ids {
		fields := s.Types[id].SortedFields()
		fieldRefs := make([]int, len(fields))
		e.Switch(fieldsRefs[i])
		for j := range fields {
			fieldRefs[j] = next
			next++
			e.PushRef(OpAdd, j, fieldRefs[j])
		}
		for j, f := range fields {
			e.Switch(fieldRefs[j])
			e.Set(0, codec.PrimString, codec.String(f.Name))
			e.Set(1, codec.PrimString, codec.String(f.TypeString()))
			if f.ReferencedType >= 0 {
				e.Set(2, codec.PrimNumber, codec.Int(int64(f.ReferencedType)))
			}
		}
	}
	return e.Bytes()
}
