package schema

import (
	"fmt"

	"github.com/vango-dev/roomsync/pkg/codec"
)

// Format identifies the handshake encoding that produced a Schema.
type Format uint8

const (
	FormatLegacy Format = iota + 1
	FormatReflection
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatReflection:
		return "reflection"
	default:
		return "unknown"
	}
}

// Legacy handshake sanity limits.
const (
	legacyMaxTypes  = 50
	legacyMaxFields = 100

	// legacySlack is how many trailing bytes a legacy parse may leave
	// unconsumed and still be accepted.
	legacySlack = 10

	// legacyNoReference marks an unset referenced type in the legacy form.
	legacyNoReference = 0xff
)

// Bootstrap type ids used by the self-describing handshake.
const (
	reflectionTypeID      = 0
	reflectionTypeTypeID  = 1
	reflectionFieldTypeID = 2
)

// bootstrapTypes describes the reflection meta-types. The self-describing
// handshake is itself a state stream decoded against this table.
func bootstrapTypes() TypeTable {
	return TypeTable{
		reflectionTypeID: {ID: reflectionTypeID, Fields: map[int]FieldDef{
			0: {Index: 0, Name: "types", Type: TypeArray, ReferencedType: reflectionTypeTypeID},
			1: {Index: 1, Name: "rootType", Type: codec.PrimNumber, ReferencedType: -1},
		}},
		reflectionTypeTypeID: {ID: reflectionTypeTypeID, Fields: map[int]FieldDef{
			0: {Index: 0, Name: "id", Type: codec.PrimNumber, ReferencedType: -1},
			1: {Index: 1, Name: "extendsId", Type: codec.PrimNumber, ReferencedType: -1},
			2: {Index: 2, Name: "fields", Type: TypeArray, ReferencedType: reflectionFieldTypeID},
		}},
		reflectionFieldTypeID: {ID: reflectionFieldTypeID, Fields: map[int]FieldDef{
			0: {Index: 0, Name: "name", Type: codec.PrimString, ReferencedType: -1},
			1: {Index: 1, Name: "type", Type: codec.PrimString, ReferencedType: -1},
			2: {Index: 2, Name: "referencedType", Type: codec.PrimNumber, ReferencedType: -1},
		}},
	}
}

// ParseHandshake builds a Schema from handshake bytes. The legacy compact
// form is tried first; if it is rejected the bytes are decoded as a
// self-describing reflection stream.
func ParseHandshake(data []byte) (*Schema, Format, error) {
	if len(data) == 0 {
		return nil, 0, ErrEmptyHandshake
	}
	if s, err := ParseLegacyHandshake(data); err == nil {
		return s, FormatLegacy, nil
	}
	s, err := ParseReflectionHandshake(data)
	if err != nil {
		return nil, 0, err
	}
	return s, FormatReflection, nil
}

// ParseLegacyHandshake parses the compact form:
//
//	rootType:u8 numTypes:u8
//	  { typeId:u8 numFields:u8
//	    { index:u8 name:str type:str [referencedType:u8 if ref/map/array] } }
//
// The parse is rejected unless every sanity check passes and it consumes
// all but at most a few trailing bytes.
func ParseLegacyHandshake(data []byte) (*Schema, error) {
	if len(data) < 2 {
		return nil, ErrInvalidHandshake
	}
	root := int(data[0])
	numTypes := int(data[1])
	if numTypes == 0 || numTypes >= legacyMaxTypes {
		return nil, fmt.Errorf("%w: %d types", ErrInvalidHandshake, numTypes)
	}

	off := 2
	types := make(TypeTable, numTypes)
	for i := 0; i < numTypes; i++ {
		if len(data)-off < 2 {
			return nil, ErrInvalidHandshake
		}
		id := int(data[off])
		numFields := int(data[off+1])
		off += 2
		if numFields >= legacyMaxFields {
			return nil, fmt.Errorf("%w: type %d has %d fields", ErrInvalidHandshake, id, numFields)
		}

		td := &TypeDef{ID: id, Fields: make(map[int]FieldDef, numFields)}
		for j := 0; j < numFields; j++ {
			if off >= len(data) {
				return nil, ErrInvalidHandshake
			}
			index := int(data[off])
			off++

			var name, typ string
			name, off = codec.ReadWireString(data, off)
			typ, off = codec.ReadWireString(data, off)
			if name == "" || typ == "" {
				return nil, fmt.Errorf("%w: type %d field %d", ErrInvalidHandshake, id, index)
			}

			f := NewFieldDef(index, name, typ, -1)
			switch f.Type {
			case TypeRef, TypeMap, TypeArray:
				if off >= len(data) {
					return nil, ErrInvalidHandshake
				}
				if b := data[off]; b != legacyNoReference {
					f.ReferencedType = int(b)
				}
				off++
			}
			td.Fields[index] = f
		}
		types[id] = td
	}

	if off < len(data)-legacySlack {
		return nil, fmt.Errorf("%w: %d of %d bytes consumed", ErrInvalidHandshake, off, len(data))
	}

	s := &Schema{Types: types, RootType: root}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseReflectionHandshake decodes the self-describing form: a state stream
// whose root is a Reflection structure listing every type and its fields.
func ParseReflectionHandshake(data []byte) (*Schema, error) {
	if len(data) == 0 {
		return nil, ErrEmptyHandshake
	}

	arena := NewArena()
	arena.Reset(reflectionTypeID)
	Apply(data, bootstrapTypes(), arena)

	root, _ := arena.Get(RootRef)
	typeRefs := reflectionTypeRefs(arena, root)
	if len(typeRefs) == 0 {
		return nil, ErrNoTypes
	}

	type rawType struct {
		id      int
		extends int
		fields  []FieldDef
	}
	raw := make(map[int]*rawType, len(typeRefs))
	order := make([]int, 0, len(typeRefs))
	for _, tr := range typeRefs {
		id, ok := slotInt(tr.Fields["id"])
		if !ok {
			continue
		}
		rt := &rawType{id: id, extends: -1}
		if ext, ok := tr.Fields["extendsId"]; ok {
			if v, ok := slotInt(ext); ok && v != id {
				rt.extends = v
			}
		}
		for _, fr := range arrayStructures(arena, tr.Fields["fields"]) {
			name, _ := fr.Fields["name"].Value.Str()
			typ, _ := fr.Fields["type"].Value.Str()
			refType := -1
			if v, ok := slotInt(fr.Fields["referencedType"]); ok {
				refType = v
			}
			rt.fields = append(rt.fields, NewFieldDef(0, name, typ, refType))
		}
		if _, dup := raw[id]; !dup {
			order = append(order, id)
		}
		raw[id] = rt
	}

	// Inherited fields come first; a type's own fields are numbered after
	// its parent's.
	types := make(TypeTable, len(raw))
	var resolve func(id int, visiting map[int]bool) *TypeDef
	resolve = func(id int, visiting map[int]bool) *TypeDef {
		if td, ok := types[id]; ok {
			return td
		}
		rt, ok := raw[id]
		if !ok || visiting[id] {
			return nil
		}
		visiting[id] = true

		td := &TypeDef{ID: id, Fields: make(map[int]FieldDef)}
		base := 0
		if rt.extends >= 0 {
			if parent := resolve(rt.extends, visiting); parent != nil {
				for i, f := range parent.Fields {
					td.Fields[i] = f
				}
				base = len(parent.Fields)
			}
		}
		for i, f := range rt.fields {
			f.Index = base + i
			td.Fields[f.Index] = f
		}
		types[id] = td
		return td
	}
	for _, id := range order {
		resolve(id, make(map[int]bool))
	}

	rootType := 0
	if v, ok := slotInt(root.Fields["rootType"]); ok {
		rootType = v
	}
	s := &Schema{Types: types, RootType: rootType}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// reflectionTypeRefs returns the ReflectionType structures listed by the
// root. When the root carries no types list, every array in the arena is
// scanned for structures with an "id" field.
func reflectionTypeRefs(arena *Arena, root *Ref) []*Ref {
	if root != nil {
		if refs := arrayStructures(arena, root.Fields["types"]); len(refs) > 0 {
			return refs
		}
	}
	var out []*Ref
	for _, id := range arena.IDs() {
		r, _ := arena.Get(id)
		if r.Kind != RefArray {
			continue
		}
		for _, s := range r.Items {
			if !s.IsRef {
				continue
			}
			item, ok := arena.Get(s.Ref)
			if !ok || item.Kind != RefStructure {
				continue
			}
			if _, hasID := item.Fields["id"]; hasID {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// arrayStructures resolves an array-valued slot into its structure items.
func arrayStructures(arena *Arena, s Slot) []*Ref {
	if !s.IsRef {
		return nil
	}
	arr, ok := arena.Get(s.Ref)
	if !ok || arr.Kind != RefArray {
		return nil
	}
	out := make([]*Ref, 0, len(arr.Items))
	for _, item := range arr.Items {
		if !item.IsRef {
			continue
		}
		if r, ok := arena.Get(item.Ref); ok && r.Kind == RefStructure {
			out = append(out, r)
		}
	}
	return out
}

func slotInt(s Slot) (int, bool) {
	if s.IsRef {
		return 0, false
	}
	if i, ok := s.Value.Int(); ok {
		return int(i), true
	}
	if f, ok := s.Value.Float(); ok {
		return int(f), true
	}
	return 0, false
}
