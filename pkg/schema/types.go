package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vango-dev/roomsync/pkg/codec"
)

// Stream markers.
const (
	// SwitchToStructure precedes a var-int ref id and makes that ref current.
	SwitchToStructure byte = 0xff

	// TypeIDMarker precedes a var-int type id when a child ref is
	// polymorphic.
	TypeIDMarker byte = 0xd5
)

// Operation bytes.
const (
	OpReplace       byte = 0
	OpClear         byte = 10
	OpReverse       byte = 15
	OpDeleteByRefID byte = 33
	OpDelete        byte = 64
	OpAdd           byte = 128
	OpAddByRefID    byte = 129
	OpDeleteAndAdd  byte = 192
)

// Field type names for non-primitive fields.
const (
	TypeRef   = "ref"
	TypeMap   = "map"
	TypeArray = "array"
)

// isAdd reports whether op carries the ADD bit.
func isAdd(op byte) bool { return op&OpAdd == OpAdd }

// isDelete reports whether op carries the DELETE bit.
func isDelete(op byte) bool { return op&OpDelete == OpDelete }

// FieldKind classifies a field definition.
type FieldKind uint8

const (
	FieldPrimitive FieldKind = iota
	FieldRef
	FieldMap
	FieldArray
	FieldUnknown
)

// String returns the kind name.
func (k FieldKind) String() string {
	switch k {
	case FieldPrimitive:
		return "Primitive"
	case FieldRef:
		return "Ref"
	case FieldMap:
		return "Map"
	case FieldArray:
		return "Array"
	default:
		return "Unknown"
	}
}

// FieldDef describes one indexed field of a type.
type FieldDef struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`

	// Type is "ref", "map", "array" or a primitive name.
	Type string `json:"type" yaml:"type"`

	// ReferencedType is the child type id for ref fields and for
	// collections of structures. -1 when unset.
	ReferencedType int `json:"referencedType" yaml:"referencedType"`

	// ChildPrimitive is the element primitive for collections of
	// primitives, taken from a type string such as "array:string".
	ChildPrimitive string `json:"childPrimitive,omitempty" yaml:"childPrimitive,omitempty"`
}

// NewFieldDef builds a field from a wire type string. A string such as
// "map:number" is split into the container type and ChildPrimitive.
func NewFieldDef(index int, name, typ string, referencedType int) FieldDef {
	f := FieldDef{Index: index, Name: name, Type: typ, ReferencedType: referencedType}
	if kind, child, ok := strings.Cut(typ, ":"); ok {
		f.Type = kind
		f.ChildPrimitive = child
	}
	return f
}

// Kind classifies the field.
func (f FieldDef) Kind() FieldKind {
	switch f.Type {
	case TypeRef:
		return FieldRef
	case TypeMap:
		return FieldMap
	case TypeArray:
		return FieldArray
	}
	if codec.IsPrimitive(f.Type) {
		return FieldPrimitive
	}
	return FieldUnknown
}

// TypeString renders the wire type string, including any ":child" suffix.
func (f FieldDef) TypeString() string {
	if f.ChildPrimitive != "" {
		return f.Type + ":" + f.ChildPrimitive
	}
	return f.Type
}

// TypeDef is one numbered type.
type TypeDef struct {
	ID     int              `json:"id" yaml:"id"`
	Fields map[int]FieldDef `json:"fields" yaml:"fields"`
}

// Field returns the field with the given index.
func (t *TypeDef) Field(index int) (FieldDef, bool) {
	f, ok := t.Fields[index]
	return f, ok
}

// SortedFields returns the fields ordered by index.
func (t *TypeDef) SortedFields() []FieldDef {
	out := make([]FieldDef, 0, len(t.Fields))
	for _, f := range t.Fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// TypeTable maps type ids to definitions.
type TypeTable map[int]*TypeDef

// IDs returns the type ids in ascending order.
func (tt TypeTable) IDs() []int {
	ids := make([]int, 0, len(tt))
	for id := range tt {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Schema is the result of a handshake. It is immutable once built.
type Schema struct {
	Types    TypeTable `json:"types" yaml:"types"`
	RootType int       `json:"rootType" yaml:"rootType"`
}

// Validate checks that the root type exists.
func (s *Schema) Validate() error {
	if s == nil || len(s.Types) == 0 {
		return ErrNoTypes
	}
	if _, ok := s.Types[s.RootType]; !ok {
		return fmt.Errorf("%w: root type %d", ErrUnknownRootType, s.RootType)
	}
	return nil
}

// Element describes what a collection holds: structures of TypeID when
// TypeID >= 0, otherwise values of Primitive.
type Element struct {
	TypeID    int
	Primitive string
}

// elementOf resolves the element kind of a map or array field.
func (tt TypeTable) elementOf(f FieldDef) Element {
	if f.ReferencedType >= 0 {
		if _, ok := tt[f.ReferencedType]; ok {
			return Element{TypeID: f.ReferencedType}
		}
	}
	return Element{TypeID: -1, Primitive: f.ChildPrimitive}
}
