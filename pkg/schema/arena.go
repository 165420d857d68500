package schema

import (
	"sort"

	"github.com/vango-dev/roomsync/pkg/codec"
)

// RootRef is the id of the root structure.
const RootRef = 0

// RefKind identifies the container held by a ref.
type RefKind uint8

const (
	RefStructure RefKind = iota
	RefMap
	RefArray
)

// String returns the kind name.
func (k RefKind) String() string {
	switch k {
	case RefStructure:
		return "Structure"
	case RefMap:
		return "Map"
	case RefArray:
		return "Array"
	default:
		return "Unknown"
	}
}

// Slot holds either a primitive value or a reference to another ref.
type Slot struct {
	Value codec.Value
	Ref   int
	IsRef bool
}

// ValueSlot wraps a primitive value.
func ValueSlot(v codec.Value) Slot { return Slot{Value: v} }

// RefSlot wraps a child ref id.
func RefSlot(id int) Slot { return Slot{Ref: id, IsRef: true} }

// Ref is one node of the state graph. Children are referenced by id, never
// by pointer, so shared and cyclic references stay representable.
type Ref struct {
	ID   int
	Kind RefKind

	// TypeID is the schema type of a structure; -1 for collections.
	TypeID int

	// Elem is what a map or array holds.
	Elem Element

	// Fields holds structure fields by name and map entries by key.
	Fields map[string]Slot

	// Keys maps map entry indexes to their string keys.
	Keys map[int]string

	// Items holds array elements in order.
	Items []Slot
}

func newStructure(id, typeID int) *Ref {
	return &Ref{ID: id, Kind: RefStructure, TypeID: typeID, Fields: make(map[string]Slot)}
}

func newCollection(id int, kind RefKind, elem Element) *Ref {
	r := &Ref{ID: id, Kind: kind, TypeID: -1, Elem: elem}
	if kind == RefMap {
		r.Fields = make(map[string]Slot)
		r.Keys = make(map[int]string)
	}
	return r
}

// Arena owns every ref of one connection's state graph.
type Arena struct {
	refs map[int]*Ref
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{refs: make(map[int]*Ref)}
}

// Reset drops every ref and installs an empty root structure of rootType.
func (a *Arena) Reset(rootType int) {
	a.refs = map[int]*Ref{RootRef: newStructure(RootRef, rootType)}
}

// Get returns the ref with the given id.
func (a *Arena) Get(id int) (*Ref, bool) {
	r, ok := a.refs[id]
	return r, ok
}

// Len returns the number of refs.
func (a *Arena) Len() int {
	return len(a.refs)
}

// IDs returns every ref id in ascending order.
func (a *Arena) IDs() []int {
	ids := make([]int, 0, len(a.refs))
	for id := range a.refs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ensureStructure returns the structure with id, creating it when absent.
func (a *Arena) ensureStructure(id, typeID int) *Ref {
	if r, ok := a.refs[id]; ok {
		return r
	}
	r := newStructure(id, typeID)
	a.refs[id] = r
	return r
}

// ensureCollection returns the collection with id, creating it when absent.
func (a *Arena) ensureCollection(id int, kind RefKind, elem Element) *Ref {
	if r, ok := a.refs[id]; ok {
		return r
	}
	r := newCollection(id, kind, elem)
	a.refs[id] = r
	return r
}

// Plain converts the subtree rooted at id into plain data: structures and
// maps become codec maps, arrays become codec arrays. Shared refs are
// expanded at every place they appear; a ref that is already on the
// current path converts to Nil.
func (a *Arena) Plain(id int) codec.Value {
	return a.plain(id, make(map[int]bool), 0)
}

func (a *Arena) plain(id int, path map[int]bool, depth int) codec.Value {
	r, ok := a.refs[id]
	if !ok || path[id] || depth >= codec.MaxDepth {
		return codec.Nil()
	}
	path[id] = true
	defer delete(path, id)

	slot := func(s Slot) codec.Value {
		if s.IsRef {
			return a.plain(s.Ref, path, depth+1)
		}
		return s.Value
	}

	switch r.Kind {
	case RefArray:
		items := make([]codec.Value, len(r.Items))
		for i, s := range r.Items {
			items[i] = slot(s)
		}
		return codec.Array(items...)
	default:
		m := make(map[string]codec.Value, len(r.Fields))
		for k, s := range r.Fields {
			m[k] = slot(s)
		}
		return codec.Map(m)
	}
}
