package schema

import (
	"slices"
	"strconv"

	"github.com/vango-dev/roomsync/pkg/codec"
)

// maxArrayGap bounds how far past the end an array index may point before
// the operation is treated as a mismatch instead of being padded.
const maxArrayGap = 1 << 16

// Result summarizes one Apply call.
type Result struct {
	// Ops is the number of operations applied successfully.
	Ops int

	// Switches counts accepted SWITCH markers.
	Switches int

	// Mismatches counts operations that did not fit the schema and
	// triggered a resync.
	Mismatches int

	// UnknownRefs counts SWITCH markers naming a ref that does not exist.
	UnknownRefs int

	// Stalled is set when the loop stopped because an iteration made no
	// progress.
	Stalled bool

	// FirstMismatch is the offset of the first mismatch, or -1.
	FirstMismatch int
}

// Apply decodes one operation stream against types, mutating arena in
// place. The current ref starts at the root. Apply never fails: operations
// that do not match the schema are counted in the Result and decoding
// resumes at the next switch marker.
func Apply(data []byte, types TypeTable, arena *Arena) Result {
	p := applier{data: data, types: types, arena: arena, res: Result{FirstMismatch: -1}}
	p.run()
	return p.res
}

type applier struct {
	data  []byte
	off   int
	cur   int
	types TypeTable
	arena *Arena
	res   Result
}

func (p *applier) run() {
	for p.off < len(p.data) {
		start := p.off

		if p.data[p.off] == SwitchToStructure {
			p.off++
			id := p.varint()
			if _, ok := p.arena.Get(id); !ok {
				p.res.UnknownRefs++
				p.resync()
				continue
			}
			p.cur = id
			p.res.Switches++
			continue
		}

		ref, ok := p.arena.Get(p.cur)
		if !ok {
			p.res.Stalled = true
			return
		}

		var applied bool
		switch ref.Kind {
		case RefStructure:
			applied = p.structureOp(ref)
		case RefMap:
			applied = p.mapOp(ref)
		case RefArray:
			applied = p.arrayOp(ref)
		}
		if applied {
			p.res.Ops++
		} else {
			if p.res.FirstMismatch < 0 {
				p.res.FirstMismatch = start
			}
			p.res.Mismatches++
			p.resync()
		}

		if p.off <= start {
			p.res.Stalled = true
			return
		}
	}
}

// resync advances to the next 0xFF byte followed by a positive fixint, or
// to the end of the stream.
func (p *applier) resync() {
	for i := p.off; i < len(p.data); i++ {
		if p.data[i] == SwitchToStructure && i+1 < len(p.data) && p.data[i+1] < 0x80 {
			p.off = i
			return
		}
	}
	p.off = len(p.data)
}

func (p *applier) varint() int {
	v, next := codec.ReadVarint(p.data, p.off)
	p.off = next
	return int(v)
}

func (p *applier) byteAt() (byte, bool) {
	if p.off >= len(p.data) {
		return 0, false
	}
	b := p.data[p.off]
	p.off++
	return b, true
}

// typeMarker reads an optional polymorphic type id, returning def when the
// marker is absent.
func (p *applier) typeMarker(def int) int {
	if p.off < len(p.data) && p.data[p.off] == TypeIDMarker {
		p.off++
		return p.varint()
	}
	return def
}

func (p *applier) primitive(name string) (codec.Value, bool) {
	v, next, ok := codec.ReadPrimitive(name, p.data, p.off)
	if !ok {
		return codec.Nil(), false
	}
	p.off = next
	return v, true
}

func (p *applier) structureOp(ref *Ref) bool {
	b, _ := p.byteAt()
	op := b & 0xc0
	index := int(b)
	if op != 0 {
		index = int(b & 0x3f)
	}

	td, ok := p.types[ref.TypeID]
	if !ok {
		return false
	}
	field, ok := td.Field(index)
	if !ok {
		return false
	}

	if op == OpDelete {
		delete(ref.Fields, field.Name)
		return true
	}

	switch field.Kind() {
	case FieldPrimitive:
		v, ok := p.primitive(field.Type)
		if !ok {
			return false
		}
		ref.Fields[field.Name] = ValueSlot(v)
	case FieldRef:
		child := p.varint()
		typeID := p.typeMarker(field.ReferencedType)
		p.arena.ensureStructure(child, typeID)
		ref.Fields[field.Name] = RefSlot(child)
	case FieldMap:
		child := p.varint()
		p.arena.ensureCollection(child, RefMap, p.types.elementOf(field))
		ref.Fields[field.Name] = RefSlot(child)
	case FieldArray:
		child := p.varint()
		p.arena.ensureCollection(child, RefArray, p.types.elementOf(field))
		ref.Fields[field.Name] = RefSlot(child)
	default:
		return false
	}
	return true
}

// element reads one collection value: a child structure ref when the
// collection holds structures, a primitive otherwise.
func (p *applier) element(elem Element, op byte) (Slot, bool) {
	if elem.TypeID >= 0 {
		child := p.varint()
		typeID := elem.TypeID
		if isAdd(op) {
			typeID = p.typeMarker(typeID)
		}
		p.arena.ensureStructure(child, typeID)
		return RefSlot(child), true
	}
	if elem.Primitive == "" {
		return Slot{}, false
	}
	v, ok := p.primitive(elem.Primitive)
	if !ok {
		return Slot{}, false
	}
	return ValueSlot(v), true
}

func (p *applier) mapOp(ref *Ref) bool {
	op, _ := p.byteAt()
	if op == OpClear {
		clear(ref.Fields)
		clear(ref.Keys)
		return true
	}

	index := p.varint()
	var key string
	if isAdd(op) {
		var next int
		key, next = codec.ReadWireString(p.data, p.off)
		p.off = next
		ref.Keys[index] = key
	} else if k, ok := ref.Keys[index]; ok {
		key = k
	} else {
		key = strconv.Itoa(index)
	}

	if op == OpDelete {
		delete(ref.Fields, key)
		delete(ref.Keys, index)
		return true
	}

	slot, ok := p.element(ref.Elem, op)
	if !ok {
		return false
	}
	ref.Fields[key] = slot
	return true
}

func (p *applier) arrayOp(ref *Ref) bool {
	op, _ := p.byteAt()
	switch op {
	case OpClear:
		ref.Items = ref.Items[:0]
		return true
	case OpReverse:
		slices.Reverse(ref.Items)
		return true
	case OpDeleteByRefID:
		id := p.varint()
		for i, s := range ref.Items {
			if s.IsRef && s.Ref == id {
				ref.Items = slices.Delete(ref.Items, i, i+1)
				break
			}
		}
		return true
	case OpAddByRefID:
		id := p.varint()
		if _, ok := p.arena.Get(id); !ok {
			return false
		}
		ref.Items = append(ref.Items, RefSlot(id))
		return true
	}

	index := p.varint()
	if index < 0 || index > len(ref.Items)+maxArrayGap {
		return false
	}

	if op == OpDelete {
		if index < len(ref.Items) {
			ref.Items = slices.Delete(ref.Items, index, index+1)
		}
		return true
	}

	slot, ok := p.element(ref.Elem, op)
	if !ok {
		return false
	}

	switch {
	case index >= len(ref.Items):
		for len(ref.Items) < index {
			ref.Items = append(ref.Items, ValueSlot(codec.Nil()))
		}
		ref.Items = append(ref.Items, slot)
	case isAdd(op) && !isDelete(op):
		ref.Items = slices.Insert(ref.Items, index, slot)
	default:
		ref.Items[index] = slot
	}
	return true
}
