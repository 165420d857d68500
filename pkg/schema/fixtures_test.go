package schema

import (
	"github.com/vango-dev/roomsync/pkg/codec"
)

const (
	stateType  = 0
	playerType = 1
)

// testSchema is a room with a map of players, each with a name and score.
func testSchema() *Schema {
	return &Schema{
		RootType: stateType,
		Types: TypeTable{
			stateType: {ID: stateType, Fields: map[int]FieldDef{
				0: {Index: 0, Name: "players", Type: TypeMap, ReferencedType: playerType},
			}},
			playerType: {ID: playerType, Fields: map[int]FieldDef{
				0: {Index: 0, Name: "name", Type: codec.PrimString, ReferencedType: -1},
				1: {Index: 1, Name: "score", Type: codec.PrimNumber, ReferencedType: -1},
			}},
		},
	}
}

// richSchema adds primitive collections, a polymorphic child and a
// self-reference to testSchema.
func richSchema() *Schema {
	s := testSchema()
	s.Types[stateType].Fields[1] = FieldDef{Index: 1, Name: "round", Type: codec.PrimUint8, ReferencedType: -1}
	s.Types[stateType].Fields[2] = FieldDef{Index: 2, Name: "log", Type: TypeArray, ReferencedType: -1, ChildPrimitive: codec.PrimString}
	s.Types[stateType].Fields[3] = FieldDef{Index: 3, Name: "flags", Type: TypeMap, ReferencedType: -1, ChildPrimitive: codec.PrimBoolean}
	s.Types[stateType].Fields[4] = FieldDef{Index: 4, Name: "leader", Type: TypeRef, ReferencedType: playerType}
	s.Types[stateType].Fields[5] = FieldDef{Index: 5, Name: "self", Type: TypeRef, ReferencedType: stateType}
	s.Types[stateType].Fields[6] = FieldDef{Index: 6, Name: "queue", Type: TypeArray, ReferencedType: playerType}
	s.Types[2] = &TypeDef{ID: 2, Fields: map[int]FieldDef{
		0: {Index: 0, Name: "name", Type: codec.PrimString, ReferencedType: -1},
		1: {Index: 1, Name: "level", Type: codec.PrimInt16, ReferencedType: -1},
	}}
	return s
}

// twoPlayers encodes a full state with p1 (score 10) and p2 (score 5).
// Refs: 0 root, 1 players map, 2 p1, 3 p2.
func twoPlayers() []byte {
	return NewEncoder().
		SetRef(0, 1, -1).
		Switch(1).
		MapPutRef(0, "p1", 2, -1).
		MapPutRef(1, "p2", 3, -1).
		Switch(2).
		Set(0, codec.PrimString, codec.String("ada")).
		Set(1, codec.PrimNumber, codec.Int(10)).
		Switch(3).
		Set(0, codec.PrimString, codec.String("bob")).
		Set(1, codec.PrimNumber, codec.Int(5)).
		Bytes()
}

func score(s codec.Value, player string) (int64, bool) {
	players, _ := s.Get("players")
	p, ok := players.Get(player)
	if !ok {
		return 0, false
	}
	v, _ := p.Get("score")
	return v.Int()
}
