package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vango-dev/roomsync/pkg/codec"
)

func TestHandshakeFormatsAgree(t *testing.T) {
	want := testSchema()

	legacy, format, err := ParseHandshake(EncodeLegacyHandshake(want))
	if err != nil {
		t.Fatalf("ParseHandshake(legacy) error: %v", err)
	}
	if format != FormatLegacy {
		t.Errorf("legacy format = %v, want %v", format, FormatLegacy)
	}

	refl, format, err := ParseHandshake(EncodeReflectionHandshake(want))
	if err != nil {
		t.Fatalf("ParseHandshake(reflection) error: %v", err)
	}
	if format != FormatReflection {
		t.Errorf("reflection format = %v, want %v", format, FormatReflection)
	}

	if !reflect.DeepEqual(legacy, refl) {
		t.Errorf("legacy and reflection schemas differ:\nlegacy:     %+v\nreflection: %+v", legacy, refl)
	}
	if !reflect.DeepEqual(legacy, want) {
		t.Errorf("legacy schema = %+v, want %+v", legacy, want)
	}
}

func TestHandshakeChildPrimitive(t *testing.T) {
	s := &Schema{RootType: 0, Types: TypeTable{
		0: {ID: 0, Fields: map[int]FieldDef{
			0: {Index: 0, Name: "log", Type: TypeArray, ReferencedType: -1, ChildPrimitive: codec.PrimString},
			1: {Index: 1, Name: "tick", Type: codec.PrimUint32, ReferencedType: -1},
		}},
	}}

	for name, data := range map[string][]byte{
		"legacy":     EncodeLegacyHandshake(s),
		"reflection": EncodeReflectionHandshake(s),
	} {
		t.Run(name, func(t *testing.T) {
			got, _, err := ParseHandshake(data)
			if err != nil {
				t.Fatalf("ParseHandshake error: %v", err)
			}
			if !reflect.DeepEqual(got, s) {
				t.Errorf("ParseHandshake = %+v, want %+v", got, s)
			}
		})
	}
}

func TestParseHandshakeEmpty(t *testing.T) {
	if _, _, err := ParseHandshake(nil); !errors.Is(err, ErrEmptyHandshake) {
		t.Errorf("ParseHandshake(nil) error = %v, want ErrEmptyHandshake", err)
	}
}

func TestParseLegacyRejects(t *testing.T) {
	valid := EncodeLegacyHandshake(testSchema())

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{0}},
		{"zero types", []byte{0, 0}},
		{"too many types", []byte{0, 50}},
		{"too many fields", []byte{0, 1, 0, 100}},
		{"truncated field", []byte{0, 1, 0, 1}},
		{"empty name", []byte{0, 1, 0, 1, 0, 0xa0, 0xa3, 'm', 'a', 'p'}},
		{"missing reference byte", []byte{0, 1, 0, 1, 0, 0xa1, 'p', 0xa3, 'r', 'e', 'f'}},
		{"trailing garbage", append(append([]byte{}, valid...), make([]byte, 11)...)},
		{"unknown root", append([]byte{7}, valid[1:]...)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if s, err := ParseLegacyHandshake(tc.data); err == nil {
				t.Errorf("ParseLegacyHandshake accepted %x as %+v", tc.data, s)
			}
		})
	}
}

func TestParseLegacyAllowsSmallTrailer(t *testing.T) {
	data := append(EncodeLegacyHandshake(testSchema()), make([]byte, 10)...)
	if _, err := ParseLegacyHandshake(data); err != nil {
		t.Errorf("ParseLegacyHandshake with 10 trailing bytes: %v", err)
	}
}

func TestLegacyNoReference(t *testing.T) {
	s := &Schema{RootType: 0, Types: TypeTable{
		0: {ID: 0, Fields: map[int]FieldDef{
			0: {Index: 0, Name: "tags", Type: TypeMap, ReferencedType: -1},
		}},
	}}
	got, err := ParseLegacyHandshake(EncodeLegacyHandshake(s))
	if err != nil {
		t.Fatalf("ParseLegacyHandshake error: %v", err)
	}
	if f := got.Types[0].Fields[0]; f.ReferencedType != -1 {
		t.Errorf("ReferencedType = %d, want -1", f.ReferencedType)
	}
}

func TestReflectionInheritance(t *testing.T) {
	data := NewEncoder().
		SetRef(0, 1, -1).
		Set(1, codec.PrimNumber, codec.Int(2)).
		Switch(1).
		PushRef(OpAdd, 0, 2).
		PushRef(OpAdd, 1, 3).
		Switch(2).
		Set(0, codec.PrimNumber, codec.Int(1)).
		SetRef(2, 4, -1).
		Switch(3).
		Set(0, codec.PrimNumber, codec.Int(2)).
		Set(1, codec.PrimNumber, codec.Int(1)).
		SetRef(2, 5, -1).
		Switch(4).
		PushRef(OpAdd, 0, 6).
		Switch(5).
		PushRef(OpAdd, 0, 7).
		Switch(6).
		Set(0, codec.PrimString, codec.String("x")).
		Set(1, codec.PrimString, codec.String("number")).
		Switch(7).
		Set(0, codec.PrimString, codec.String("y")).
		Set(1, codec.PrimString, codec.String("string")).
		Bytes()

	s, format, err := ParseHandshake(data)
	if err != nil {
		t.Fatalf("ParseHandshake error: %v", err)
	}
	if format != FormatReflection {
		t.Fatalf("format = %v, want reflection", format)
	}
	if s.RootType != 2 {
		t.Errorf("RootType = %d, want 2", s.RootType)
	}

	child := s.Types[2]
	if child == nil || len(child.Fields) != 2 {
		t.Fatalf("type 2 = %+v, want 2 fields", child)
	}
	if f := child.Fields[0]; f.Name != "x" {
		t.Errorf("type 2 field 0 = %q, want inherited %q", f.Name, "x")
	}
	if f := child.Fields[1]; f.Name != "y" || f.Index != 1 {
		t.Errorf("type 2 field 1 = %+v, want y at index 1", f)
	}
	if base := s.Types[1]; len(base.Fields) != 1 {
		t.Errorf("type 1 has %d fields, want 1", len(base.Fields))
	}
}

func TestParseReflectionNoTypes(t *testing.T) {
	data := NewEncoder().Set(1, codec.PrimNumber, codec.Int(0)).Bytes()
	if _, err := ParseReflectionHandshake(data); !errors.Is(err, ErrNoTypes) {
		t.Errorf("ParseReflectionHandshake error = %v, want ErrNoTypes", err)
	}
}
