package codec

import (
	"encoding/json"
	"testing"
)

func TestFromAny(t *testing.T) {
	type custom struct{ X int }

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Nil()},
		{"int", 42, Int(42)},
		{"uint8", uint8(200), Int(200)},
		{"float32", float32(0.5), Float(0.5)},
		{"string", "x", String("x")},
		{"slice", []any{1, "a", true}, Array(Int(1), String("a"), Bool(true))},
		{"typed slice", []string{"a", "b"}, Array(String("a"), String("b"))},
		{"map", map[string]any{"k": 1.5}, Map(map[string]Value{"k": Float(1.5)})},
		{"typed map", map[string]int{"k": 3}, Map(map[string]Value{"k": Int(3)})},
		{"int keys", map[int]string{1: "a"}, Nil()},
		{"struct", custom{X: 1}, Nil()},
		{"func", func() {}, Nil()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromAny(tc.in); !Equal(got, tc.want) {
				t.Errorf("FromAny(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestValueJSON(t *testing.T) {
	v := Map(map[string]Value{
		"score": Int(10),
		"tags":  Array(String("a")),
		"none":  Nil(),
	})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	want := `{"none":null,"score":10,"tags":["a"]}`
	if string(data) != want {
		t.Errorf("json.Marshal = %s, want %s", data, want)
	}
}
