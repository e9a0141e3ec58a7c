package jsonscan

import (
	"reflect"
	"testing"
)

func TestFindValidAndUnterminated(t *testing.T) {
	t.Parallel()
	got := Find(`{"a":1} and some {bad json`)
	if len(got) != 1 {
		t.Fatalf("len(Find) = %d, want 1: %+v", len(got), got)
	}
	if got[0].Start != 0 || got[0].End != 7 {
		t.Fatalf("match range = [%d,%d), want [0,7)", got[0].Start, got[0].End)
	}
	want := map[string]any{"a": float64(1)}
	if !reflect.DeepEqual(got[0].Value, want) {
		t.Fatalf("match value = %#v, want %#v", got[0].Value, want)
	}
}

func TestFindNoMatchesIsNil(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"", "plain text", "{not json}", `{"a`, "]["} {
		if got := Find(text); got != nil {
			t.Errorf("Find(%q) = %+v, want nil", text, got)
		}
	}
}

func TestFindRanges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want [][2]int
	}{
		{"nested inside invalid outer", `{x [1,2] y}`, [][2]int{{3, 8}}},
		{"structural chars inside strings", `{"k":"a}b]"}`, [][2]int{{0, 12}}},
		{"escaped quote", `{"k":"a\"}"} tail`, [][2]int{{0, 12}}},
		{"two values", `[1] then [2]`, [][2]int{{0, 3}, {9, 12}}},
		{"adjacent values", `{"a":1}[2]`, [][2]int{{0, 7}, {7, 10}}},
		{"byte offsets after multibyte text", `héllo {"k":true}`, [][2]int{{7, 17}}},
		{"trailing comma rejected, inner array kept", `{"a":[1],}`, [][2]int{{5, 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Find(tt.text)
			var ranges [][2]int
			for _, m := range got {
				ranges = append(ranges, [2]int{m.Start, m.End})
			}
			if !reflect.DeepEqual(ranges, tt.want) {
				t.Fatalf("Find(%q) ranges = %v, want %v", tt.text, ranges, tt.want)
			}
		})
	}
}

func TestFindValueTypes(t *testing.T) {
	t.Parallel()
	got := Find(`payload={"s":"x","n":2.5,"b":false,"z":null,"l":[true,"y"]}`)
	if len(got) != 1 {
		t.Fatalf("len(Find) = %d, want 1", len(got))
	}
	want := map[string]any{
		"s": "x",
		"n": 2.5,
		"b": false,
		"z": nil,
		"l": []any{true, "y"},
	}
	if !reflect.DeepEqual(got[0].Value, want) {
		t.Fatalf("value = %#v, want %#v", got[0].Value, want)
	}
}
