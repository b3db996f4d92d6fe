package layout

import (
	"reflect"
	"testing"
)

func TestWrap(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello world", 20, []string{"hello world"}},
		{"exact", "hello world", 11, []string{"hello world"}},
		{"split", "hello world", 10, []string{"hello", "world"}},
		{"collapse spaces", "a  b\t\tc\nd", 3, []string{"a b", "c d"}},
		{"long word kept whole", "a verylongword b", 4, []string{"a", "verylongword", "b"}},
		{"zero width", "x y", 0, []string{"x", "y"}},
		{"blank", "   ", 5, nil},
		{"cjk runes", "你好 世界 再见", 5, []string{"你好 世界", "再见"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Wrap(tc.text, tc.width)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Wrap(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
			}
		})
	}
}

func TestWrapChars(t *testing.T) {
	if got := wrapChars("abcdefghij", 50, 100); got != 5 {
		t.Fatalf("wrapChars = %d, want 5", got)
	}
	if got := wrapChars("abc", 1, 300); got != 1 {
		t.Fatalf("wrapChars should clamp to 1, got %d", got)
	}
}
