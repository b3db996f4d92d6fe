package binding

import (
	"strings"
	"testing"
)

func TestInterpolate(t *testing.T) {
	data := map[string]any{
		"post": map[string]any{
			"id":   "42_7",
			"text": "hello",
			"tags": []any{"a", "b"},
		},
		"env": map[string]string{"USER": "bot"},
	}
	cases := []struct {
		in, want string
	}{
		{"New post ${post.id}", "New post 42_7"},
		{"${post.text} by ${env.USER}", "hello by bot"},
		{"${ post.tags[1] }", "b"},
		{"${post.missing}", "${post.missing}"},
		{"${post.missing|n/a}", "n/a"},
		{"${post.missing|}", ""},
		{"$${post.id}", "${post.id}"},
		{"${post.tags[9]}", "${post.tags[9]}"},
		{"${post.tags[x]}", "${post.tags[x]}"},
	}
	for _, tc := range cases {
		if got := Interpolate(tc.in, data); got != tc.want {
			t.Fatalf("Interpolate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInterpolateNilData(t *testing.T) {
	if got := Interpolate("keep ${a.b}", nil); got != "keep ${a.b}" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestExpandStrict(t *testing.T) {
	data := map[string]any{"a": "1"}
	if got, err := Expand("x=${a}", data); err != nil || got != "x=1" {
		t.Fatalf("Expand = %q, %v", got, err)
	}
	_, err := Expand("${a} ${b} ${c|ok}", data)
	if err == nil || !strings.Contains(err.Error(), "b") || strings.Contains(err.Error(), "c") {
		t.Fatalf("expected error naming only b, got %v", err)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("LOGICFEED_TEST_VAR", "v=1")
	if got := Interpolate("${env.LOGICFEED_TEST_VAR}", Env()); got != "v=1" {
		t.Fatalf("env lookup = %q", got)
	}
}
