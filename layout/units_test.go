package layout

import (
	"math"
	"testing"
)

// TestPtMmRoundTrip 验证 pt↔mm 换算的往返精度（允许极小的浮点误差）。
func TestPtMmRoundTrip(t *testing.T) {
	samples := []float64{0, 0.001, 1, 12, 14.4, 72, 96, 144, 1000}
	for _, pt := range samples {
		mm := pt * PtToMm
		back := mm * MmToPt
		if diff := math.Abs(back - pt); diff > 1e-9 {
			t.Fatalf("pt→mm→pt 往返误差过大: in=%gpt mm=%g back=%g diff=%g", pt, mm, back, diff)
		}
	}
}

// TestParseLength 覆盖常见单位到像素的换算。
func TestParseLength(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"24", 24},
		{"24px", 24},
		{" 12PX ", 12},
		{"18pt", 24},
		{"25.4mm", 96},
	}
	for _, tc := range cases {
		got, err := ParsePX(tc.in)
		if err != nil {
			t.Fatalf("ParsePX(%q) error: %v", tc.in, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("ParsePX(%q) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestParseLengthRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "px", "abc", "-3px"} {
		if _, err := ParseLength(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestLengthString(t *testing.T) {
	l := Length{Value: 1.5, Unit: UnitPT}
	if got := l.String(); got != "1.5pt" {
		t.Fatalf("unexpected string: %s", got)
	}
}
