package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// This file defines unit-safe lengths used by the configuration DSL and CLI flags.
// Layout itself works in pixels only.

// Unit represents the original unit of a length value.
type Unit int

const (
	UnitNone Unit = iota // bare numbers, treated as pixels
	UnitPX               // pixels
	UnitPT               // points (1pt = 96/72 px)
	UnitMM               // millimeters (1in = 25.4mm = 96px)
)

// Conversion constants between pt and mm. The canvas renderer maps one pixel
// to one canvas millimeter, so font sizes cross that boundary with these.
const (
	PtToMm = 0.352777
	MmToPt = 1.0 / PtToMm

	pxPerPt = 96.0 / 72.0
	pxPerMm = 96.0 / 25.4
)

// UnitToString returns a short string for a Unit value.
func UnitToString(u Unit) string {
	switch u {
	case UnitPX:
		return "px"
	case UnitPT:
		return "pt"
	case UnitMM:
		return "mm"
	default:
		return ""
	}
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// PX converts the length to pixels.
func (l Length) PX() float64 {
	switch l.Unit {
	case UnitPT:
		return l.Value * pxPerPt
	case UnitMM:
		return l.Value * pxPerMm
	default:
		return l.Value
	}
}

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + UnitToString(l.Unit)
}

// ParseLength parses strings such as "24", "24px", "18pt" or "6mm".
func ParseLength(value string) (Length, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, fmt.Errorf("长度值为空")
	}
	unit := UnitNone
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"px", UnitPX}, {"pt", UnitPT}, {"mm", UnitMM}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, fmt.Errorf("长度值 %q 无法解析: %w", value, err)
	}
	if f < 0 {
		return Length{}, fmt.Errorf("长度值 %q 不能为负数", value)
	}
	return Length{Value: f, Unit: unit}, nil
}

// ParsePX is a shorthand for ParseLength(value).PX().
func ParsePX(value string) (float64, error) {
	l, err := ParseLength(value)
	if err != nil {
		return 0, err
	}
	return l.PX(), nil
}
