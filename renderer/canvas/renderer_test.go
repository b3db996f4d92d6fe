package canvasrenderer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ByLCY/logicfeed/layout"
)

var bgColor = color.RGBA{R: 40, G: 90, B: 160, A: 255}

func newBackground(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bgColor}, image.Point{}, draw.Src)
	return img
}

func helloStyle() layout.Style {
	return layout.Style{
		Font:         layout.FontResource{Name: "Body", Src: "embed:gobold"},
		FontSize:     24,
		Fill:         layout.White,
		Outline:      layout.Black,
		OutlineWidth: 0,
		MarginBottom: 30,
	}
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	return img
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

// TestRenderHelloWorld 对应 400×200 背景、字号 24、底边距 30、无描边的场景。
func TestRenderHelloWorld(t *testing.T) {
	r := NewRenderer(".")
	style := helloStyle()
	res, out, err := r.RenderResult("Hello World", newBackground(400, 200), style)
	if err != nil {
		t.Fatalf("RenderResult error: %v", err)
	}
	if len(res.Lines) != 1 {
		t.Fatalf("expected exactly one line, got %d", len(res.Lines))
	}
	w, h, err := r.Measure("Hello World", style.Font, style.FontSize)
	if err != nil {
		t.Fatalf("Measure error: %v", err)
	}
	const eps = 1e-9
	if want := 200 - 30 - h - 0; math.Abs(res.TopY-want) > eps {
		t.Fatalf("top y = %g, want %g", res.TopY, want)
	}
	if want := (400 - w) / 2; math.Abs(res.Lines[0].X-want) > eps {
		t.Fatalf("x = %g, want %g", res.Lines[0].X, want)
	}
	if res.TopY < 0 || res.Lines[0].X < 0 {
		t.Fatalf("origin must be inside the image: %+v", res.Lines[0])
	}

	img := decode(t, out)
	if got := img.Bounds().Size(); got != (image.Point{X: 400, Y: 200}) {
		t.Fatalf("output size = %v, want 400x200", got)
	}
	// 文字区域外保持背景色，文字区域内至少有一个像素被改写。
	if !sameColor(img.At(0, 0), bgColor) {
		t.Fatalf("pixel outside text changed: %v", img.At(0, 0))
	}
	ln := res.Lines[0]
	changed := false
	for y := int(ln.Y); y < int(ln.Y+ln.Height) && !changed; y++ {
		for x := int(ln.X); x < int(ln.X+ln.Width); x++ {
			if !sameColor(img.At(x, y), bgColor) {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatalf("no text pixels found inside the line box")
	}
}

func TestRenderTooShort(t *testing.T) {
	r := NewRenderer(".")
	out, err := r.Render("Hello World", newBackground(400, 20), helloStyle())
	if !errors.Is(err, layout.ErrDoesNotFit) {
		t.Fatalf("expected ErrDoesNotFit, got %v", err)
	}
	if out != nil {
		t.Fatalf("no output expected on layout failure")
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	r := NewRenderer(".")
	bg := newBackground(320, 240)
	style := helloStyle()
	style.OutlineWidth = 2
	a, err := r.Render("same input twice", bg, style)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	b, err := r.Render("same input twice", bg, style)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("identical inputs produced different output")
	}
	if !sameColor(bg.At(160, 230), bgColor) {
		t.Fatalf("background image must not be modified")
	}
}

// TestRenderFitBoundary 断言：背景高度恰好够用时成功，矮一个像素时报告 LayoutError。
func TestRenderFitBoundary(t *testing.T) {
	r := NewRenderer(".")
	style := helloStyle()
	style.OutlineWidth = 3
	_, h, err := r.Measure("Hello", style.Font, style.FontSize)
	if err != nil {
		t.Fatalf("Measure error: %v", err)
	}
	height := int(math.Ceil(style.MarginBottom + h + style.OutlineWidth))

	if _, err := r.Render("Hello", newBackground(300, height), style); err != nil {
		t.Fatalf("height %d should fit: %v", height, err)
	}
	if _, err := r.Render("Hello", newBackground(300, height-1), style); !errors.Is(err, layout.ErrDoesNotFit) {
		t.Fatalf("height %d should not fit, got %v", height-1, err)
	}
}

// TestZeroOutlineIgnoresOutlineColor 断言：描边宽度为 0 时输出与纯填充渲染一致，与描边色无关。
func TestZeroOutlineIgnoresOutlineColor(t *testing.T) {
	r := NewRenderer(".")
	bg := newBackground(400, 200)
	red, blue := helloStyle(), helloStyle()
	red.Outline = layout.Color{R: 255, A: 255}
	blue.Outline = layout.Color{B: 255, A: 255}

	a, err := r.Render("Hello World", bg, red)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	b, err := r.Render("Hello World", bg, blue)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("outline color leaked into a zero-width outline render")
	}

	red.OutlineWidth, blue.OutlineWidth = 2, 2
	a, _ = r.Render("Hello World", bg, red)
	b, _ = r.Render("Hello World", bg, blue)
	if bytes.Equal(a, b) {
		t.Fatalf("outline color should matter once outline width > 0")
	}
}

func TestRenderWrapsLongMessage(t *testing.T) {
	r := NewRenderer(".")
	style := helloStyle()
	style.MaxLineWidth = 150
	style.Spacing = 4
	res, _, err := r.RenderResult("this message is much wider than one hundred fifty pixels", newBackground(400, 400), style)
	if err != nil {
		t.Fatalf("RenderResult error: %v", err)
	}
	if len(res.Lines) < 2 {
		t.Fatalf("expected wrapping, got %d line(s)", len(res.Lines))
	}
	for i := 1; i < len(res.Lines); i++ {
		prev := res.Lines[i-1]
		if diff := res.Lines[i].Y - (prev.Y + prev.Height + style.Spacing); math.Abs(diff) > 1e-9 {
			t.Fatalf("line %d not stacked below line %d (diff=%g)", i, i-1, diff)
		}
	}
}

func TestMissingFontIsResourceError(t *testing.T) {
	r := NewRenderer(t.TempDir())
	style := helloStyle()
	style.Font = layout.FontResource{Name: "Missing", Src: "missing.ttf"}
	_, err := r.Render("Hello", newBackground(400, 200), style)
	var re *layout.ResourceError
	if !errors.As(err, &re) || re.Kind != "font" {
		t.Fatalf("expected font ResourceError, got %v", err)
	}
	if errors.Is(err, layout.ErrDoesNotFit) {
		t.Fatalf("resource error must not be reported as layout error")
	}
}

func TestInjectedResources(t *testing.T) {
	var png1 bytes.Buffer
	if err := png.Encode(&png1, newBackground(64, 48)); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	r := NewRendererWithOptions(Options{
		Images: map[string]Resource{"plain": {Bytes: png1.Bytes()}},
	})
	bg, err := r.Background("built-in:plain")
	if err != nil {
		t.Fatalf("Background error: %v", err)
	}
	if got := bg.Bounds().Size(); got != (image.Point{X: 64, Y: 48}) {
		t.Fatalf("unexpected background size %v", got)
	}
	if _, err := r.Background("built-in:nope"); err == nil {
		t.Fatalf("expected error for unknown built-in image")
	}
}

func TestBackgroundFromPath(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, newBackground(10, 20)); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bg.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	r := NewRenderer(dir)
	if _, err := r.Background("bg.png"); err != nil {
		t.Fatalf("Background error: %v", err)
	}
	_, err := r.Background("broken.png")
	var re *layout.ResourceError
	if !errors.As(err, &re) || re.Kind != "background" {
		t.Fatalf("expected background ResourceError, got %v", err)
	}
	if _, err := NewRenderer("").Background("bg.png"); err == nil {
		t.Fatalf("relative path without base dir should fail")
	}
}
