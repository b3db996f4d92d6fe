package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/ByLCY/logicfeed/fonts"
	"github.com/ByLCY/logicfeed/layout"
	"github.com/ByLCY/logicfeed/renderer"
)

// Renderer composites captions onto background images via github.com/tdewolff/canvas.
//
// One canvas millimeter maps to one output pixel, so every layout length (px)
// is used as-is on the canvas and only font sizes are converted to points.
type Renderer struct {
	baseDir string

	// injected resources
	fontBlobs  map[string][]byte // by unique name
	imageBlobs map[string][]byte // by unique name

	fontMu    sync.Mutex
	fontCache map[string][]byte // by src
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Measurer   = (*Renderer)(nil)
)

// Options configures the canvas renderer.
type Options struct {
	BaseDir string
	Fonts   map[string]Resource // fonts accessible via built-in:<name>
	Images  map[string]Resource // backgrounds accessible via built-in:<name>
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// NewRenderer creates a canvas-based renderer rooted at baseDir for resolving assets.
func NewRenderer(baseDir string) *Renderer { return NewRendererWithOptions(Options{BaseDir: baseDir}) }

// NewRendererWithOptions creates a renderer with injected resources and optional baseDir.
func NewRendererWithOptions(opts Options) *Renderer {
	r := &Renderer{
		baseDir:    opts.BaseDir,
		fontBlobs:  ingest(opts.Fonts),
		imageBlobs: ingest(opts.Images),
		fontCache:  map[string][]byte{},
	}
	return r
}

func ingest(resources map[string]Resource) map[string][]byte {
	blobs := map[string][]byte{}
	for name, res := range resources {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			blobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			data, _ := os.ReadFile(res.Path) // 读取失败时在实际使用处报告
			if len(data) > 0 {
				blobs[name] = data
			}
		}
	}
	return blobs
}

// Render 排版并合成图片，返回 PNG 字节。
func (r *Renderer) Render(message string, background image.Image, style layout.Style) ([]byte, error) {
	_, out, err := r.RenderResult(message, background, style)
	return out, err
}

// RenderResult 与 Render 相同，额外返回排版结果，供调试输出使用。
// 排版检查在任何绘制之前完成，失败时不会产生部分输出。
func (r *Renderer) RenderResult(message string, background image.Image, style layout.Style) (*layout.Result, []byte, error) {
	if background == nil {
		return nil, nil, fmt.Errorf("背景图片为空")
	}
	bounds := background.Bounds()
	if bounds.Empty() {
		return nil, nil, fmt.Errorf("背景图片尺寸为 0")
	}
	width, height := float64(bounds.Dx()), float64(bounds.Dy())

	c := canvas.New(width, height)
	s := r.newSurface(canvas.NewContext(c), height)
	res, err := layout.Build(message, width, height, style, s)
	if err != nil {
		return nil, nil, err
	}
	if err := renderer.Draw(s, res); err != nil {
		return nil, nil, err
	}

	// 文字层单独光栅化后再叠加，背景像素除文字覆盖处外保持原样。
	textLayer := rasterizer.Draw(c, canvas.DPMM(1.0), canvas.DefaultColorSpace)
	dst := imaging.Clone(background)
	draw.Draw(dst, dst.Bounds(), textLayer, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return res, buf.Bytes(), nil
}

// Measure 实现 layout.Measurer 接口，宽高单位为 px。
func (r *Renderer) Measure(text string, font layout.FontResource, size float64) (float64, float64, error) {
	return r.newSurface(nil, 0).Measure(text, font, size)
}

// Background 读取并解码背景图片，按 EXIF 方向自动旋转。
// src 可以是 built-in:<name> 注入资源，或相对 baseDir 的文件路径。
func (r *Renderer) Background(src string) (image.Image, error) {
	img, err := r.decodeBackground(src)
	if err != nil {
		return nil, &layout.ResourceError{Kind: "background", Src: src, Err: err}
	}
	return img, nil
}

func (r *Renderer) decodeBackground(src string) (image.Image, error) {
	if src == "" {
		return nil, fmt.Errorf("缺少 src")
	}
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		blob, ok := r.imageBlobs[name]
		if !ok {
			return nil, fmt.Errorf("找不到内置图片资源 built-in:%s", name)
		}
		return imaging.Decode(bytes.NewReader(blob), imaging.AutoOrientation(true))
	}
	if strings.HasPrefix(src, "embed:") {
		return nil, fmt.Errorf("embed 仅支持内置字体，暂不支持图片")
	}
	path, err := r.resolvePath(src)
	if err != nil {
		return nil, err
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}

func (r *Renderer) resolvePath(src string) (string, error) {
	if filepath.IsAbs(src) {
		return src, nil
	}
	if r.baseDir == "" {
		return "", fmt.Errorf("未指定资源目录时不允许直接使用相对路径：%s（请改用 built-in: 或绝对路径）", src)
	}
	return filepath.Join(r.baseDir, src), nil
}

func (r *Renderer) loadFontBytes(src string) ([]byte, error) {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	if data, ok := r.fontCache[src]; ok {
		return data, nil
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:"):
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		blob, ok := r.fontBlobs[name]
		if !ok {
			return nil, fmt.Errorf("找不到内置字体资源 built-in:%s", name)
		}
		data = blob
	case strings.HasPrefix(src, "embed:"):
		data, err = fonts.Load(src)
	default:
		var path string
		if path, err = r.resolvePath(src); err == nil {
			data, err = os.ReadFile(path)
		}
	}
	if err != nil {
		return nil, err
	}
	r.fontCache[src] = data
	return data, nil
}

// surface 是单次渲染独占的绘制面：自带已解析的字体族，不与其他调用共享。
type surface struct {
	r        *Renderer
	ctx      *canvas.Context
	height   float64
	families map[string]*canvas.FontFamily
}

var _ renderer.Canvas = (*surface)(nil)

func (r *Renderer) newSurface(ctx *canvas.Context, height float64) *surface {
	return &surface{r: r, ctx: ctx, height: height, families: map[string]*canvas.FontFamily{}}
}

func (s *surface) Measure(text string, font layout.FontResource, size float64) (float64, float64, error) {
	face, err := s.face(font, size, layout.Black)
	if err != nil {
		return 0, 0, err
	}
	m := face.Metrics()
	return face.TextWidth(text), m.Ascent + math.Abs(m.Descent), nil
}

// DrawText 以 (x, y) 为行框左上角绘制文本。canvas 默认坐标系 y 轴向上，
// 因此基线位置为 height - (y + Ascent)。
func (s *surface) DrawText(text string, x, y float64, font layout.FontResource, size float64, col layout.Color) error {
	if s.ctx == nil {
		return fmt.Errorf("surface 未绑定画布")
	}
	face, err := s.face(font, size, col)
	if err != nil {
		return err
	}
	baseline := s.height - (y + face.Metrics().Ascent)
	s.ctx.DrawText(x, baseline, canvas.NewTextLine(face, text, canvas.Left))
	return nil
}

func (s *surface) face(font layout.FontResource, size float64, col layout.Color) (*canvas.FontFace, error) {
	family, err := s.family(font)
	if err != nil {
		return nil, err
	}
	// 字号从 px（即画布 mm）转为 pt 以创建字体面
	return family.Face(toPt(size), colorFromLayout(col), canvas.FontRegular, canvas.FontNormal), nil
}

func (s *surface) family(font layout.FontResource) (*canvas.FontFamily, error) {
	src := font.Src
	if src == "" {
		src = fonts.Default
	}
	if family, ok := s.families[src]; ok {
		return family, nil
	}
	data, err := s.r.loadFontBytes(src)
	if err != nil {
		return nil, &layout.ResourceError{Kind: "font", Src: src, Err: err}
	}
	name := font.Name
	if name == "" {
		name = src
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, &layout.ResourceError{Kind: "font", Src: src, Err: err}
	}
	s.families[src] = family
	return family, nil
}

func colorFromLayout(c layout.Color) color.Color {
	return color.NRGBA{R: clamp8(c.R), G: clamp8(c.G), B: clamp8(c.B), A: clamp8(c.A)}
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// toPt 将像素（画布 mm）转换为点(pt)。
func toPt(px float64) float64 { return px * layout.MmToPt }
