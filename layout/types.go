package layout

// 该文件定义排版结果与样式描述，供排版计算、渲染与调试 JSON 共用。
// 所有长度单位均为像素（px），坐标原点为背景图片左上角。

// Result 保存一次排版计算后的全部行及其位置。
type Result struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Style      Style   `json:"style"`
	Lines      []Line  `json:"lines"`
	TextHeight float64 `json:"textHeight"`
	TopY       float64 `json:"topY"`
	// WrapChars 为按字符数折行时使用的宽度；单行直出时为 0。
	WrapChars int `json:"wrapChars"`
}

// Line 表示排版后的一行文本内容、左上角坐标及宽高。
type Line struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style 描述一次渲染的全部样式参数，按值传递。
type Style struct {
	Font         FontResource `json:"font"`
	FontSize     float64      `json:"fontSize"`
	Fill         Color        `json:"fill"`
	Outline      Color        `json:"outline"`
	OutlineWidth float64      `json:"outlineWidth"`
	Spacing      float64      `json:"spacing"`
	MarginBottom float64      `json:"marginBottom"`
	MaxLineWidth float64      `json:"maxLineWidth,omitempty"` // <=0 时以图片宽度为准
}

// FontResource 描述字体资源，src 可以是文件路径、embed:* 内置字体或 built-in:* 注入字体。
type FontResource struct {
	Name string `json:"name"`
	Src  string `json:"src"`
}

// Color 采用 0-255 的 RGBA 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	A int `json:"a"`
}

// RGBA 构造不透明颜色。
func RGBA(r, g, b, a int) Color { return Color{R: r, G: g, B: b, A: a} }

var (
	White = Color{R: 255, G: 255, B: 255, A: 255}
	Black = Color{A: 255}
)

// DefaultStyle 返回常见的白字黑边样式。
func DefaultStyle() Style {
	return Style{
		FontSize:     42,
		Fill:         White,
		Outline:      Black,
		OutlineWidth: 2,
		Spacing:      4,
		MarginBottom: 20,
	}
}
