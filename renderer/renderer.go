package renderer

import (
	"fmt"
	"image"

	"github.com/ByLCY/logicfeed/layout"
)

// Renderer 将文本合成到背景图片上，返回编码后的 PNG 字节。
// 文本放不下时返回 *layout.LayoutError，资源问题返回 *layout.ResourceError。
type Renderer interface {
	Render(message string, background image.Image, style layout.Style) ([]byte, error)
}

// Canvas 是绘制后端需要提供的能力：测量与在 (x, y) 处绘制单行文本。
// (x, y) 为行框左上角，单位 px。
type Canvas interface {
	layout.Measurer
	DrawText(text string, x, y float64, font layout.FontResource, size float64, col layout.Color) error
}

// OutlineOffsets 为描边时相对行原点的四个对角偏移方向，按绘制顺序排列。
// 偏移重绘在描边较宽（数个像素以上）时拐角处会出现缺口，这是该方法固有的效果。
var OutlineOffsets = [4][2]float64{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

// Draw 按排版结果逐行绘制：先以描边色在四个对角偏移处重绘，再以填充色在原点绘制。
// 描边宽度为 0 时不做任何偏移绘制。
func Draw(c Canvas, res *layout.Result) error {
	if c == nil {
		return fmt.Errorf("renderer: 画布为空")
	}
	if res == nil {
		return fmt.Errorf("renderer: 排版结果为空")
	}
	st := res.Style
	for _, ln := range res.Lines {
		if w := st.OutlineWidth; w > 0 {
			for _, off := range OutlineOffsets {
				if err := c.DrawText(ln.Text, ln.X+off[0]*w, ln.Y+off[1]*w, st.Font, st.FontSize, st.Outline); err != nil {
					return err
				}
			}
		}
		if err := c.DrawText(ln.Text, ln.X, ln.Y, st.Font, st.FontSize, st.Fill); err != nil {
			return err
		}
	}
	return nil
}
