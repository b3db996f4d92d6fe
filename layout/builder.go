package layout

import (
	"fmt"
	"strings"
)

// Build 计算 message 在 width×height 背景上的折行与每行位置。
// 文本块水平居中，底边距离图片底部 MarginBottom+OutlineWidth 像素。
// 任一行左侧越界或文本块顶部越界时返回 *LayoutError，此时不产生任何行。
func Build(message string, width, height float64, style Style, m Measurer) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("layout: 文本内容为空")
	}
	if m == nil {
		return nil, fmt.Errorf("layout: 缺少测量后端 Measurer")
	}
	if style.OutlineWidth < 0 {
		return nil, fmt.Errorf("layout: 描边宽度不能为负数: %g", style.OutlineWidth)
	}
	if style.FontSize <= 0 {
		return nil, fmt.Errorf("layout: 字号必须为正数: %g", style.FontSize)
	}

	fullWidth, _, err := m.Measure(message, style.Font, style.FontSize)
	if err != nil {
		return nil, err
	}
	budget := style.MaxLineWidth
	if budget <= 0 {
		budget = width
	}

	res := &Result{Width: width, Height: height, Style: style}
	var texts []string
	if fullWidth <= budget && !strings.ContainsAny(message, "\r\n") {
		texts = []string{message}
	} else {
		res.WrapChars = wrapChars(message, budget, fullWidth)
		texts = Wrap(message, res.WrapChars)
	}

	lines := make([]Line, 0, len(texts))
	for _, text := range texts {
		w, h, err := m.Measure(text, style.Font, style.FontSize)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{Text: text, Width: w, Height: h})
		res.TextHeight += h
	}
	if len(lines) > 1 {
		res.TextHeight += style.Spacing * float64(len(lines)-1)
	}

	res.TopY = height - style.MarginBottom - res.TextHeight - style.OutlineWidth
	if res.TopY < 0 {
		return nil, &LayoutError{Line: -1, TopY: res.TopY, Width: width, Height: height}
	}

	y := res.TopY
	for i := range lines {
		lines[i].X = (width - lines[i].Width) / 2
		lines[i].Y = y
		if lines[i].X < 0 {
			return nil, &LayoutError{Line: i, X: lines[i].X, TopY: res.TopY, Width: width, Height: height}
		}
		y += lines[i].Height + style.Spacing
	}
	res.Lines = lines
	return res, nil
}
