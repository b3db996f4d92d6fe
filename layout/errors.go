package layout

import (
	"errors"
	"fmt"
)

// ErrDoesNotFit 表示文本块无法放入背景图片，可用 errors.Is 判断。
var ErrDoesNotFit = errors.New("内容无法放入背景图片")

// LayoutError 记录排版失败的具体位置。调用方应更换样式参数（更小字号、
// 更大背景等）后重新调用，而不是重试同一组参数。
type LayoutError struct {
	Line   int     // 首个越界行的下标；顶部越界时为 -1
	X      float64 // 越界行的横向起点
	TopY   float64 // 文本块顶部位置
	Width  float64 // 背景宽度
	Height float64 // 背景高度
}

func (e *LayoutError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("%v: 第 %d 行宽度超出 %gpx 宽的图片 (x=%g)", ErrDoesNotFit, e.Line+1, e.Width, e.X)
	}
	return fmt.Sprintf("%v: 文本块高度超出 %gpx 高的图片 (top=%g)", ErrDoesNotFit, e.Height, e.TopY)
}

func (e *LayoutError) Is(target error) bool { return target == ErrDoesNotFit }

// ResourceError 表示字体或背景图片无法读取/解码，与 LayoutError 区分：
// 前者需要修复资源，后者需要调整参数。
type ResourceError struct {
	Kind string // "font" 或 "background"
	Src  string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("加载%s资源 %s 失败: %v", resourceKindName(e.Kind), e.Src, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

func resourceKindName(kind string) string {
	switch kind {
	case "font":
		return "字体"
	case "background":
		return "背景图片"
	default:
		return kind
	}
}
