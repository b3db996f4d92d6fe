package layout

// Measurer 负责测量单行文本在给定字体与字号（px）下的像素宽高。
// 排版逻辑只依赖该接口，便于在测试中替换为确定性的实现。
type Measurer interface {
	Measure(text string, font FontResource, size float64) (width, height float64, err error)
}
