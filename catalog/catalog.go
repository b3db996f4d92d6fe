// Package catalog 管理可选的背景图片与字体，并组合出渲染候选样式。
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ByLCY/logicfeed/layout"
)

// Background 是一张可用的背景图片及其排版参数。
// WrapWidth 为每行允许的最大像素宽度，0 表示使用图片宽度。
type Background struct {
	Name         string  `json:"name"`
	Src          string  `json:"src"`
	MarginBottom float64 `json:"marginBottom"`
	WrapWidth    float64 `json:"wrapWidth"`
}

// Font 是一个可用字体；Sizes 为空时沿用基础样式的字号。
type Font struct {
	Name      string    `json:"name"`
	CSSFamily string    `json:"cssFamily,omitempty"`
	Src       string    `json:"src"`
	Sizes     []float64 `json:"sizes,omitempty"`
}

// Catalog 保存全部背景与字体。
type Catalog struct {
	Backgrounds []Background
	Fonts       []Font
}

// ErrNoBackgrounds 表示目录中没有背景，无法组合出任何候选。
var ErrNoBackgrounds = errors.New("没有配置任何背景图片")

// Candidate 是一次渲染尝试所需的背景与完整样式。
type Candidate struct {
	Background Background
	Font       Font
	Style      layout.Style
}

// Validate 检查名称唯一且资源地址不为空。
func (c Catalog) Validate() error {
	seen := map[string]bool{}
	for _, bg := range c.Backgrounds {
		if bg.Name == "" {
			return fmt.Errorf("背景缺少名称")
		}
		if seen["bg:"+bg.Name] {
			return fmt.Errorf("背景 %s 重复定义", bg.Name)
		}
		seen["bg:"+bg.Name] = true
		if bg.Src == "" {
			return fmt.Errorf("背景 %s 缺少 src", bg.Name)
		}
		if bg.MarginBottom < 0 || bg.WrapWidth < 0 {
			return fmt.Errorf("背景 %s 的 marginBottom 与 wrapWidth 不能为负数", bg.Name)
		}
	}
	for _, f := range c.Fonts {
		if f.Name == "" {
			return fmt.Errorf("字体缺少名称")
		}
		if seen["font:"+f.Name] {
			return fmt.Errorf("字体 %s 重复定义", f.Name)
		}
		seen["font:"+f.Name] = true
		if f.Src == "" {
			return fmt.Errorf("字体 %s 缺少 src", f.Name)
		}
		for _, size := range f.Sizes {
			if size <= 0 {
				return fmt.Errorf("字体 %s 的字号必须为正数", f.Name)
			}
		}
	}
	return nil
}

// Usable 检查目录能否产生候选；只用于具名样式的配置不需要背景。
func (c Catalog) Usable() error {
	if len(c.Backgrounds) == 0 {
		return ErrNoBackgrounds
	}
	return nil
}

// Background 按名称查找背景。
func (c Catalog) Background(name string) (Background, bool) {
	for _, bg := range c.Backgrounds {
		if bg.Name == name {
			return bg, true
		}
	}
	return Background{}, false
}

// Font 按名称查找字体。
func (c Catalog) Font(name string) (Font, bool) {
	for _, f := range c.Fonts {
		if f.Name == name {
			return f, true
		}
	}
	return Font{}, false
}

// Candidates 组合每个背景、字体与字号，返回随机排列的候选列表。
// 颜色、描边与行距取自 base；没有配置字体时使用 base 中的字体。
// rng 为 nil 时使用全局随机源。
func (c Catalog) Candidates(rng *rand.Rand, base layout.Style) []Candidate {
	fonts := c.Fonts
	if len(fonts) == 0 {
		fonts = []Font{{Name: base.Font.Name, Src: base.Font.Src}}
	}

	var out []Candidate
	for _, bg := range c.Backgrounds {
		for _, f := range fonts {
			sizes := f.Sizes
			if len(sizes) == 0 {
				sizes = []float64{base.FontSize}
			}
			for _, size := range sizes {
				style := base
				style.Font = layout.FontResource{Name: f.Name, Src: f.Src}
				style.FontSize = size
				style.MarginBottom = bg.MarginBottom
				style.MaxLineWidth = bg.WrapWidth
				out = append(out, Candidate{Background: bg, Font: f, Style: style})
			}
		}
	}

	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if rng != nil {
		rng.Shuffle(len(out), swap)
	} else {
		rand.Shuffle(len(out), swap)
	}
	return out
}
