// Package paint 解析配置与命令行中的颜色写法。
//
// 支持的格式：
//
//   - 十六进制：#rgb、#rrggbb、#rrggbbaa
//   - rgb(r, g, b)：0-255 整数，或三个百分比 rgb(100%, 0%, 0%)
//   - rgba(r, g, b, a)：a 为 0-1 的不透明度
//   - hsl(h, s%, l%)：h 为 0-360 的角度
//   - 颜色名：SVG/CSS 标准的 147 个名称，不区分大小写
package paint

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"

	"github.com/ByLCY/logicfeed/layout"
)

var (
	colorLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t]+`},
		{Name: "Hex", Pattern: `#[0-9A-Fa-f]+`},
		{Name: "Number", Pattern: `(?:\d+\.\d*|\.\d+|\d+)`},
		{Name: "Ident", Pattern: `[A-Za-z]+`},
		{Name: "Punct", Pattern: `[(),%]`},
	})

	colorParser = participle.MustBuild[colorExpr](
		participle.Lexer(colorLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

type colorExpr struct {
	Hex  *string    `parser:"  @Hex"`
	Func *colorFunc `parser:"| @@"`
	Name *string    `parser:"| @Ident"`
}

type colorFunc struct {
	Name string       `parser:"@Ident '('"`
	Args []*component `parser:"@@ ( ',' @@ )* ')'"`
}

type component struct {
	Value   float64 `parser:"@Number"`
	Percent bool    `parser:"@'%'?"`
}

// Parse 将颜色字符串解析为 layout.Color。
func Parse(value string) (layout.Color, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return layout.Color{}, fmt.Errorf("颜色值为空")
	}
	expr, err := colorParser.ParseString("", s)
	if err != nil {
		return layout.Color{}, fmt.Errorf("颜色值 %s 无法解析: %w", value, err)
	}
	switch {
	case expr.Hex != nil:
		return parseHex(*expr.Hex)
	case expr.Func != nil:
		return evalFunc(expr.Func)
	case expr.Name != nil:
		c, ok := colornames.Map[strings.ToLower(*expr.Name)]
		if !ok {
			return layout.Color{}, fmt.Errorf("未知的颜色名 %s", *expr.Name)
		}
		return layout.Color{R: int(c.R), G: int(c.G), B: int(c.B), A: int(c.A)}, nil
	}
	return layout.Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
}

func parseHex(raw string) (layout.Color, error) {
	value := strings.TrimPrefix(raw, "#")
	switch len(value) {
	case 3:
		value = string([]byte{value[0], value[0], value[1], value[1], value[2], value[2]}) + "ff"
	case 6:
		value += "ff"
	case 8:
	default:
		return layout.Color{}, fmt.Errorf("颜色值 %s 长度不合法", raw)
	}
	n, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return layout.Color{}, fmt.Errorf("颜色值 %s 无法解析: %w", raw, err)
	}
	return layout.Color{
		R: int(n >> 24 & 0xff),
		G: int(n >> 16 & 0xff),
		B: int(n >> 8 & 0xff),
		A: int(n & 0xff),
	}, nil
}

func evalFunc(fn *colorFunc) (layout.Color, error) {
	name := strings.ToLower(fn.Name)
	switch name {
	case "rgb", "rgba":
		if want := len(name); len(fn.Args) != want {
			return layout.Color{}, fmt.Errorf("%s() 需要 %d 个参数，实际 %d 个", name, want, len(fn.Args))
		}
		var ch [3]int
		for i := 0; i < 3; i++ {
			v := fn.Args[i].Value
			if fn.Args[i].Percent {
				v = v * 255 / 100
			}
			if v > 255 {
				return layout.Color{}, fmt.Errorf("%s() 第 %d 个分量超出范围", name, i+1)
			}
			ch[i] = int(math.Round(v))
		}
		alpha := 255
		if name == "rgba" {
			a, err := unitAlpha(fn.Args[3])
			if err != nil {
				return layout.Color{}, err
			}
			alpha = a
		}
		return layout.Color{R: ch[0], G: ch[1], B: ch[2], A: alpha}, nil
	case "hsl", "hsla":
		if want := len(name); len(fn.Args) != want {
			return layout.Color{}, fmt.Errorf("%s() 需要 %d 个参数，实际 %d 个", name, want, len(fn.Args))
		}
		h := math.Mod(fn.Args[0].Value, 360)
		s, l := fn.Args[1].Value, fn.Args[2].Value
		if !fn.Args[1].Percent || !fn.Args[2].Percent || s > 100 || l > 100 {
			return layout.Color{}, fmt.Errorf("%s() 的饱和度与亮度必须是 0%%-100%% 的百分比", name)
		}
		r, g, b := colorful.Hsl(h, s/100, l/100).Clamped().RGB255()
		alpha := 255
		if name == "hsla" {
			a, err := unitAlpha(fn.Args[3])
			if err != nil {
				return layout.Color{}, err
			}
			alpha = a
		}
		return layout.Color{R: int(r), G: int(g), B: int(b), A: alpha}, nil
	default:
		return layout.Color{}, fmt.Errorf("不支持的颜色函数 %s()", fn.Name)
	}
}

func unitAlpha(c *component) (int, error) {
	v := c.Value
	if c.Percent {
		v /= 100
	}
	if v > 1 {
		return 0, fmt.Errorf("不透明度 %g 超出范围", c.Value)
	}
	return int(math.Round(v * 255)), nil
}
