// Package config 将 DSL 配置文件映射为程序使用的配置结构。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ByLCY/logicfeed/binding"
	"github.com/ByLCY/logicfeed/catalog"
	"github.com/ByLCY/logicfeed/dsl"
	"github.com/ByLCY/logicfeed/feed"
	"github.com/ByLCY/logicfeed/fonts"
	"github.com/ByLCY/logicfeed/layout"
	"github.com/ByLCY/logicfeed/paint"
)

// DefaultStyleName 是未在 source 中指定 style 时使用的样式名。
const DefaultStyleName = "Default"

// Config 是完整的运行配置。
type Config struct {
	// Dir 为配置文件所在目录，相对资源路径以此为基准。
	Dir     string
	Source  Source
	Catalog catalog.Catalog
	Styles  map[string]layout.Style
	Mail    Mail
	Web     Web
	Store   Store
}

// Source 描述被转发的用户与轮询参数。
type Source struct {
	UserID    string
	UserName  string
	ForwardTo string
	Token     string
	GraphURL  string
	Interval  time.Duration
	MaxPages  int
	Style     string
}

// Mail 是 SMTP 投递参数；Subject 与 Body 可以引用 ${post.*}。
type Mail struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
	Subject  string
	Body     string
}

// Web 是页面服务参数。
type Web struct {
	Addr string
}

// Store 是 SQLite 数据库参数。
type Store struct {
	Path string
}

// Default 返回不依赖配置文件的默认配置。
func Default() Config {
	return Config{
		Source: Source{
			GraphURL: feed.DefaultBaseURL,
			Interval: 5 * time.Minute,
			Style:    DefaultStyleName,
		},
		Styles: map[string]layout.Style{},
		Mail: Mail{
			Port:    587,
			Subject: "${post.message}",
			Body:    "${post.permalink}",
		},
		Web:   Web{Addr: ":8080"},
		Store: Store{Path: "logicfeed.db"},
	}
}

// BaseStyle 返回 source 指定的样式；未定义时返回 layout.DefaultStyle。
// 未指定字体时使用内置默认字体。
func (c Config) BaseStyle() layout.Style {
	style, ok := c.Styles[c.Source.Style]
	if !ok {
		style = layout.DefaultStyle()
	}
	if style.Font.Src == "" {
		style.Font = layout.FontResource{Name: strings.TrimPrefix(fonts.Default, "embed:"), Src: fonts.Default}
	}
	return style
}

// Load 读取并解析配置文件。
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("无法打开配置文件 %s: %w", path, err)
	}
	defer file.Close()

	doc, err := dsl.Parse(file)
	if err != nil {
		return Config{}, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	cfg, err := FromFile(doc)
	if err != nil {
		return Config{}, fmt.Errorf("配置文件 %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// FromFile 在默认配置之上应用 DSL 中的各个小节。
func FromFile(doc *dsl.File) (Config, error) {
	cfg := Default()
	if doc == nil {
		return cfg, nil
	}
	m := &mapper{env: binding.Env(), colors: map[string]layout.Color{}}

	// resources 先于 style 处理，以便样式引用具名颜色与字体。
	for _, section := range doc.Sections {
		if section.Resources != nil {
			if err := m.resources(section.Resources, &cfg); err != nil {
				return Config{}, err
			}
		}
	}

	rawStyles := map[string]rawStyle{}
	for _, section := range doc.Sections {
		var err error
		switch section.Kind() {
		case "source":
			err = m.source(section.Source, &cfg.Source)
		case "mail":
			err = m.mail(section.Mail, &cfg.Mail)
		case "web":
			err = m.assignments(section.Web, map[string]func(*dsl.Value) error{
				"addr": m.setString(&cfg.Web.Addr),
			})
		case "store":
			err = m.assignments(section.Store, map[string]func(*dsl.Value) error{
				"path": m.setString(&cfg.Store.Path),
			})
		case "style":
			st := section.Style
			if _, dup := rawStyles[st.Name]; dup {
				err = fmt.Errorf("style %s 重复定义", st.Name)
				break
			}
			rawStyles[st.Name] = rawStyle{extends: st.Extends, props: props(st.Block)}
		}
		if err != nil {
			return Config{}, err
		}
	}

	resolved, err := resolveStyles(rawStyles)
	if err != nil {
		return Config{}, err
	}
	for name, raw := range resolved {
		style, err := m.style(raw.props, cfg.Catalog)
		if err != nil {
			return Config{}, fmt.Errorf("style %s: %w", name, err)
		}
		cfg.Styles[name] = style
	}

	if err := cfg.Catalog.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type mapper struct {
	env    map[string]any
	colors map[string]layout.Color
}

func (m *mapper) text(v *dsl.Value) (string, error) {
	out, err := binding.Expand(v.Text(), m.env)
	if err != nil {
		return "", fmt.Errorf("%s: %w", v.Pos, err)
	}
	return out, nil
}

func (m *mapper) setString(dst *string) func(*dsl.Value) error {
	return func(v *dsl.Value) error {
		s, err := m.text(v)
		if err != nil {
			return err
		}
		*dst = s
		return nil
	}
}

func (m *mapper) setInt(dst *int) func(*dsl.Value) error {
	return func(v *dsl.Value) error {
		s, err := m.text(v)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %s 不是整数", v.Pos, s)
		}
		*dst = n
		return nil
	}
}

func (m *mapper) setList(dst *[]string) func(*dsl.Value) error {
	return func(v *dsl.Value) error {
		var out []string
		for _, item := range v.List() {
			s, err := binding.Expand(item, m.env)
			if err != nil {
				return fmt.Errorf("%s: %w", v.Pos, err)
			}
			out = append(out, s)
		}
		*dst = out
		return nil
	}
}

// assignments 将块中的 key: value 分派给对应的 setter，未知键报错。
func (m *mapper) assignments(block *dsl.Block, setters map[string]func(*dsl.Value) error) error {
	if block == nil {
		return nil
	}
	for _, stmt := range block.Statements {
		a := stmt.Assignment
		if a == nil {
			return fmt.Errorf("%s: 此处只允许 key: value 形式", stmt.Command.Pos)
		}
		set, ok := setters[strings.ToLower(a.Key)]
		if !ok {
			return fmt.Errorf("%s: 未知配置项 %s", a.Pos, a.Key)
		}
		if err := set(a.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *mapper) source(block *dsl.Block, src *Source) error {
	return m.assignments(block, map[string]func(*dsl.Value) error{
		"user":       m.setString(&src.UserID),
		"name":       m.setString(&src.UserName),
		"forward-to": m.setString(&src.ForwardTo),
		"token":      m.setString(&src.Token),
		"graph-url":  m.setString(&src.GraphURL),
		"style":      m.setString(&src.Style),
		"max-pages":  m.setInt(&src.MaxPages),
		"interval": func(v *dsl.Value) error {
			d, err := ParseDuration(v.Text())
			if err != nil {
				return fmt.Errorf("%s: %w", v.Pos, err)
			}
			src.Interval = d
			return nil
		},
	})
}

func (m *mapper) mail(block *dsl.Block, mail *Mail) error {
	return m.assignments(block, map[string]func(*dsl.Value) error{
		"host":     m.setString(&mail.Host),
		"port":     m.setInt(&mail.Port),
		"user":     m.setString(&mail.User),
		"password": m.setString(&mail.Password),
		"from":     m.setString(&mail.From),
		"to":       m.setList(&mail.To),
		// 主题与正文中的 ${post.*} 在发送时才展开，这里只做环境变量替换。
		"subject": func(v *dsl.Value) error { mail.Subject = binding.Interpolate(v.Text(), m.env); return nil },
		"body":    func(v *dsl.Value) error { mail.Body = binding.Interpolate(v.Text(), m.env); return nil },
	})
}

func (m *mapper) resources(block *dsl.Block, cfg *Config) error {
	for _, stmt := range block.Statements {
		cmd := stmt.Command
		if cmd == nil {
			return fmt.Errorf("%s: resources 中只允许 font、color、background 声明", stmt.Assignment.Pos)
		}
		if len(cmd.Args) == 0 {
			return fmt.Errorf("%s: %s 缺少名称", cmd.Pos, cmd.Name)
		}
		name := cmd.Args[0].Text()
		switch cmd.Name {
		case "font":
			f := catalog.Font{Name: name}
			err := m.assignments(cmd.Block, map[string]func(*dsl.Value) error{
				"src": m.setString(&f.Src),
				"css": m.setString(&f.CSSFamily),
				"sizes": func(v *dsl.Value) error {
					for _, item := range v.List() {
						px, err := layout.ParsePX(item)
						if err != nil {
							return fmt.Errorf("%s: %w", v.Pos, err)
						}
						f.Sizes = append(f.Sizes, px)
					}
					return nil
				},
			})
			if err != nil {
				return err
			}
			cfg.Catalog.Fonts = append(cfg.Catalog.Fonts, f)
		case "color":
			if cmd.Assign == nil {
				return fmt.Errorf("%s: color %s 缺少取值", cmd.Pos, name)
			}
			c, err := paint.Parse(cmd.Assign.Text())
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.Pos, err)
			}
			m.colors[name] = c
		case "background":
			bg := catalog.Background{Name: name}
			err := m.assignments(cmd.Block, map[string]func(*dsl.Value) error{
				"src":           m.setString(&bg.Src),
				"margin-bottom": setPX(&bg.MarginBottom),
				"wrap-width":    setPX(&bg.WrapWidth),
			})
			if err != nil {
				return err
			}
			cfg.Catalog.Backgrounds = append(cfg.Catalog.Backgrounds, bg)
		default:
			return fmt.Errorf("%s: 未知资源类型 %s", cmd.Pos, cmd.Name)
		}
	}
	return nil
}

func setPX(dst *float64) func(*dsl.Value) error {
	return func(v *dsl.Value) error {
		px, err := layout.ParsePX(v.Text())
		if err != nil {
			return fmt.Errorf("%s: %w", v.Pos, err)
		}
		*dst = px
		return nil
	}
}

// style 在 layout.DefaultStyle 之上应用已合并的属性。
func (m *mapper) style(props map[string]*dsl.Value, cat catalog.Catalog) (layout.Style, error) {
	style := layout.DefaultStyle()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := props[key]
		var err error
		switch key {
		case "font":
			name := v.Text()
			if f, ok := cat.Font(name); ok {
				style.Font = layout.FontResource{Name: f.Name, Src: f.Src}
			} else {
				var src string
				if src, err = m.text(v); err == nil {
					style.Font = layout.FontResource{Name: filepath.Base(src), Src: src}
				}
			}
		case "size":
			style.FontSize, err = layout.ParsePX(v.Text())
		case "fill":
			style.Fill, err = m.color(v)
		case "outline":
			style.Outline, err = m.color(v)
		case "outline-width":
			style.OutlineWidth, err = layout.ParsePX(v.Text())
		case "spacing":
			style.Spacing, err = layout.ParsePX(v.Text())
		case "margin-bottom":
			style.MarginBottom, err = layout.ParsePX(v.Text())
		case "max-width":
			style.MaxLineWidth, err = layout.ParsePX(v.Text())
		default:
			err = fmt.Errorf("未知样式属性 %s", key)
		}
		if err != nil {
			return layout.Style{}, fmt.Errorf("%s: %w", v.Pos, err)
		}
	}
	if style.FontSize <= 0 {
		return layout.Style{}, fmt.Errorf("字号必须为正数")
	}
	return style, nil
}

func (m *mapper) color(v *dsl.Value) (layout.Color, error) {
	if v.Ident != nil {
		if c, ok := m.colors[*v.Ident]; ok {
			return c, nil
		}
	}
	return paint.Parse(v.Text())
}

// ParseDuration 解析 60s、5m、1h、500ms 等时长；不带单位的数字按秒处理。
func ParseDuration(value string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("时长必须为正数: %s", value)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("无法解析时长 %s", value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("时长必须为正数: %s", value)
	}
	return d, nil
}

type rawStyle struct {
	extends string
	props   map[string]*dsl.Value
}

func props(block *dsl.Block) map[string]*dsl.Value {
	out := map[string]*dsl.Value{}
	if block == nil {
		return out
	}
	for _, stmt := range block.Statements {
		if stmt.Assignment != nil {
			out[strings.ToLower(stmt.Assignment.Key)] = stmt.Assignment.Value
		}
	}
	return out
}

// resolveStyles 展开 extends 继承链，子样式的属性覆盖父样式。
func resolveStyles(styles map[string]rawStyle) (map[string]rawStyle, error) {
	resolved := map[string]rawStyle{}
	visiting := map[string]bool{}

	var dfs func(name string) (rawStyle, error)
	dfs = func(name string) (rawStyle, error) {
		if style, ok := resolved[name]; ok {
			return style, nil
		}
		style, ok := styles[name]
		if !ok {
			return rawStyle{}, fmt.Errorf("style %s 未定义", name)
		}
		if visiting[name] {
			return rawStyle{}, fmt.Errorf("style 继承存在循环：%s", name)
		}
		visiting[name] = true

		merged := map[string]*dsl.Value{}
		if style.extends != "" {
			parent, err := dfs(style.extends)
			if err != nil {
				return rawStyle{}, err
			}
			for k, v := range parent.props {
				merged[k] = v
			}
		}
		for k, v := range style.props {
			merged[k] = v
		}
		style.props = merged
		resolved[name] = style
		delete(visiting, name)
		return style, nil
	}

	for name := range styles {
		if _, err := dfs(name); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}
