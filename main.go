package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/logicfeed/config"
	"github.com/ByLCY/logicfeed/delivery"
	"github.com/ByLCY/logicfeed/feed"
	"github.com/ByLCY/logicfeed/layout"
	"github.com/ByLCY/logicfeed/paint"
	"github.com/ByLCY/logicfeed/pipeline"
	canvasrenderer "github.com/ByLCY/logicfeed/renderer/canvas"
	"github.com/ByLCY/logicfeed/store"
	"github.com/ByLCY/logicfeed/web"
)

const usage = `用法:
  logicfeed render -text 文本 -bg 背景图片 [-out 输出路径|-] [样式参数...]
  logicfeed stream [-t 秒] [-s 起始时间] [-token 访问令牌] <用户 ID>
  logicfeed serve  -config 配置文件
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "render":
		err = runRender(args, os.Stdout)
	case "stream":
		err = runStream(ctx, args, os.Stdout)
	case "serve":
		err = runServe(ctx, args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令 %s\n%s", cmd, usage)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("%s 失败: %v", os.Args[1], err)
		os.Exit(exitCode(err))
	}
}

// exitCode 区分“换一组参数再试”的排版失败（2）与其他错误（1）。
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, layout.ErrDoesNotFit):
		return 2
	default:
		return 1
	}
}

// renderFlags 保存 render 子命令的参数；样式参数只在显式给出时覆盖配置。
type renderFlags struct {
	text, bg, out, debug  string
	configPath, styleName string

	font, fill, outline string
	size, outlineWidth  string
	spacing             string
	marginBottom        string
	wrapWidth           string
}

func runRender(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	var f renderFlags
	fs.StringVar(&f.text, "text", "", "要绘制的文本")
	fs.StringVar(&f.bg, "bg", "", "背景图片路径")
	fs.StringVar(&f.out, "out", "-", "PNG 输出路径，- 表示标准输出")
	fs.StringVar(&f.debug, "debug", "", "排版调试 JSON 输出路径")
	fs.StringVar(&f.configPath, "config", "", "配置文件，用于读取具名样式")
	fs.StringVar(&f.styleName, "style", "", "配置文件中的样式名")
	fs.StringVar(&f.font, "font", "", "字体文件路径或 embed:gobold 等内置字体")
	fs.StringVar(&f.size, "size", "", "字号，例如 42px")
	fs.StringVar(&f.fill, "fill", "", "填充颜色")
	fs.StringVar(&f.outline, "outline", "", "描边颜色")
	fs.StringVar(&f.outlineWidth, "outline-width", "", "描边宽度")
	fs.StringVar(&f.spacing, "spacing", "", "行距")
	fs.StringVar(&f.marginBottom, "margin-bottom", "", "底部边距")
	fs.StringVar(&f.wrapWidth, "wrap-width", "", "每行最大宽度，0 表示使用图片宽度")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.text == "" || f.bg == "" {
		return fmt.Errorf("-text 与 -bg 为必填参数")
	}

	setup, err := renderStyle(f)
	if err != nil {
		return err
	}
	r := canvasrenderer.NewRenderer(setup.baseDir)
	bg, err := r.Background(setup.background)
	if err != nil {
		return err
	}

	res, out, err := r.RenderResult(f.text, bg, setup.style)
	if err != nil {
		return err
	}
	if f.debug != "" {
		if err := writeDebug(res, f.debug); err != nil {
			return err
		}
	}

	if f.out == "-" {
		_, err := stdout.Write(out)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.out), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(f.out, out, 0o644); err != nil {
		return fmt.Errorf("写入 PNG 文件失败: %w", err)
	}
	fmt.Fprintf(os.Stderr, "已生成图片：%s\n", f.out)
	return nil
}

type renderSetup struct {
	style      layout.Style
	background string
	baseDir    string
}

// renderStyle 以配置中的样式（或默认样式）为基础，应用命令行覆盖。
// -bg 与配置中的背景同名时使用该背景的 src、底部边距与行宽。
func renderStyle(f renderFlags) (renderSetup, error) {
	cfg := config.Default()
	setup := renderSetup{baseDir: "."}
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return renderSetup{}, err
		}
		setup.baseDir = cfg.Dir
	}
	if f.styleName != "" {
		if _, ok := cfg.Styles[f.styleName]; !ok {
			return renderSetup{}, fmt.Errorf("样式 %s 未定义", f.styleName)
		}
		cfg.Source.Style = f.styleName
	}
	style := cfg.BaseStyle()

	if bg, ok := cfg.Catalog.Background(f.bg); ok {
		setup.background = bg.Src
		style.MarginBottom = bg.MarginBottom
		style.MaxLineWidth = bg.WrapWidth
	} else if f.bg != "" {
		abs, err := filepath.Abs(f.bg)
		if err != nil {
			return renderSetup{}, fmt.Errorf("无法解析背景路径 %s: %w", f.bg, err)
		}
		setup.background = abs
	}

	if f.font != "" {
		src := f.font
		if !strings.Contains(src, ":") {
			abs, err := filepath.Abs(src)
			if err != nil {
				return renderSetup{}, fmt.Errorf("无法解析字体路径 %s: %w", src, err)
			}
			src = abs
		}
		style.Font = layout.FontResource{Name: filepath.Base(f.font), Src: src}
	}
	for _, c := range []struct {
		value string
		dst   *layout.Color
	}{{f.fill, &style.Fill}, {f.outline, &style.Outline}} {
		if c.value == "" {
			continue
		}
		col, err := paint.Parse(c.value)
		if err != nil {
			return renderSetup{}, err
		}
		*c.dst = col
	}
	for _, l := range []struct {
		value string
		dst   *float64
	}{
		{f.size, &style.FontSize},
		{f.outlineWidth, &style.OutlineWidth},
		{f.spacing, &style.Spacing},
		{f.marginBottom, &style.MarginBottom},
		{f.wrapWidth, &style.MaxLineWidth},
	} {
		if l.value == "" {
			continue
		}
		px, err := layout.ParsePX(l.value)
		if err != nil {
			return renderSetup{}, err
		}
		*l.dst = px
	}
	setup.style = style
	return setup, nil
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func runStream(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	interval := fs.Int("t", 60, "轮询间隔（秒）")
	start := fs.String("s", "", "起始时间，例如 2014-03-02T10:00；默认从现在开始")
	token := fs.String("token", os.Getenv("LOGICFEED_TOKEN"), "Graph API 访问令牌")
	graphURL := fs.String("graph-url", feed.DefaultBaseURL, "Graph API 地址")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("需要且只需要一个用户 ID")
	}
	if *interval <= 0 {
		return fmt.Errorf("-t 必须为正数")
	}
	var since time.Time
	if *start != "" {
		var err error
		if since, err = feed.ParseStartTime(*start); err != nil {
			return err
		}
	}

	client := feed.NewClient(feed.Session{AccessToken: *token, Scope: []string{"read_stream"}})
	client.BaseURL = *graphURL
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return feed.Stream(ctx, client, fs.Arg(0), since, time.Duration(*interval)*time.Second, func(p feed.Post) error {
		return enc.Encode(p)
	})
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "logicfeed.feed", "配置文件路径")
	addr := fs.String("addr", "", "监听地址，覆盖配置中的 web.addr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	if cfg.Source.UserID == "" {
		return fmt.Errorf("配置缺少 source.user")
	}
	if err := cfg.Catalog.Usable(); err != nil {
		return fmt.Errorf("配置 %s 无法用于拉取: %w", *configPath, err)
	}

	dbPath := cfg.Store.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.Dir, dbPath)
	}
	st, err := store.Open(ctx, dbPath, time.Now())
	if err != nil {
		return err
	}
	defer st.Close()

	client := feed.NewClient(feed.Session{AccessToken: cfg.Source.Token, Scope: []string{"read_stream"}})
	client.BaseURL = cfg.Source.GraphURL
	client.MaxPages = cfg.Source.MaxPages

	r := canvasrenderer.NewRenderer(cfg.Dir)
	p := &pipeline.Pipeline{
		Source:      client,
		UserID:      cfg.Source.UserID,
		Store:       st,
		Catalog:     cfg.Catalog,
		Base:        cfg.BaseStyle(),
		Renderer:    r,
		Backgrounds: r,
		Sender: &delivery.SMTP{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			To:       cfg.Mail.To,
		},
		Mail: pipeline.Template{Subject: cfg.Mail.Subject, Body: cfg.Mail.Body},
	}
	srv := &http.Server{
		Addr: cfg.Web.Addr,
		Handler: (&web.Server{
			Store:     st,
			Puller:    p,
			UserID:    cfg.Source.UserID,
			UserName:  cfg.Source.UserName,
			ForwardTo: cfg.Source.ForwardTo,
			Permalink: p.Permalink,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx, cfg.Source.Interval) })
	g.Go(func() error {
		log.Printf("页面服务监听 %s", cfg.Web.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
