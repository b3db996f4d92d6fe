// Package web 提供已收集动态的浏览页面、手动触发拉取以及图片下载。
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/zstd"

	"github.com/ByLCY/logicfeed/feed"
	"github.com/ByLCY/logicfeed/pipeline"
	"github.com/ByLCY/logicfeed/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/post.html"))

// AvatarFormat 是头像地址，参数为用户 ID。
const AvatarFormat = "https://graph.facebook.com/%s/picture?width=64&height=64"

// DefaultThumbSize 是缩略图的默认边长上限（像素）。
const DefaultThumbSize = 240

// Store 是页面需要的只读查询能力。
type Store interface {
	Feeds(ctx context.Context) ([]feed.Post, error)
	Post(ctx context.Context, id string) (store.Post, error)
	PostIDs(ctx context.Context) (map[string]bool, error)
	Watermark(ctx context.Context) (time.Time, error)
}

// Puller 触发一次拉取。
type Puller interface {
	Pull(ctx context.Context) (pipeline.Summary, error)
}

// Server 汇总页面所需的依赖与展示信息。
type Server struct {
	Store     Store
	Puller    Puller
	UserID    string
	UserName  string
	ForwardTo string
	// Permalink 为空时使用 pipeline.PermalinkFormat。
	Permalink func(feed.Post) string
	ThumbSize int
	Logger    *log.Logger
}

// PostView 是模板中的一条动态。
type PostView struct {
	ID          string    `json:"id"`
	Avatar      string    `json:"avatar"`
	Author      string    `json:"author"`
	Time        time.Time `json:"time"`
	Message     string    `json:"message"`
	ViewURL     string    `json:"viewUrl"`
	Forwardable bool      `json:"forwardable"`
	HasImage    bool      `json:"hasImage"`
}

type pageData struct {
	ForwardTo  string
	LastUpdate time.Time
	Posts      []PostView
}

// Handler 返回挂载全部路由的处理器；响应按 Accept-Encoding 压缩。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /feeds.json", s.handleFeedsJSON)
	mux.HandleFunc("GET /fetch", s.handleFetch)
	mux.HandleFunc("GET /posts/{id}/image.png", s.handleImage)
	mux.HandleFunc("GET /posts/{id}/thumb.png", s.handleThumb)
	return gzhttp.GzipHandler(mux)
}

func (s *Server) views(ctx context.Context) ([]PostView, error) {
	feeds, err := s.Store.Feeds(ctx)
	if err != nil {
		return nil, err
	}
	permalink := s.Permalink
	if permalink == nil {
		permalink = func(p feed.Post) string { return fmt.Sprintf(pipeline.PermalinkFormat, p.StoryID(), s.UserID) }
	}
	rendered, err := s.Store.PostIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PostView, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, PostView{
			ID:          f.ID,
			Avatar:      fmt.Sprintf(AvatarFormat, s.UserID),
			Author:      s.UserName,
			Time:        f.CreatedTime,
			Message:     f.Message,
			ViewURL:     permalink(f),
			Forwardable: true,
			HasImage:    rendered[f.ID],
		})
	}
	return out, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	posts, err := s.views(r.Context())
	if err != nil {
		s.fail(w, "读取动态失败", err)
		return
	}
	last, err := s.Store.Watermark(r.Context())
	if err != nil {
		s.fail(w, "读取更新时间失败", err)
		return
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{ForwardTo: s.ForwardTo, LastUpdate: last, Posts: posts}); err != nil {
		s.fail(w, "渲染页面失败", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleFeedsJSON 优先使用 zstd，其余情况交给外层 gzip 处理。
func (s *Server) handleFeedsJSON(w http.ResponseWriter, r *http.Request) {
	posts, err := s.views(r.Context())
	if err != nil {
		s.fail(w, "读取动态失败", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")
	if !acceptsZstd(r) {
		json.NewEncoder(w).Encode(posts)
		return
	}
	w.Header().Set("Content-Encoding", "zstd")
	zw, err := zstd.NewWriter(w)
	if err != nil {
		s.fail(w, "初始化 zstd 压缩失败", err)
		return
	}
	if err := json.NewEncoder(zw).Encode(posts); err != nil {
		s.logger().Printf("写入 feeds.json 失败: %v", err)
	}
	if err := zw.Close(); err != nil {
		s.logger().Printf("关闭 zstd 压缩失败: %v", err)
	}
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(name), "zstd") && strings.ReplaceAll(params, " ", "") != "q=0" {
			return true
		}
	}
	return false
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if s.Puller == nil {
		http.Error(w, "未配置拉取任务", http.StatusServiceUnavailable)
		return
	}
	sum, err := s.Puller.Pull(r.Context())
	if err != nil {
		s.fail(w, "拉取失败", err)
		return
	}
	s.logger().Printf("手动拉取：%d 条动态，发送 %d 封", sum.Fetched, sum.Sent)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Done")
}

func (s *Server) post(w http.ResponseWriter, r *http.Request) (store.Post, bool) {
	id := r.PathValue("id")
	p, err := s.Store.Post(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return store.Post{}, false
	}
	if err != nil {
		s.fail(w, "读取图片失败", err)
		return store.Post{}, false
	}
	return p, true
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.post(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Image)))
	w.Write(p.Image)
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	p, ok := s.post(w, r)
	if !ok {
		return
	}
	img, err := png.Decode(bytes.NewReader(p.Image))
	if err != nil {
		s.fail(w, "解码图片失败", err)
		return
	}
	size := s.ThumbSize
	if size <= 0 {
		size = DefaultThumbSize
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		s.fail(w, "编码缩略图失败", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	s.logger().Printf("%s: %v", msg, err)
	http.Error(w, msg, http.StatusInternalServerError)
}

func (s *Server) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}
