// Package pipeline 串联拉取、存储、渲染与投递。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/logicfeed/binding"
	"github.com/ByLCY/logicfeed/catalog"
	"github.com/ByLCY/logicfeed/delivery"
	"github.com/ByLCY/logicfeed/feed"
	"github.com/ByLCY/logicfeed/layout"
	"github.com/ByLCY/logicfeed/renderer"
	"github.com/ByLCY/logicfeed/store"
)

// PermalinkFormat 拼接动态的永久链接，参数依次为动态 ID 与用户 ID。
const PermalinkFormat = "https://www.facebook.com/permalink.php?story_fbid=%s&id=%s"

// Store 是流水线需要的持久化能力。
type Store interface {
	AdvanceWatermark(ctx context.Context, now time.Time) (time.Time, error)
	SaveFeeds(ctx context.Context, posts []feed.Post) error
	SavePost(ctx context.Context, p store.Post) error
}

// BackgroundLoader 按 src 解码背景图片。
type BackgroundLoader interface {
	Background(src string) (image.Image, error)
}

// Template 是邮件主题与正文模板，可引用 ${post.id}、${post.message}、
// ${post.permalink}、${post.created_time}。
type Template struct {
	Subject string
	Body    string
}

// Pipeline 的字段在 Pull 运行期间不可修改。
type Pipeline struct {
	Source      feed.Source
	UserID      string
	Store       Store
	Catalog     catalog.Catalog
	Base        layout.Style
	Renderer    renderer.Renderer
	Backgrounds BackgroundLoader
	Sender      delivery.Sender
	Mail        Template
	// Workers 为并发渲染数，<=0 时为 4。
	Workers int
	Logger  *log.Logger
	Rand    *rand.Rand
	Now     func() time.Time

	mu sync.Mutex
}

// Summary 汇总一次拉取的结果。
type Summary struct {
	Fetched  int
	Rendered int
	Skipped  int
	Sent     int
}

type job struct {
	post       feed.Post
	candidates []catalog.Candidate
}

// Pull 执行一次完整流程：推进水位、拉取新动态、保存、渲染并按动态顺序逐条发送。
// 所有候选样式都放不下的动态会被记录并跳过；资源、存储与投递错误会中止本次拉取。
// 目录中没有背景时直接返回 catalog.ErrNoBackgrounds，水位保持不变。
// 并发调用会被串行化。
func (p *Pipeline) Pull(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sum Summary
	// 水位一旦推进，本轮动态不会再被拉取，必须先确认能够渲染。
	if err := p.Catalog.Usable(); err != nil {
		return sum, err
	}
	since, err := p.Store.AdvanceWatermark(ctx, p.now())
	if err != nil {
		return sum, err
	}
	posts, err := p.Source.Posts(ctx, p.UserID, since)
	if err != nil {
		return sum, fmt.Errorf("拉取动态失败: %w", err)
	}
	sum.Fetched = len(posts)
	if len(posts) == 0 {
		return sum, nil
	}
	if err := p.Store.SaveFeeds(ctx, posts); err != nil {
		return sum, err
	}

	// 随机源不是并发安全的，先在当前 goroutine 中为每条动态排好候选顺序。
	jobs := make([]job, len(posts))
	for i, post := range posts {
		jobs[i] = job{post: post, candidates: p.Catalog.Candidates(p.Rand, p.Base)}
		if len(jobs[i].candidates) == 0 {
			return sum, fmt.Errorf("动态 %s 没有可用的候选样式: %w", post.ID, catalog.ErrNoBackgrounds)
		}
	}

	results := make([]*store.Post, len(jobs))
	bgs := &backgroundCache{loader: p.Backgrounds, images: map[string]image.Image{}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rendered, err := p.render(jobs[i], bgs)
			if err != nil {
				return err
			}
			results[i] = rendered
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	for i, rendered := range results {
		if rendered == nil {
			sum.Skipped++
			p.logger().Printf("动态 %s 在所有候选样式下都放不下，已跳过", jobs[i].post.ID)
			continue
		}
		if err := p.Store.SavePost(ctx, *rendered); err != nil {
			return sum, err
		}
		sum.Rendered++
	}

	for i, rendered := range results {
		if rendered == nil {
			continue
		}
		if err := p.Sender.Send(ctx, p.message(jobs[i].post, rendered)); err != nil {
			return sum, err
		}
		sum.Sent++
	}
	return sum, nil
}

// render 依次尝试候选样式，返回第一个放得下的结果；全部放不下时返回 nil。
func (p *Pipeline) render(j job, bgs *backgroundCache) (*store.Post, error) {
	for _, c := range j.candidates {
		bg, err := bgs.get(c.Background.Src)
		if err != nil {
			return nil, err
		}
		out, err := p.Renderer.Render(j.post.Message, bg, c.Style)
		if errors.Is(err, layout.ErrDoesNotFit) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("渲染动态 %s 失败: %w", j.post.ID, err)
		}
		return &store.Post{
			ID:          j.post.ID,
			Text:        j.post.Message,
			Background:  c.Background.Name,
			Style:       c.Style,
			Image:       out,
			CreatedTime: j.post.CreatedTime,
		}, nil
	}
	return nil, nil
}

func (p *Pipeline) message(post feed.Post, rendered *store.Post) delivery.Message {
	data := map[string]any{"post": map[string]any{
		"id":           post.ID,
		"story_id":     post.StoryID(),
		"message":      post.Message,
		"permalink":    p.Permalink(post),
		"created_time": post.CreatedTime.Format(time.RFC3339),
	}}
	return delivery.Message{
		Subject:    binding.Interpolate(p.Mail.Subject, data),
		Body:       binding.Interpolate(p.Mail.Body, data),
		Attachment: &delivery.Attachment{Name: post.StoryID() + ".png", Data: rendered.Image},
	}
}

// Permalink 返回动态的永久链接。
func (p *Pipeline) Permalink(post feed.Post) string {
	return fmt.Sprintf(PermalinkFormat, post.StoryID(), p.UserID)
}

// Run 立即拉取一次，之后每隔 interval 拉取；单次失败只记录日志。
// ctx 取消时返回 ctx.Err()。
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("轮询间隔必须为正数: %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sum, err := p.Pull(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			p.logger().Printf("拉取失败: %v", err)
		case sum.Fetched > 0:
			p.logger().Printf("拉取到 %d 条动态，渲染 %d 条，跳过 %d 条，发送 %d 封", sum.Fetched, sum.Rendered, sum.Skipped, sum.Sent)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return 4
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// backgroundCache 在一次拉取内复用已解码的背景。
type backgroundCache struct {
	loader BackgroundLoader
	mu     sync.Mutex
	images map[string]image.Image
}

func (c *backgroundCache) get(src string) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img, ok := c.images[src]; ok {
		return img, nil
	}
	img, err := c.loader.Background(src)
	if err != nil {
		return nil, err
	}
	c.images[src] = img
	return img, nil
}
