package feed

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Stream 按 interval 轮询 src，把晚于水位的动态依次交给 fn。
// since 为零值时从当前时间开始；每轮把水位推进到最新一条动态的时间。
// 返回 ctx 的错误、src 的错误或 fn 的错误。
func Stream(ctx context.Context, src Source, userID string, since time.Time, interval time.Duration, fn func(Post) error) error {
	if interval <= 0 {
		return fmt.Errorf("feed: 轮询间隔必须为正数: %s", interval)
	}
	watermark := since
	if watermark.IsZero() {
		watermark = time.Now().UTC()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		posts, err := src.Posts(ctx, userID, watermark)
		if err != nil {
			return err
		}
		if len(posts) > 0 {
			watermark = posts[0].CreatedTime
			for _, p := range posts {
				if err := fn(p); err != nil {
					return err
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var startTimeFormats = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`^\d{4}$`), "2006"},
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "2006-01"},
	{regexp.MustCompile(`^\d{2}-\d{2}$`), "01-02"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}$`), "2006-01-02T15"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}$`), "2006-01-02T15:04"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`), "2006-01-02T15:04:05"},
}

// ParseStartTime 解析命令行中的起始时间，按 UTC 处理。
// 支持 YYYY、YYYY-MM、MM-DD（年份为 0）、YYYY-MM-DD 以及精确到时/分/秒的 YYYY-MM-DDTHH[:MM[:SS]]。
func ParseStartTime(value string) (time.Time, error) {
	for _, f := range startTimeFormats {
		if f.pattern.MatchString(value) {
			t, err := time.Parse(f.layout, value)
			if err != nil {
				return time.Time{}, fmt.Errorf("%s 不是有效的起始时间: %w", value, err)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s 不是有效的起始时间", value)
}
