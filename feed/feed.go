// Package feed 从 Graph API 拉取指定用户的公开动态。
//
// 动态按时间倒序返回；拉取在遇到第一条不晚于水位（watermark）的动态时停止，
// 并只保留 type 为 status 的纯文本动态。
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TimeLayout 是 Graph API created_time 字段的格式，例如 2014-03-02T10:04:05+0000。
const TimeLayout = "2006-01-02T15:04:05-0700"

// DefaultBaseURL 为 Graph API 地址。
const DefaultBaseURL = "https://graph.facebook.com"

// Post 是一条动态；Message 已做 NFC 规范化。
type Post struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	CreatedTime time.Time `json:"created_time"`
}

// Source 提供晚于 since 的动态，按时间倒序。
type Source interface {
	Posts(ctx context.Context, userID string, since time.Time) ([]Post, error)
}

// Session 携带访问凭据，显式传入 Client，不使用任何全局状态。
type Session struct {
	AccessToken string
	Scope       []string
}

// Client 是 Graph API 的最小客户端。
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session Session
	// MaxPages 限制单次拉取的翻页次数，<=0 表示不限制。
	MaxPages int
}

var _ Source = (*Client)(nil)

// NewClient 使用默认地址与 30 秒超时创建客户端。
func NewClient(session Session) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Session: session,
	}
}

// APIError 表示 Graph API 返回了非 2xx 状态。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Graph API 返回状态 %d", e.StatusCode)
	}
	return fmt.Sprintf("Graph API 返回状态 %d: %s", e.StatusCode, e.Message)
}

type rawPost struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
}

type page struct {
	Data   []rawPost `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Posts 返回 userID 晚于 since 的 status 动态，保持 API 返回的倒序。
func (c *Client) Posts(ctx context.Context, userID string, since time.Time) ([]Post, error) {
	if userID == "" {
		return nil, fmt.Errorf("feed: 缺少用户 ID")
	}
	next, err := c.firstPageURL(userID)
	if err != nil {
		return nil, err
	}

	var posts []Post
	for pages := 0; next != ""; pages++ {
		if c.MaxPages > 0 && pages >= c.MaxPages {
			break
		}
		p, err := c.fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, raw := range p.Data {
			post, err := raw.decode()
			if err != nil {
				return nil, err
			}
			if !post.CreatedTime.After(since) {
				return posts, nil
			}
			if post.Type == "status" {
				posts = append(posts, post)
			}
		}
		next = p.Paging.Next
	}
	return posts, nil
}

func (c *Client) firstPageURL(userID string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + url.PathEscape(userID) + "/posts")
	if err != nil {
		return "", fmt.Errorf("feed: 无法构造请求地址: %w", err)
	}
	q := u.Query()
	if c.Session.AccessToken != "" {
		q.Set("access_token", c.Session.AccessToken)
	}
	q.Set("fields", "id,type,message,created_time")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: 构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: 请求 Graph API 失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("feed: 读取响应失败: %w", err)
	}
	var p page
	decodeErr := json.Unmarshal(body, &p)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && p.Error != nil {
			apiErr.Message = p.Error.Message
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("feed: 解析响应失败: %w", decodeErr)
	}
	return &p, nil
}

func (r rawPost) decode() (Post, error) {
	created, err := time.Parse(TimeLayout, r.CreatedTime)
	if err != nil {
		return Post{}, fmt.Errorf("feed: 动态 %s 的 created_time %q 无法解析: %w", r.ID, r.CreatedTime, err)
	}
	return Post{
		ID:          r.ID,
		Type:        r.Type,
		Message:     norm.NFC.String(r.Message),
		CreatedTime: created.UTC(),
	}, nil
}

// StoryID 返回动态 ID 中 "用户_动态" 的动态部分，用于拼接永久链接。
func (p Post) StoryID() string {
	if _, story, ok := strings.Cut(p.ID, "_"); ok {
		return story
	}
	return p.ID
}
