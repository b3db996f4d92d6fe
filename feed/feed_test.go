package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func graphServer(t *testing.T, pages map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "tok" && r.URL.Query().Get("page") == "" {
			t.Errorf("missing access token, got %q", got)
		}
		key := r.URL.Path
		if p := r.URL.Query().Get("page"); p != "" {
			key += "?page=" + p
		}
		body, ok := pages[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		data, _ := json.Marshal(body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, strings.ReplaceAll(string(data), "HOST", srv.URL))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rawPage(next string, posts ...map[string]string) map[string]any {
	data := make([]any, 0, len(posts))
	for _, p := range posts {
		data = append(data, p)
	}
	return map[string]any{"data": data, "paging": map[string]string{"next": next}}
}

func status(id, created, msg string) map[string]string {
	return map[string]string{"id": id, "type": "status", "created_time": created, "message": msg}
}

func TestClientPostsFollowsPagingAndStopsAtWatermark(t *testing.T) {
	srv := graphServer(t, map[string]any{
		"/1001/posts": rawPage("HOST/1001/posts?page=2",
			status("1001_5", "2014-03-05T10:00:00+0000", "five"),
			map[string]string{"id": "1001_4", "type": "photo", "created_time": "2014-03-04T10:00:00+0000"},
		),
		"/1001/posts?page=2": rawPage("HOST/1001/posts?page=3",
			status("1001_3", "2014-03-03T10:00:00+0000", "three"),
			status("1001_2", "2014-03-02T10:00:00+0000", "two"),
		),
		"/1001/posts?page=3": rawPage("",
			status("1001_1", "2014-03-01T10:00:00+0000", "one"),
		),
	})

	c := NewClient(Session{AccessToken: "tok"})
	c.BaseURL = srv.URL
	since := time.Date(2014, 3, 2, 10, 0, 0, 0, time.UTC)
	posts, err := c.Posts(context.Background(), "1001", since)
	if err != nil {
		t.Fatalf("Posts error: %v", err)
	}
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	// 1001_2 恰好等于水位，不再返回；照片动态被过滤。
	if want := []string{"1001_5", "1001_3"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if posts[0].Message != "five" || !posts[0].CreatedTime.Equal(time.Date(2014, 3, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first post: %+v", posts[0])
	}
}

func TestClientMaxPages(t *testing.T) {
	srv := graphServer(t, map[string]any{
		"/1/posts":        rawPage("HOST/1/posts?page=2", status("1_2", "2014-03-02T10:00:00+0000", "b")),
		"/1/posts?page=2": rawPage("", status("1_1", "2014-03-01T10:00:00+0000", "a")),
	})
	c := NewClient(Session{AccessToken: "tok"})
	c.BaseURL = srv.URL
	c.MaxPages = 1
	posts, err := c.Posts(context.Background(), "1", time.Time{})
	if err != nil {
		t.Fatalf("Posts error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected a single page, got %d posts", len(posts))
	}
}

func TestClientNormalizesMessage(t *testing.T) {
	srv := graphServer(t, map[string]any{
		"/1/posts": rawPage("", status("1_1", "2014-03-01T10:00:00+0800", "cafe\u0301")),
	})
	c := NewClient(Session{AccessToken: "tok"})
	c.BaseURL = srv.URL
	posts, err := c.Posts(context.Background(), "1", time.Time{})
	if err != nil {
		t.Fatalf("Posts error: %v", err)
	}
	if posts[0].Message != "caf\u00e9" {
		t.Fatalf("message not NFC-normalized: %q", posts[0].Message)
	}
	if want := time.Date(2014, 3, 1, 2, 0, 0, 0, time.UTC); !posts[0].CreatedTime.Equal(want) {
		t.Fatalf("created time = %v, want %v", posts[0].CreatedTime, want)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid OAuth access token."}}`)
	}))
	defer srv.Close()
	c := NewClient(Session{AccessToken: "bad"})
	c.BaseURL = srv.URL
	_, err := c.Posts(context.Background(), "1", time.Time{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Message != "Invalid OAuth access token." {
		t.Fatalf("unexpected API error: %+v", apiErr)
	}
}

func TestClientBadCreatedTime(t *testing.T) {
	srv := graphServer(t, map[string]any{
		"/1/posts": rawPage("", status("1_1", "yesterday", "x")),
	})
	c := NewClient(Session{AccessToken: "tok"})
	c.BaseURL = srv.URL
	if _, err := c.Posts(context.Background(), "1", time.Time{}); err == nil {
		t.Fatalf("expected error for malformed created_time")
	}
}

func TestStoryID(t *testing.T) {
	if got := (Post{ID: "100_200"}).StoryID(); got != "200" {
		t.Fatalf("StoryID = %s", got)
	}
	if got := (Post{ID: "300"}).StoryID(); got != "300" {
		t.Fatalf("StoryID = %s", got)
	}
}
