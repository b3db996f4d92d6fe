package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ByLCY/logicfeed/feed"
	"github.com/ByLCY/logicfeed/layout"
)

func openTemp(t *testing.T, now time.Time) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "feed.db"), now)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFeedsInsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, time.Now())
	t1 := time.Date(2014, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	if err := s.SaveFeeds(ctx, []feed.Post{
		{ID: "1_1", Message: "first", CreatedTime: t1},
		{ID: "1_2", Message: "second", CreatedTime: t2},
	}); err != nil {
		t.Fatalf("SaveFeeds failed: %v", err)
	}
	if err := s.SaveFeeds(ctx, []feed.Post{{ID: "1_1", Message: "changed", CreatedTime: t1}}); err != nil {
		t.Fatalf("SaveFeeds failed: %v", err)
	}

	feeds, err := s.Feeds(ctx)
	if err != nil {
		t.Fatalf("Feeds failed: %v", err)
	}
	if len(feeds) != 2 || feeds[0].ID != "1_2" || feeds[1].Message != "first" {
		t.Fatalf("unexpected feeds: %+v", feeds)
	}
	if !feeds[1].CreatedTime.Equal(t1) {
		t.Fatalf("created time = %v, want %v", feeds[1].CreatedTime, t1)
	}
}

func TestAdvanceWatermark(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC)
	s := openTemp(t, start)

	if w, err := s.Watermark(ctx); err != nil || !w.Equal(start) {
		t.Fatalf("Watermark = %v, %v", w, err)
	}
	next := start.Add(5 * time.Minute)
	prev, err := s.AdvanceWatermark(ctx, next)
	if err != nil || !prev.Equal(start) {
		t.Fatalf("AdvanceWatermark = %v, %v", prev, err)
	}
	if w, _ := s.Watermark(ctx); !w.Equal(next) {
		t.Fatalf("watermark not stored: %v", w)
	}
}

func TestReopenKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feed.db")
	first := time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := Open(ctx, path, first)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path, first.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if w, _ := s.Watermark(ctx); !w.Equal(first) {
		t.Fatalf("reopening must not reset the watermark, got %v", w)
	}
}

func TestPosts(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, time.Now())
	style := layout.DefaultStyle()
	style.Font = layout.FontResource{Name: "gobold", Src: "embed:gobold"}
	style.MaxLineWidth = 380

	p := Post{
		ID:          "1_1",
		Text:        "hello",
		Background:  "classic",
		Style:       style,
		Image:       []byte{0x89, 'P', 'N', 'G'},
		CreatedTime: time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SavePost(ctx, p); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}
	got, err := s.Post(ctx, "1_1")
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if got.Style != style || got.Background != "classic" || !bytes.Equal(got.Image, p.Image) {
		t.Fatalf("unexpected post: %+v", got)
	}
	if _, err := s.Post(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p.ID = "1_2"
	p.CreatedTime = p.CreatedTime.Add(time.Hour)
	if err := s.SavePost(ctx, p); err != nil {
		t.Fatal(err)
	}
	ids, err := s.PostIDs(ctx)
	if err != nil || len(ids) != 2 || !ids["1_1"] || !ids["1_2"] || ids["missing"] {
		t.Fatalf("PostIDs = %v, %v", ids, err)
	}
}
