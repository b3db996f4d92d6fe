// Package store 使用 SQLite 保存抓取到的动态、更新水位与已渲染的图片。
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ByLCY/logicfeed/feed"
	"github.com/ByLCY/logicfeed/layout"
)

// ErrNotFound 表示按 ID 查询的记录不存在。
var ErrNotFound = errors.New("记录不存在")

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	id           TEXT PRIMARY KEY,
	text         TEXT NOT NULL,
	created_time INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS last_update (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	timestamp INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
	id           TEXT PRIMARY KEY,
	text         TEXT NOT NULL,
	background   TEXT NOT NULL,
	style        TEXT NOT NULL,
	image        BLOB NOT NULL,
	created_time INTEGER NOT NULL
);
`

// Post 是一张已渲染的图片及其渲染参数。
type Post struct {
	ID          string
	Text        string
	Background  string
	Style       layout.Style
	Image       []byte
	CreatedTime time.Time
}

// Store 封装 *sql.DB；所有方法可并发调用。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件并初始化表结构。
// 首次创建时水位初始化为 now，与“只转发之后的新动态”一致。
func Open(ctx context.Context, path string, now time.Time) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库 %s 失败: %w", path, err)
	}
	// SQLite 只允许单个写者。
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO last_update (id, timestamp) VALUES (1, ?)`, now.UnixNano()); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化更新水位失败: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库。
func (s *Store) Close() error { return s.db.Close() }

// SaveFeeds 保存动态；已存在的 ID 保持不变。
func (s *Store) SaveFeeds(ctx context.Context, posts []feed.Post) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO feeds (id, text, created_time) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()
	for _, p := range posts {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Message, p.CreatedTime.UnixNano()); err != nil {
			return fmt.Errorf("保存动态 %s 失败: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// Feeds 返回全部动态，按时间倒序。
func (s *Store) Feeds(ctx context.Context) ([]feed.Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, created_time FROM feeds ORDER BY created_time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("查询动态失败: %w", err)
	}
	defer rows.Close()

	var out []feed.Post
	for rows.Next() {
		var (
			p       feed.Post
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Message, &created); err != nil {
			return nil, fmt.Errorf("读取动态失败: %w", err)
		}
		p.Type = "status"
		p.CreatedTime = time.Unix(0, created).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Watermark 返回当前水位。
func (s *Store) Watermark(ctx context.Context) (time.Time, error) {
	var ts int64
	if err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM last_update WHERE id = 1`).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("读取更新水位失败: %w", err)
	}
	return time.Unix(0, ts).UTC(), nil
}

// AdvanceWatermark 在同一事务中读取旧水位并写入 now，返回旧水位。
func (s *Store) AdvanceWatermark(ctx context.Context, now time.Time) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var prev int64
	if err := tx.QueryRowContext(ctx, `SELECT timestamp FROM last_update WHERE id = 1`).Scan(&prev); err != nil {
		return time.Time{}, fmt.Errorf("读取更新水位失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE last_update SET timestamp = ? WHERE id = 1`, now.UnixNano()); err != nil {
		return time.Time{}, fmt.Errorf("写入更新水位失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("提交事务失败: %w", err)
	}
	return time.Unix(0, prev).UTC(), nil
}

// SavePost 保存或覆盖一张已渲染的图片。
func (s *Store) SavePost(ctx context.Context, p Post) error {
	style, err := json.Marshal(p.Style)
	if err != nil {
		return fmt.Errorf("序列化样式失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO posts (id, text, background, style, image, created_time) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Text, p.Background, string(style), p.Image, p.CreatedTime.UnixNano())
	if err != nil {
		return fmt.Errorf("保存图片 %s 失败: %w", p.ID, err)
	}
	return nil
}

// Post 按 ID 查询已渲染的图片。
func (s *Store) Post(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, background, style, image, created_time FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, fmt.Errorf("图片 %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Post{}, fmt.Errorf("查询图片 %s 失败: %w", id, err)
	}
	return p, nil
}

// PostIDs 返回已有渲染图片的动态 ID，不读取图片内容。
func (s *Store) PostIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("查询图片失败: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("读取图片 ID 失败: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func scanPost(row *sql.Row) (Post, error) {
	var (
		p       Post
		style   string
		created int64
	)
	if err := row.Scan(&p.ID, &p.Text, &p.Background, &style, &p.Image, &created); err != nil {
		return Post{}, err
	}
	if err := json.Unmarshal([]byte(style), &p.Style); err != nil {
		return Post{}, fmt.Errorf("解析样式失败: %w", err)
	}
	p.CreatedTime = time.Unix(0, created).UTC()
	return p, nil
}
