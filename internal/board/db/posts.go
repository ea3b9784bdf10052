package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const postColumns = `id, author_id, message, flag, created_at, updated_at`

// CreatePostParams はCreatePostの引数。
type CreatePostParams struct {
	ID        string
	AuthorID  string
	Message   string
	Flag      Flag
	CreatedAt time.Time
}

// CreatePost は投稿を作成する。
func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) error {
	created := arg.CreatedAt.UTC()
	_, err := q.exec(ctx,
		`INSERT INTO posts (id, author_id, message, flag, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.AuthorID, arg.Message, string(arg.Flag), created, created,
	)
	if err != nil {
		return classify(fmt.Errorf("投稿の作成に失敗: %w", err))
	}
	return nil
}

// GetPostByID はIDで投稿を取得する。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetPostByID(ctx context.Context, id string) (Post, error) {
	row := q.queryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// UpdatePostMessageParams はUpdatePostMessageの引数。
type UpdatePostMessageParams struct {
	ID        string
	Message   string
	UpdatedAt time.Time
}

// UpdatePostMessage は投稿の本文だけを更新する。公開範囲と作成者は変更しない。
func (q *Queries) UpdatePostMessage(ctx context.Context, arg UpdatePostMessageParams) error {
	res, err := q.exec(ctx,
		`UPDATE posts SET message = ?, updated_at = ? WHERE id = ?`,
		arg.Message, arg.UpdatedAt.UTC(), arg.ID,
	)
	if err != nil {
		return fmt.Errorf("投稿の更新に失敗: %w", err)
	}
	return requireOneRow(res)
}

// ListPostsParams はListPostsの絞り込み条件。
// 空文字列の条件は適用しない。
type ListPostsParams struct {
	// AuthorID は作成者IDでの絞り込み。
	AuthorID string
	// SubString は本文に含まれる部分文字列での絞り込み。
	SubString string
	// PrivateOf はこのユーザーが作成した非公開投稿も結果に含める。
	// 空の場合は公開投稿のみ。
	PrivateOf string
	Offset    int
	Limit     int
}

// ListPosts は条件に合う投稿を作成順に取得する。
func (q *Queries) ListPosts(ctx context.Context, arg ListPostsParams) ([]Post, error) {
	var (
		conds []string
		args  []any
	)
	if arg.AuthorID != "" {
		conds = append(conds, "author_id = ?")
		args = append(args, arg.AuthorID)
	}
	if arg.SubString != "" {
		conds = append(conds, q.dialect.containsExpr("message"))
		args = append(args, arg.SubString)
	}
	vis, visArgs := visibility(arg.PrivateOf)
	conds = append(conds, vis)
	args = append(args, visArgs...)
	args = append(args, arg.Limit, arg.Offset)

	query := `SELECT ` + postColumns + ` FROM posts WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at, id LIMIT ? OFFSET ?`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	return collectPosts(rows)
}

// ListPostsByAuthors は複数ユーザーの投稿を作成順にまとめて取得する。
// privateOfが空でなければ、そのユーザーの非公開投稿も含める。
func (q *Queries) ListPostsByAuthors(ctx context.Context, authorIDs []string, privateOf string) ([]Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(authorIDs)), ", ")
	args := make([]any, 0, len(authorIDs)+1)
	for _, id := range authorIDs {
		args = append(args, id)
	}
	vis, visArgs := visibility(privateOf)
	args = append(args, visArgs...)

	query := `SELECT ` + postColumns + ` FROM posts WHERE author_id IN (` + placeholders + `) AND ` + vis +
		` ORDER BY created_at, id`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ユーザー別投稿の取得に失敗: %w", err)
	}
	return collectPosts(rows)
}

// visibility は公開範囲の条件式を返す。
func visibility(privateOf string) (string, []any) {
	if privateOf == "" {
		return "flag = ?", []any{string(FlagPublic)}
	}
	return "(flag = ? OR (flag = ? AND author_id = ?))",
		[]any{string(FlagPublic), string(FlagPrivate), privateOf}
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	defer func() { _ = rows.Close() }()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanPost(row rowScanner) (Post, error) {
	var (
		p    Post
		flag string
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Message, &flag, &p.CreatedAt, &p.UpdatedAt)
	p.Flag = Flag(flag)
	return p, err
}

// requireOneRow は更新対象が存在しなかった場合にsql.ErrNoRowsを返す。
func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
