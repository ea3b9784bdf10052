package db

import (
	"context"
	"fmt"
	"time"
)

const userColumns = `id, name, api_key, created_at`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID        string
	Name      string
	APIKey    string
	CreatedAt time.Time
}

// CreateUser はユーザーを作成する。名前かAPIキーが重複する場合はErrUniqueViolationを返す。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.exec(ctx,
		`INSERT INTO users (id, name, api_key, created_at) VALUES (?, ?, ?, ?)`,
		arg.ID, arg.Name, arg.APIKey, arg.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("ユーザーの作成に失敗: %w", err))
	}
	return nil
}

// GetUserByID はIDでユーザーを取得する。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByName は名前でユーザーを取得する。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByName(ctx context.Context, name string) (User, error) {
	row := q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE name = ?`, name)
	return scanUser(row)
}

// UserNameExists は名前が既に使われているかどうかを返す。
func (q *Queries) UserNameExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("ユーザー名の確認に失敗: %w", err)
	}
	return n > 0, nil
}

// RenameUserParams はRenameUserの引数。
type RenameUserParams struct {
	ID   string
	Name string
}

// RenameUser はユーザー名を変更する。
func (q *Queries) RenameUser(ctx context.Context, arg RenameUserParams) error {
	res, err := q.exec(ctx, `UPDATE users SET name = ? WHERE id = ?`, arg.Name, arg.ID)
	if err != nil {
		return classify(fmt.Errorf("ユーザー名の更新に失敗: %w", err))
	}
	return requireOneRow(res)
}

// UpdateAPIKeyParams はUpdateAPIKeyの引数。
type UpdateAPIKeyParams struct {
	ID     string
	APIKey string
}

// UpdateAPIKey はAPIキーを置き換える。
func (q *Queries) UpdateAPIKey(ctx context.Context, arg UpdateAPIKeyParams) error {
	res, err := q.exec(ctx, `UPDATE users SET api_key = ? WHERE id = ?`, arg.APIKey, arg.ID)
	if err != nil {
		return classify(fmt.Errorf("APIキーの更新に失敗: %w", err))
	}
	return requireOneRow(res)
}

// ListUsersParams はListUsersの引数。
type ListUsersParams struct {
	Offset int
	Limit  int
}

// ListUsers は作成順にユーザーを取得する。
func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.APIKey, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.APIKey, &u.CreatedAt)
	return u, err
}
