// Package migration はembed.FSに同梱したSQLマイグレーションをgooseで適用する。
// ファイル名形式: 00001_description.sql（-- +goose Up / -- +goose Down で区切る）
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Dialect はマイグレーション対象のSQL方言を表す。
type Dialect string

const (
	// DialectSQLite はSQLiteを表す。
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres はPostgreSQLを表す。
	DialectPostgres Dialect = "postgres"
)

// ErrUnknownDialect は未対応の方言を表す。
var ErrUnknownDialect = errors.New("unknown migration dialect")

// Run は未適用のマイグレーションを順序通りに適用し、今回適用したバージョンを返す。
// 適用済みのものはスキップする。gooseは専用テーブルで適用状態を追跡する。
func Run(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS) ([]int64, error) {
	var gd goose.Dialect
	switch dialect {
	case DialectSQLite:
		gd = goose.DialectSQLite3
	case DialectPostgres:
		gd = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの準備に失敗: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}
