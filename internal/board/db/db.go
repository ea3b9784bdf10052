package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// DBTX は*sql.DBと*sql.Txの共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect はSQL方言を表す。
type Dialect int

const (
	// DialectSQLite はmodernc.org/sqliteを使うSQLite。
	DialectSQLite Dialect = iota
	// DialectPostgres はpgxを使うPostgreSQL。
	DialectPostgres
)

// String は方言名を返す。
func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// rebind はプレースホルダ ? を方言に合わせて書き換える。
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// containsExpr は列colが引数の部分文字列を含む条件式を返す。
// 大文字小文字は区別する。
func (d Dialect) containsExpr(col string) string {
	if d == DialectPostgres {
		return "strpos(" + col + ", ?) > 0"
	}
	return "instr(" + col + ", ?) > 0"
}

// Queries はusers/posts/eventsテーブルへのクエリを実行する。
type Queries struct {
	db      DBTX
	dialect Dialect
}

// New はDBTXに束縛されたQueriesを生成する。
func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// WithTx はトランザクションに束縛されたQueriesを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.dialect.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.dialect.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.dialect.rebind(query), args...)
}
