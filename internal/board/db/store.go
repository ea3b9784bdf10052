package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrUniqueViolation は一意性制約違反を表す。
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrUnknownDriver は未対応のドライバ名を表す。
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Store はデータベース接続を保持し、トランザクション単位の処理を提供する。
type Store struct {
	db      *sql.DB
	dialect Dialect
	queries *Queries
}

// Open はドライバ名とDSNからStoreを生成し、マイグレーションを適用する。
// driverには "sqlite" または "pgx" を指定する。
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		sqlDB   *sql.DB
		dialect Dialect
		err     error
	)
	switch driver {
	case "sqlite":
		dialect = DialectSQLite
		sqlDB, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		// 書き込みは1本の接続に直列化する
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	case "pgx":
		dialect = DialectPostgres
		sqlDB, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	s := NewStore(sqlDB, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// NewStore は既存の接続からStoreを生成する。マイグレーションは行わない。
func NewStore(sqlDB *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      sqlDB,
		dialect: dialect,
		queries: New(sqlDB, dialect),
	}
}

// sqliteDSN は外部キー制約・ビジータイムアウト・即時ロックのトランザクションを有効にしたDSNを返す。
func sqliteDSN(dsn string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Queries はトランザクション外で使うQueriesを返す。
func (s *Store) Queries() *Queries {
	return s.queries
}

// Dialect はSQL方言を返す。
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx はfnを1つのトランザクション内で実行する。
// fnがエラーを返すかパニックした場合はロールバックし、それ以外はコミットする。
// パニックは再送出する。コミット時の一意性制約違反はErrUniqueViolationとして返す。
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = classify(fmt.Errorf("コミットに失敗: %w", cerr))
		}
	}()

	return fn(s.queries.WithTx(tx))
}

// classify はドライバ固有の一意性制約違反をErrUniqueViolationで包む。
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUniqueViolation) {
		return err
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
