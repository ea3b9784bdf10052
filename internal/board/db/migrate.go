package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/nao1215/postboard/pkg/migration"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate は埋め込まれたマイグレーションを適用する。
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("マイグレーションの読み込みに失敗: %w", err)
	}

	dialect := migration.DialectSQLite
	if s.dialect == DialectPostgres {
		dialect = migration.DialectPostgres
	}
	if _, err := migration.Run(ctx, s.db, dialect, fsys); err != nil {
		return err
	}
	return nil
}
