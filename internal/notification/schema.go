package notification

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/nao1215/pushrelay/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB はSQLiteデータベースを開き、スキーマを適用する。
// インメモリDBは接続ごとに別のDBになるため、接続数は1に固定する。
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "データベース接続に失敗")
	}
	db.SetMaxOpenConns(1)

	if err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "スキーマ初期化に失敗")
	}
	return db, nil
}
