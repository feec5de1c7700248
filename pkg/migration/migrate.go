// Package migration はSQLiteデータベースのスキーマ適用を管理する。
// embed.FSからSQLファイルを読み込み、バージョン管理テーブルで適用状態を追跡する。
package migration

import (
	"cmp"
	"context"
	"database/sql"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Run はembedされたマイグレーションファイルを順序通りに適用する。
// 未適用のものだけを実行する。ファイル名形式: 000001_description.up.sql
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return errors.Wrap(err, "マイグレーション管理テーブルの作成に失敗")
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return errors.Wrap(err, "適用済みバージョンの取得に失敗")
	}

	files, err := collect(fsys, dir)
	if err != nil {
		return errors.Wrap(err, "マイグレーションファイルの収集に失敗")
	}

	for _, f := range files {
		if applied[f.version] {
			continue
		}
		if err := apply(ctx, db, fsys, f); err != nil {
			return errors.Wrapf(err, "マイグレーション %06d の適用に失敗", f.version)
		}
		log.WithFields(log.Fields{"version": f.version, "name": f.name}).Debug("[Migration] マイグレーションを適用しました")
	}
	return nil
}

// file は1つのup.sqlファイルを表す。
type file struct {
	version int
	name    string
	path    string
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// collect はdir直下のup.sqlファイルをバージョン順に返す。
func collect(fsys fs.FS, dir string) ([]file, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []file
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		files = append(files, file{
			version: version,
			name:    strings.TrimSuffix(rest, ".up.sql"),
			path:    path.Join(dir, entry.Name()),
		})
	}

	slices.SortFunc(files, func(a, b file) int { return cmp.Compare(a.version, b.version) })
	return files, nil
}

// apply は1つのマイグレーションをトランザクション内で適用する。
func apply(ctx context.Context, db *sql.DB, fsys fs.FS, f file) error {
	content, err := fs.ReadFile(fsys, f.path)
	if err != nil {
		return errors.Wrap(err, "ファイル読み込みに失敗")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "トランザクション開始に失敗")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return errors.Wrap(err, "SQL実行に失敗")
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", f.version); err != nil {
		return errors.Wrap(err, "バージョン記録に失敗")
	}
	return tx.Commit()
}
