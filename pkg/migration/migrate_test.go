package migration

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRun はマイグレーションの適用順序と冪等性を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_column.up.sql": {Data: []byte("ALTER TABLE items ADD COLUMN note TEXT NOT NULL DEFAULT '';")},
		"migrations/000001_create.up.sql":     {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"migrations/README.md":                {Data: []byte("ignored")},
	}

	t.Run("バージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(t.Context(), db, fsys, "migrations"); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if _, err := db.Exec("INSERT INTO items (id, note) VALUES (1, 'x')"); err != nil {
			t.Errorf("2番目のマイグレーションが適用されていない: %v", err)
		}
	})

	t.Run("2回実行しても失敗しないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(t.Context(), db, fsys, "migrations"); err != nil {
			t.Fatalf("1回目のRun() error = %v", err)
		}
		if err := Run(t.Context(), db, fsys, "migrations"); err != nil {
			t.Fatalf("2回目のRun() error = %v", err)
		}

		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
			t.Fatalf("件数取得に失敗: %v", err)
		}
		if n != 2 {
			t.Errorf("適用済み件数 = %d, want 2", n)
		}
	})

	t.Run("不正なSQLはエラーになること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		bad := fstest.MapFS{
			"m/000001_bad.up.sql": {Data: []byte("CREATE TABLE;")},
		}
		if err := Run(t.Context(), db, bad, "m"); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}
