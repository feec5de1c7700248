package notification

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound は指定IDの通知が存在しないことを表す。
var ErrNotFound = errors.New("通知が見つかりません")

// dbtx はStoreが使う*sql.DBの操作。
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store は通知フィードを保持する。挿入順がそのまま表示順になる。
// 通知は削除されない。
type Store struct {
	// db はSQLiteデータベース接続。
	db dbtx
	// now は現在時刻を返す。
	now func() time.Time
}

// NewStore はスキーマ適用済みのdbを使うStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const selectColumns = `SELECT id, message, is_read, delivery_status, created_at FROM notifications`

// Append は未読・配信前の通知を末尾に追加し、作成したレコードを返す。
func (s *Store) Append(ctx context.Context, message string) (Notification, error) {
	createdAt := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (message, is_read, delivery_status, created_at) VALUES (?, 0, ?, ?)`,
		message, string(DeliveryPending), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Notification{}, errors.Wrap(err, "通知の追加に失敗")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Notification{}, errors.Wrap(err, "通知IDの取得に失敗")
	}

	return Notification{
		ID:             formatID(id),
		Message:        message,
		Read:           false,
		DeliveryStatus: DeliveryPending,
		CreatedAt:      createdAt,
	}, nil
}

// List は全通知を挿入順に返す。
func (s *Store) List(ctx context.Context) ([]Notification, error) {
	return s.query(ctx, selectColumns+` ORDER BY id`)
}

// ListUnread は未読の通知を挿入順に返す。
func (s *Store) ListUnread(ctx context.Context) ([]Notification, error) {
	return s.query(ctx, selectColumns+` WHERE is_read = 0 ORDER BY id`)
}

// Get は指定IDの通知を返す。存在しなければErrNotFound。
func (s *Store) Get(ctx context.Context, id string) (Notification, error) {
	n, ok := parseID(id)
	if !ok {
		return Notification{}, errors.Wrapf(ErrNotFound, "id=%s", id)
	}

	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, n)
	notification, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	if err != nil {
		return Notification{}, errors.Wrap(err, "通知の取得に失敗")
	}
	return notification, nil
}

// MarkRead は指定IDの通知を既読にして返す。既読済みでもエラーにならない。
func (s *Store) MarkRead(ctx context.Context, id string) (Notification, error) {
	n, ok := parseID(id)
	if !ok {
		return Notification{}, errors.Wrapf(ErrNotFound, "id=%s", id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "通知の既読処理に失敗")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Notification{}, errors.Wrap(err, "更新件数の取得に失敗")
	}
	if affected == 0 {
		return Notification{}, errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	return s.Get(ctx, id)
}

// MarkAllRead は未読の通知をすべて既読にし、更新件数を返す。
func (s *Store) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, errors.Wrap(err, "全通知の既読処理に失敗")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "更新件数の取得に失敗")
	}
	return affected, nil
}

// SetDeliveryStatus は指定IDの通知の配信状態を更新する。
func (s *Store) SetDeliveryStatus(ctx context.Context, id string, status DeliveryStatus) error {
	if !status.Valid() {
		return errors.Errorf("不正な配信状態: %q", status)
	}
	n, ok := parseID(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "id=%s", id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET delivery_status = ? WHERE id = ?`, string(status), n)
	if err != nil {
		return errors.Wrap(err, "配信状態の更新に失敗")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "更新件数の取得に失敗")
	}
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "通知一覧の取得に失敗")
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "通知の読み取りに失敗")
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// scanner は*sql.Rowと*sql.Rowsの共通部分。
type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(sc scanner) (Notification, error) {
	var (
		id        int64
		n         Notification
		isRead    int
		status    string
		createdAt string
	)
	if err := sc.Scan(&id, &n.Message, &isRead, &status, &createdAt); err != nil {
		return Notification{}, err
	}
	n.ID = formatID(id)
	n.Read = isRead != 0
	n.DeliveryStatus = DeliveryStatus(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		n.CreatedAt = t.UTC()
	}
	return n, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseID は外部から渡されたIDを内部の整数IDに変換する。
func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
