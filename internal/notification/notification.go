package notification

import "time"

// DeliveryStatus は通知の配信状態。
type DeliveryStatus string

const (
	// DeliveryPending は配信前（待機中または送信中）を表す。
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryDelivered はゲートウェイへの送信が成功したことを表す。
	DeliveryDelivered DeliveryStatus = "delivered"
	// DeliveryFailed はゲートウェイへの送信が失敗したことを表す。
	DeliveryFailed DeliveryStatus = "failed"
)

// Valid は既知の配信状態であればtrueを返す。
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// Notification はフィード上の1件の通知。
type Notification struct {
	// ID は通知の一意識別子。単調増加するカウンタの文字列表現。
	ID string `json:"id"`
	// Message は通知本文。
	Message string `json:"message"`
	// Read は既読状態。falseからtrueにのみ変化する。
	Read bool `json:"read"`
	// DeliveryStatus はゲートウェイへの配信状態。
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	// CreatedAt は通知の作成日時（UTC）。
	CreatedAt time.Time `json:"created_at"`
}
