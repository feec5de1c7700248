package event

import (
	"encoding/json"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeNotificationReceived はアプリ起動中に通知を受信したことを表す。
	TypeNotificationReceived Type = "NotificationReceived"
	// TypeNotificationResponse はユーザーが通知に応答（タップ等）したことを表す。
	TypeNotificationResponse Type = "NotificationResponse"
)

// Valid は既知のイベント種類であればtrueを返す。
func (t Type) Valid() bool {
	switch t {
	case TypeNotificationReceived, TypeNotificationResponse:
		return true
	}
	return false
}

// Event は配信基盤から届いた1件のイベント。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data は通知に添付されたデータ（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
	// ReceivedAt はイベントを観測した日時。
	ReceivedAt time.Time `json:"received_at"`
}

// PushData は通知に添付されるデータ。
type PushData struct {
	// NotificationID はサーバー側の通知ID。
	NotificationID string `json:"notification_id,omitempty"`
	// Body は通知本文。
	Body string `json:"body,omitempty"`
}
