package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// New は新しいイベントを生成する。dataはJSON形式にシリアライズされる。nilなら省略する。
func New(eventType Type, data any) (*Event, error) {
	if !eventType.Valid() {
		return nil, errors.Errorf("未知のイベント種類: %q", eventType)
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrap(err, "イベントデータのシリアライズに失敗")
		}
		raw = b
	}

	return &Event{
		ID:         uuid.New().String(),
		EventType:  eventType,
		Data:       raw,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if len(e.Data) == 0 {
		return &data, nil
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, errors.Wrap(err, "イベントデータのデシリアライズに失敗")
	}
	return &data, nil
}
