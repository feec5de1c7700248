package pushgateway

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// messageSender はmessaging.Clientのうち送信に使う部分。
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM はFirebase Cloud Messagingへ送信するGateway。
type FCM struct {
	client messageSender
}

// NewFCM はサービスアカウントの認証情報ファイルからFCMアダプタを生成する。
func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "Firebaseの初期化に失敗")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Messagingクライアントの取得に失敗")
	}
	return &FCM{client: client}, nil
}

// Deliver はFCMの登録トークンへ1件送信する。
func (f *FCM) Deliver(ctx context.Context, token string, payload Payload) error {
	if token == "" {
		return errors.Wrap(ErrInvalidToken, "空のトークン")
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	if _, err := f.client.Send(ctx, msg); err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return errors.Wrapf(ErrInvalidToken, "FCMがトークンを拒否: %v", err)
		}
		return errors.Wrap(err, "FCMへの送信に失敗")
	}
	return nil
}
