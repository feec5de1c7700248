package pushgateway

import (
	"context"

	"github.com/pkg/errors"
)

// ErrInvalidToken は配信先トークンの形式が配信サービスの要求を満たさないことを表す。
var ErrInvalidToken = errors.New("不正なプッシュトークン")

// Payload は1件の通知の内容。
type Payload struct {
	// Title は通知のタイトル（任意）。
	Title string
	// Body は通知本文。
	Body string
	// Data は通知に添付するキー・値。
	Data map[string]string
}

// Gateway は外部のプッシュ配信サービス。
type Gateway interface {
	// Deliver はtokenで示される端末にpayloadを1回送信する。
	Deliver(ctx context.Context, token string, payload Payload) error
}

// GatewayFunc は関数をGatewayとして扱うアダプタ。
type GatewayFunc func(ctx context.Context, token string, payload Payload) error

// Deliver はf(ctx, token, payload)を呼び出す。
func (f GatewayFunc) Deliver(ctx context.Context, token string, payload Payload) error {
	return f(ctx, token, payload)
}
