package pushgateway

import (
	"context"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/pkg/errors"
)

// ExpoConfig はExpoアダプタの設定。
type ExpoConfig struct {
	// Host はAPIホスト。空ならSDKの既定値（https://exp.host）。
	Host string
	// AccessToken はプッシュ通知のアクセストークン（任意）。
	AccessToken string
	// Timeout はHTTPリクエストのタイムアウト。0なら30秒。
	Timeout time.Duration
	// Sound は通知音。空なら"default"。
	Sound string
}

// Expo はExpoプッシュサービスへ送信するGateway。
type Expo struct {
	cfg       ExpoConfig
	transport http.RoundTripper
}

// NewExpo は新しいExpoアダプタを生成する。
func NewExpo(cfg ExpoConfig) *Expo {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Sound == "" {
		cfg.Sound = "default"
	}
	return &Expo{cfg: cfg, transport: http.DefaultTransport}
}

// contextTransport は全リクエストをctxに結び付ける。
// SDKのPublishはcontextを受け取らないため、キャンセルはトランスポートで伝える。
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// Deliver はExpoのプッシュAPIへ1件送信する。
// トークンがExpo形式でなければErrInvalidTokenを返し、送信は行わない。
// ctxが終わるとHTTPリクエスト自体を打ち切る。
func (e *Expo) Deliver(ctx context.Context, token string, payload Payload) error {
	to, err := expo.NewExponentPushToken(token)
	if err != nil {
		return errors.Wrapf(ErrInvalidToken, "%q", token)
	}

	client := expo.NewPushClient(&expo.ClientConfig{
		Host:        e.cfg.Host,
		AccessToken: e.cfg.AccessToken,
		HTTPClient: &http.Client{
			Timeout:   e.cfg.Timeout,
			Transport: contextTransport{ctx: ctx, base: e.transport},
		},
	})

	resp, err := client.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{to},
		Title:    payload.Title,
		Body:     payload.Body,
		Data:     payload.Data,
		Sound:    e.cfg.Sound,
		Priority: expo.DefaultPriority,
	})
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "Expoへの送信を中断")
		}
		return errors.Wrap(err, "Expoへの送信に失敗")
	}
	if err := resp.ValidateResponse(); err != nil {
		return errors.Wrap(err, "Expoが送信を拒否")
	}
	return nil
}
