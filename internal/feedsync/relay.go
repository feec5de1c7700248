package feedsync

import (
	"context"
	"net/url"

	"github.com/nao1215/pushrelay/internal/notification"
	"github.com/nao1215/pushrelay/pkg/httpclient"
)

const (
	// feedPath はフィード取得API。
	feedPath = "/api/v1/notifications"
	// sendPath は通知送信API。
	sendPath = "/api/v1/notifications/send"
	// pushTokenPath はトークン登録API。
	pushTokenPath = "/api/v1/push-token"
)

// RelayClient はリレーサーバーのREST APIを呼び出すクライアント。Fetcherを満たす。
type RelayClient struct {
	client *httpclient.Client
}

// NewRelayClient はclientの接続先を使うRelayClientを生成する。
func NewRelayClient(client *httpclient.Client) *RelayClient {
	return &RelayClient{client: client}
}

// FetchFeed はフィード全体を挿入順で取得する。
func (c *RelayClient) FetchFeed(ctx context.Context) ([]notification.Notification, error) {
	var feed []notification.Notification
	if err := c.client.GetJSON(ctx, feedPath, &feed); err != nil {
		return nil, err
	}
	return feed, nil
}

// RegisterToken は端末のプッシュトークンを配信先として登録する。
func (c *RelayClient) RegisterToken(ctx context.Context, token string) error {
	return c.client.PostJSON(ctx, pushTokenPath, map[string]string{"token": token}, nil)
}

// Send は通知の送信を依頼し、配信結果を返す。delayMsが0なら待機しない。
func (c *RelayClient) Send(ctx context.Context, message string, delayMs int64) (notification.Outcome, error) {
	body := map[string]any{"message": message}
	if delayMs > 0 {
		body["delay_ms"] = delayMs
	}
	var out notification.Outcome
	if err := c.client.PostJSON(ctx, sendPath, body, &out); err != nil {
		return notification.Outcome{}, err
	}
	return out, nil
}

// MarkRead は通知を既読にし、更新後の通知を返す。
func (c *RelayClient) MarkRead(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification
	if err := c.client.PutJSON(ctx, feedPath+"/"+url.PathEscape(id)+"/read", nil, &n); err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}
