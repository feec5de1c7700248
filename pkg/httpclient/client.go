package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout はHTTPリクエスト全体のタイムアウト。
const DefaultTimeout = 30 * time.Second

// Client はJSON APIを呼び出すHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サーバーのベースURL。
	baseURL string
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithTimeout はリクエストのタイムアウトを変更する。0以下なら変更しない。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "http://localhost:4000"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError は2xx以外のレスポンスを表す。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// GetJSON は指定パスにGETリクエストを送信し、レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// PutJSON は指定パスにJSONボディでPUTリクエストを送信する。
func (c *Client) PutJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, result)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "リクエストボディのシリアライズに失敗")
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, "HTTPリクエストの作成に失敗")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "HTTPリクエストの送信に失敗")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.Wrap(err, "レスポンスボディのデシリアライズに失敗")
		}
	}
	return nil
}
