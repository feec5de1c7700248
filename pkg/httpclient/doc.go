// Package httpclient はリレーサーバーのREST APIを呼び出すJSONクライアントを提供する。
//
// クライアント側の同期処理（フィードの再取得）が使用する。
package httpclient
