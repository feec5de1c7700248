// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、logrusによるリクエストログ、CORS設定、
// クライアント単位の流量制限を含む。
package middleware
