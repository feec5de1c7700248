// Package pushgateway は外部のプッシュ配信サービスへの送信アダプタを提供する。
//
// ExpoプッシュサービスとFirebase Cloud Messagingの2種類を実装し、
// どちらも1回の呼び出しで1件の端末へ1回だけ送信する（再試行はしない）。
package pushgateway
