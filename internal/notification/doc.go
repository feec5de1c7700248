// Package notification はプッシュ通知リレーのサーバー側の中核を提供する。
//
// 通知フィード（Store）、配信先トークンの保持（TokenRegistry）、
// 遅延付きの非同期配信（Dispatcher）と、それらを公開するREST API（Server）からなる。
// 送信要求を受けるとまずフィードに通知を追加し、必要なら待機してから
// 外部のプッシュゲートウェイへ1回だけ配信する。
package notification
