// Package feedsync はクライアント側で通知フィードをサーバーと同期する。
//
// 配信基盤から通知の受信・応答イベントが届くと未読フラグを立て、
// フィードを1回だけ再取得する。再取得が終わるまでに届いた追加のイベントは
// 同じ再取得にまとめられる。
package feedsync
