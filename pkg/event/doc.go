// Package event はクライアント側で観測するプッシュ配信イベントを提供する。
//
// OSのプッシュ配信基盤から届く「受信」「応答（タップ等）」の2種類の
// シグナルを型付きのイベントとして表現し、Busを介して購読者へ配る。
package event
