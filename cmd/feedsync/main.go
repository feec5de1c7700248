// フィード同期クライアントのエントリポイント。
// 標準入力の1行をコマンドとして扱い、リレーサーバーのフィードを同期する。
//
//	received [notification_id]  アプリ起動中に通知を受信した
//	response [notification_id]  ユーザーが通知に応答した
//	register <token>            端末のプッシュトークンを登録する
//	send [-d 秒] <message>      通知の送信を依頼する
//	read <id>                   通知を既読にする
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nao1215/pushrelay/internal/config"
	"github.com/nao1215/pushrelay/internal/feedsync"
	"github.com/nao1215/pushrelay/internal/notification"
	"github.com/nao1215/pushrelay/pkg/event"
	"github.com/nao1215/pushrelay/pkg/httpclient"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	config.SetupLogger(cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay := feedsync.NewRelayClient(httpclient.New(cfg.RelayURL, httpclient.WithTimeout(cfg.FetchTimeout)))
	syncer := feedsync.New(
		relay,
		feedsync.WithFetchTimeout(cfg.FetchTimeout),
		feedsync.WithOnSynced(printFeed),
	)

	if err := syncer.Refresh(ctx); err != nil {
		log.WithError(err).Warn("初回のフィード取得に失敗しました")
	}

	bus := event.NewBus()
	cli := &commander{relay: relay, syncer: syncer, bus: bus}
	go cli.readLines(ctx)

	log.WithField("relay_url", cfg.RelayURL).Info("フィード同期を開始します")
	if err := syncer.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("フィード同期が異常終了しました: %v", err)
	}
}

// commander は標準入力のコマンドを実行する。
type commander struct {
	relay  *feedsync.RelayClient
	syncer *feedsync.Syncer
	bus    *event.Bus
}

func (c *commander) readLines(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := c.exec(ctx, scanner.Text()); err != nil {
			log.WithError(err).Warn("コマンドの実行に失敗しました")
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("標準入力の読み込みに失敗しました")
	}
}

// exec は1行のコマンドを実行する。空行は無視する。
func (c *commander) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "received", "response":
		ev, err := newTransportEvent(fields)
		if err != nil {
			return err
		}
		c.bus.Publish(*ev)
		return nil
	case "register":
		if len(fields) != 2 {
			return errors.New("使い方: register <token>")
		}
		if err := c.relay.RegisterToken(ctx, fields[1]); err != nil {
			return err
		}
		fmt.Println("トークンを登録しました")
		return nil
	case "send":
		return c.send(ctx, fields[1:])
	case "read":
		if len(fields) != 2 {
			return errors.New("使い方: read <id>")
		}
		n, err := c.relay.MarkRead(ctx, fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("[%s] を既読にしました\n", n.ID)
		return c.syncer.Refresh(ctx)
	}
	return errors.Errorf("未知のコマンド: %q", fields[0])
}

// send は通知の送信を依頼する。待機付きの送信は応答まで時間がかかるため別goroutineで行う。
func (c *commander) send(ctx context.Context, args []string) error {
	var delayMs int64
	if len(args) >= 2 && args[0] == "-d" {
		sec, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || sec < 0 {
			return errors.Errorf("待機秒数が不正: %q", args[1])
		}
		delayMs = sec * 1000
		args = args[2:]
	}
	message := strings.Join(args, " ")

	go func() {
		out, err := c.relay.Send(ctx, message, delayMs)
		if err != nil {
			log.WithError(err).Warn("通知の送信に失敗しました")
			return
		}
		fmt.Printf("送信結果: delivered=%t reason=%s\n", out.Delivered, out.Reason)
		if err := c.syncer.Refresh(ctx); err != nil {
			log.WithError(err).Warn("送信後のフィード取得に失敗しました")
		}
	}()
	return nil
}

// newTransportEvent は received / response 行をイベントに変換する。
func newTransportEvent(fields []string) (*event.Event, error) {
	eventType := event.TypeNotificationReceived
	if fields[0] == "response" {
		eventType = event.TypeNotificationResponse
	}
	if len(fields) > 1 {
		return event.New(eventType, event.PushData{NotificationID: fields[1]})
	}
	return event.New(eventType, nil)
}

func printFeed(feed []notification.Notification) {
	fmt.Printf("--- 通知フィード (%d件) ---\n", len(feed))
	for _, n := range feed {
		mark := "未読"
		if n.Read {
			mark = "既読"
		}
		fmt.Printf("[%s] %s %s (%s)\n", n.ID, mark, n.Message, n.DeliveryStatus)
	}
}
